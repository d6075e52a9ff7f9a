package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/stretchr/testify/assert"
)

func testOwner(limit int) *types.Account {
	return &types.Account{
		Username:   "alice",
		Email:      "alice@example.com",
		Role:       types.RoleUser,
		AliasLimit: limit,
		Enabled:    true,
	}
}

// format is rejected before the store is ever consulted
func TestCreateAliasInvalidFormat(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	_, err := as.Create(testOwner(10), "Not A Valid Local!")
	assert.Equal(t, types.ErrBadRequest, err)

	findCalls := httpmock.GetCallCountInfo()[fmt.Sprintf("POST %s/%s/_find", testURL, repository.Aliases)]
	assert.Equal(t, 0, findCalls)
}

func TestCreateAliasQuotaExceeded(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	// two enabled aliases already, limit is two
	registerFind(repository.Aliases,
		map[string]interface{}{"_id": "one"},
		map[string]interface{}{"_id": "two"},
	)

	_, err := as.Create(testOwner(2), "three")
	assert.Equal(t, types.ErrQuotaExceeded, err)
}

func TestCreateAliasConflict(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	registerFind(repository.Aliases)
	conflict, _ := httpmock.NewJsonResponder(409, types.CouchDBError{Error: "conflict", Reason: "Document update conflict."})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.Aliases, "taken"), conflict)

	_, err := as.Create(testOwner(10), "taken")
	assert.Equal(t, types.ErrConflict, err)
}

func TestCreateAliasSuccess(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	registerFind(repository.Aliases)
	created, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.Aliases, "promo"), created)

	alias, err := as.Create(testOwner(10), "  PROMO ")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "promo", alias.LocalPart)
	assert.Equal(t, "alice", alias.User)
	assert.False(t, alias.Disabled)
}

func TestDeleteAliasOfAnotherOwner(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	other, _ := httpmock.NewJsonResponder(200, types.Alias{
		BaseDocument: types.BaseDocument{UnderscoreID: "promo", UnderscoreRev: "1-a"},
		LocalPart:    "promo",
		User:         "bob",
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Aliases, "promo"), other)

	err := as.Delete("alice", "promo")
	assert.Equal(t, types.ErrNotFound, err)
}

func TestGetActiveDisabledAlias(t *testing.T) {
	sel := newMockSelector(t)
	defer httpmock.DeactivateAndReset()
	as := NewAliasService(sel)

	disabled, _ := httpmock.NewJsonResponder(200, types.Alias{
		BaseDocument: types.BaseDocument{UnderscoreID: "promo", UnderscoreRev: "1-a"},
		LocalPart:    "promo",
		User:         "alice",
		Disabled:     true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Aliases, "promo"), disabled)

	_, err := as.GetActive(context.Background(), "promo")
	assert.Equal(t, types.ErrNotFound, err)
}
