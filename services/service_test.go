package services

import (
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
)

var testURL = "http://localhost:5989"

// newMockSelector builds the full five-database selector against a
// mocked CouchDB. Every test registers its own document responders on
// top.
func newMockSelector(t *testing.T) *repository.CouchDBSelector {
	t.Helper()
	httpmock.Activate()

	ok, okErr := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	if okErr != nil {
		t.Fatal(okErr)
	}

	sel := repository.NewCouchDBSelector()
	for _, name := range []string{repository.Users, repository.EmailMapping, repository.Tokens, repository.Aliases, repository.Emails} {
		httpmock.RegisterResponder("HEAD", fmt.Sprintf("%s/%s", testURL, name), ok)
		httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s", testURL, name), ok)
		repo, rErr := repository.NewCouchDBRepository(testURL, name, "test", "test", true)
		if rErr != nil {
			t.Fatal(rErr)
		}
		sel.AddDB(repo)
	}
	return sel
}

// registerFind mocks a mango _find on one database with a fixed doc
// set.
func registerFind(dbName string, docs ...interface{}) {
	responder, _ := httpmock.NewJsonResponder(200, map[string]interface{}{
		"docs":     docs,
		"bookmark": "nil",
	})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, dbName), responder)
}
