package services

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
	"github.com/stretchr/testify/assert"
)

func newUserFixture(t *testing.T) *UserService {
	t.Helper()
	global.Conf.Sipar.DefaultAliasLimit = 10
	global.Conf.Sipar.Pbkdf2Iterations = global.MinPbkdf2Iterations

	sel := newMockSelector(t)
	return NewUserService(sel, types.NewEnvironment(nil))
}

func registerSaveOK(dbName, id string) {
	created, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, dbName, id), created)
}

// registerDrainingFind answers one page of documents on the first
// _find and an empty page afterwards, the way a database drains while
// a cascade deletes it.
func registerDrainingFind(dbName string, docs ...interface{}) {
	calls := 0
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, dbName),
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewJsonResponse(200, map[string]interface{}{"docs": docs, "bookmark": "nil"})
			}
			return httpmock.NewJsonResponse(200, map[string]interface{}{"docs": []interface{}{}, "bookmark": "nil"})
		})
}

// the very first account of the installation is the admin. The startup
// bootstrap leaves index design documents in the users database, so a
// freshly installed system already has rows in _all_docs; only real
// account documents may count.
func TestCreateUserFirstIsAdmin(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	allDocs, _ := httpmock.NewJsonResponder(200, map[string]interface{}{
		"total_rows": 1,
		"offset":     0,
		"rows":       []interface{}{map[string]interface{}{"id": "_design/user-role-index"}},
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/_all_docs", testURL, repository.Users), allDocs)
	registerFind(repository.Users)
	registerSaveOK(repository.Users, "alice")
	registerSaveOK(repository.EmailMapping, "alice@example.com")

	account, err := us.CreateUser("Alice", "Alice@Example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.RoleAdmin, account.Role)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.Equal(t, 10, account.AliasLimit)
	assert.True(t, account.Enabled)
	assert.Equal(t, global.MinPbkdf2Iterations, account.Iterations)
	assert.NotEmpty(t, account.Salt)
	assert.NotEmpty(t, account.Hash)
	assert.NotContains(t, account.Hash, "password1")
}

func TestCreateUserSecondIsRegular(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	registerFind(repository.Users, map[string]interface{}{"_id": "alice"})
	registerSaveOK(repository.Users, "bob")
	registerSaveOK(repository.EmailMapping, "bob@example.com")

	account, err := us.CreateUser("bob", "bob@example.com", "password1")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, types.RoleUser, account.Role)
}

func TestCreateUserInvalidUsername(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	_, err := us.CreateUser("x", "x@example.com", "password1")
	assert.Equal(t, types.ErrBadRequest, err)
}

func TestCreateUserUsernameConflict(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	registerFind(repository.Users, map[string]interface{}{"_id": "someone"})
	conflict, _ := httpmock.NewJsonResponder(409, types.CouchDBError{Error: "conflict", Reason: "Document update conflict."})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "alice"), conflict)

	_, err := us.CreateUser("alice", "other@example.com", "password1")
	assert.Equal(t, types.ErrConflict, err)
}

// a mapping conflict rolls the freshly created account back so the
// username is immediately free again
func TestCreateUserEmailConflictRollsBack(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	registerFind(repository.Users, map[string]interface{}{"_id": "someone"})
	registerSaveOK(repository.Users, "carol")
	conflict, _ := httpmock.NewJsonResponder(409, types.CouchDBError{Error: "conflict", Reason: "Document update conflict."})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.EmailMapping, "taken@example.com"), conflict)

	doc, _ := httpmock.NewJsonResponder(200, types.BaseDocument{UnderscoreID: "carol", UnderscoreRev: "1-a"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "carol"), doc)
	deleted, _ := httpmock.NewJsonResponder(200, types.OK{IsOK: true})
	httpmock.RegisterResponder("DELETE", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "carol"), deleted)

	_, err := us.CreateUser("carol", "taken@example.com", "password1")
	assert.Equal(t, types.ErrConflict, err)

	deletes := httpmock.GetCallCountInfo()[fmt.Sprintf("DELETE %s/%s/%s", testURL, repository.Users, "carol")]
	assert.Equal(t, 1, deletes)
}

// unknown user and wrong password are indistinguishable to the caller
func TestAuthenticateUniformFailure(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	notFound, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "ghost"), notFound)

	_, err := us.Authenticate("ghost", "password1")
	assert.Equal(t, types.ErrNotAuthorized, err)

	// known user, wrong password
	salt, hash, iterations, _ := util.DeriveNewCredential("password1")
	known, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "alice", UnderscoreRev: "1-a"},
		Username:     "alice",
		Salt:         salt,
		Hash:         hash,
		Iterations:   iterations,
		Enabled:      true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "alice"), known)

	_, err = us.Authenticate("alice", "password2")
	assert.Equal(t, types.ErrNotAuthorized, err)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	salt, hash, iterations, _ := util.DeriveNewCredential("password1")
	disabled, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "mallory", UnderscoreRev: "1-a"},
		Username:     "mallory",
		Salt:         salt,
		Hash:         hash,
		Iterations:   iterations,
		Enabled:      false,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "mallory"), disabled)

	_, err := us.Authenticate("mallory", "password1")
	assert.Equal(t, types.ErrDisabled, err)
}

// a stored hash above the platform ceiling demands a reset, never a
// silent verification against a clamped work factor
func TestAuthenticateUnsupportedIterations(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	salt, hash, _, _ := util.DeriveNewCredential("password1")
	oldHash, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "dave", UnderscoreRev: "1-a"},
		Username:     "dave",
		Salt:         salt,
		Hash:         hash,
		Iterations:   global.MaxPbkdf2Iterations + 1,
		Enabled:      true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "dave"), oldHash)

	_, err := us.Authenticate("dave", "password1")
	assert.Equal(t, types.ErrUnsupportedIterations, err)
}

func TestDeleteCascadeSelfTarget(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	admin := &types.Account{Username: "root", Role: types.RoleAdmin}
	err := us.DeleteCascade(admin, "root")
	assert.Equal(t, types.ErrSelfTarget, err)
}

func TestDeleteCascadeLastAdmin(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	target, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "root2", UnderscoreRev: "1-a"},
		Username:     "root2",
		Email:        "root2@example.com",
		Role:         types.RoleAdmin,
		Enabled:      true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "root2"), target)
	registerFind(repository.Users, map[string]interface{}{"_id": "root2"})

	admin := &types.Account{Username: "root", Role: types.RoleAdmin}
	err := us.DeleteCascade(admin, "root2")
	assert.Equal(t, types.ErrLastAdmin, err)
}

// the cascade leaves nothing owned by the target behind: tokens, email
// records and aliases are bulk deleted, then the account row and the
// email mapping go
func TestDeleteCascadeRemovesEverything(t *testing.T) {
	us := newUserFixture(t)
	defer httpmock.DeactivateAndReset()

	target, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "bob", UnderscoreRev: "1-a"},
		Username:     "bob",
		Email:        "bob@example.com",
		Role:         types.RoleUser,
		Enabled:      true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "bob"), target)

	registerDrainingFind(repository.Tokens, map[string]interface{}{"_id": "t1", "_rev": "1-a"})
	registerDrainingFind(repository.Emails, map[string]interface{}{"_id": "e1", "_rev": "1-a", "raw_key": "emails/e1.eml"})
	registerDrainingFind(repository.Aliases, map[string]interface{}{"_id": "promo", "_rev": "1-a"})

	bulkOK, _ := httpmock.NewJsonResponder(201, []types.OK{{IsOK: true}})
	for _, db := range []string{repository.Tokens, repository.Emails, repository.Aliases} {
		httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_bulk_docs", testURL, db), bulkOK)
	}

	deleted, _ := httpmock.NewJsonResponder(200, types.OK{IsOK: true})
	httpmock.RegisterResponder("DELETE", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "bob"), deleted)
	mapping, _ := httpmock.NewJsonResponder(200, types.BaseDocument{UnderscoreID: "bob@example.com", UnderscoreRev: "1-a"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.EmailMapping, "bob@example.com"), mapping)
	httpmock.RegisterResponder("DELETE", fmt.Sprintf("%s/%s/%s", testURL, repository.EmailMapping, "bob@example.com"), deleted)

	admin := &types.Account{Username: "root", Role: types.RoleAdmin}
	if err := us.DeleteCascade(admin, "bob"); err != nil {
		t.Fatal(err)
	}

	calls := httpmock.GetCallCountInfo()
	for _, db := range []string{repository.Tokens, repository.Emails, repository.Aliases} {
		assert.Equal(t, 1, calls[fmt.Sprintf("POST %s/%s/_bulk_docs", testURL, db)], db)
	}
	assert.Equal(t, 1, calls[fmt.Sprintf("DELETE %s/%s/%s", testURL, repository.Users, "bob")])
	assert.Equal(t, 1, calls[fmt.Sprintf("DELETE %s/%s/%s", testURL, repository.EmailMapping, "bob@example.com")])
}

// blob cleanup batches respect the store's 1000-key bulk delete ceiling
func TestBlobDeleteChunking(t *testing.T) {
	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = fmt.Sprintf("emails/%d.eml", i)
	}
	chunks := chunkKeys(keys, blobDeleteChunk)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 500)
	assert.Equal(t, "emails/0.eml", chunks[0][0])
	assert.Equal(t, "emails/2499.eml", chunks[2][499])
	assert.Empty(t, chunkKeys(nil, blobDeleteChunk))
}
