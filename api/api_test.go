package api

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
)

var testURL = "http://localhost:5989"

// mockSelector builds the five-database selector against a mocked
// CouchDB for handler tests.
func mockSelector(t *testing.T) *repository.CouchDBSelector {
	t.Helper()
	gin.SetMode(gin.TestMode)
	httpmock.Activate()

	global.Conf.Sipar.Domain = "sipar.id"
	global.Conf.Sipar.CookieName = "sipar_session"
	global.Conf.Sipar.SessionTTLSeconds = 3600
	global.Conf.Sipar.DefaultAliasLimit = 10
	global.Conf.Sipar.Pbkdf2Iterations = global.MinPbkdf2Iterations

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

// asAccount injects an authenticated account the way the session
// middleware would.
func asAccount(account *types.Account) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("account", account)
		c.Next()
	}
}
