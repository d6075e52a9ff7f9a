package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
	"github.com/siparmail/sipar-server/util"
	"github.com/stretchr/testify/assert"
)

func newAuthRouter(t *testing.T) *gin.Engine {
	sel := mockSelector(t)
	userService := services.NewUserService(sel, types.NewEnvironment(nil))
	tokenService := services.NewTokenService(sel)
	authApi := NewAuthApi(userService, tokenService, types.NewEnvironment(nil))

	router := gin.New()
	router.POST("/api/auth/signup", authApi.Signup)
	router.POST("/api/auth/login", authApi.Login)
	router.POST("/api/auth/reset/request", authApi.ResetRequest)
	return router
}

func registerUsersFind(docs ...interface{}) {
	responder, _ := httpmock.NewJsonResponder(200, map[string]interface{}{
		"docs":     docs,
		"bookmark": "nil",
	})
	httpmock.RegisterResponder("POST", fmt.Sprintf("%s/%s/_find", testURL, repository.Users), responder)
}

func registerTokenSave() {
	created, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf(`=~^%s/%s/.+`, testURL, repository.Tokens), created)
}

func TestSignupSetsSessionCookie(t *testing.T) {
	router := newAuthRouter(t)
	defer httpmock.DeactivateAndReset()

	registerUsersFind()
	created, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "sipar"), created)
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.EmailMapping, "sipar@x.com"), created)
	registerTokenSave()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(`{"username":"sipar","email":"sipar@x.com","pw":"password1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "sipar_session=")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Lax")
}

func TestSignupConflictMessage(t *testing.T) {
	router := newAuthRouter(t)
	defer httpmock.DeactivateAndReset()

	registerUsersFind(map[string]interface{}{"_id": "someone"})
	conflict, _ := httpmock.NewJsonResponder(409, types.CouchDBError{Error: "conflict", Reason: "Document update conflict."})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "sipar"), conflict)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/signup", strings.NewReader(`{"username":"sipar","email":"sipar@x.com","pw":"password1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Username/email sudah dipakai")
	assert.Contains(t, w.Body.String(), `"ok":false`)
}

func TestLoginWrongPassword(t *testing.T) {
	router := newAuthRouter(t)
	defer httpmock.DeactivateAndReset()

	salt, hash, iterations, _ := util.DeriveNewCredential("password1")
	account, _ := httpmock.NewJsonResponder(200, types.Account{
		BaseDocument: types.BaseDocument{UnderscoreID: "sipar", UnderscoreRev: "1-a"},
		Username:     "sipar",
		Email:        "sipar@x.com",
		Salt:         salt,
		Hash:         hash,
		Iterations:   iterations,
		Enabled:      true,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.Users, "sipar"), account)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(`{"id":"sipar","pw":"password2"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

// the reset endpoint never discloses whether the address exists
func TestResetRequestAlwaysOK(t *testing.T) {
	router := newAuthRouter(t)
	defer httpmock.DeactivateAndReset()

	notFound, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", testURL, repository.EmailMapping, "ghost@x.com"), notFound)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/reset/request", strings.NewReader(`{"email":"ghost@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}
