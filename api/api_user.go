package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/siparmail/sipar-server/api/interceptors"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/services"
)

type UserApi struct {
	userService *services.UserService
}

func NewUserApi(userService *services.UserService) *UserApi {
	return &UserApi{
		userService: userService,
	}
}

// Me returns the logged-in account together with its current alias
// usage.
func (ua *UserApi) Me(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}

	aliasCount, cErr := ua.userService.CountEnabledAliases(account.Username)
	if cErr != nil {
		level.Error(global.Logger).Log("msg", "failed to count aliases", "user", account.Username, "error", cErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to load account")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"user":        toOutputAccount(account),
		"alias_count": aliasCount,
	})
}
