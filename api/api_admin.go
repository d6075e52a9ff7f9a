package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/siparmail/sipar-server/api/interceptors"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

type AdminApi struct {
	userService *services.UserService
}

func NewAdminApi(userService *services.UserService) *AdminApi {
	return &AdminApi{
		userService: userService,
	}
}

// ListUsers returns every account with its current alias usage.
func (aa *AdminApi) ListUsers(c *gin.Context) {
	accounts, lErr := aa.userService.ListAccounts()
	if lErr != nil {
		level.Error(global.Logger).Log("msg", "failed to list accounts", "error", lErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	output := make([]*types.OutputAdminUser, 0, len(accounts))
	for _, account := range accounts {
		aliasCount, cErr := aa.userService.CountEnabledAliases(account.Username)
		if cErr != nil {
			level.Error(global.Logger).Log("msg", "failed to count aliases", "user", account.Username, "error", cErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to list accounts")
			return
		}
		output = append(output, &types.OutputAdminUser{
			OutputAccount: *toOutputAccount(account),
			AliasCount:    aliasCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "users": output})
}

// PatchUser adjusts the alias limit or the enabled flag of one
// account. Disabling cuts the target's sessions off on their next
// request; lowering the limit never removes existing aliases.
func (aa *AdminApi) PatchUser(c *gin.Context) {
	target := c.Param("id")
	if target == "" {
		ApiErrorf(c, http.StatusBadRequest, "user id is required")
		return
	}
	var input types.InputPatchUser
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid patch input")
		return
	}
	if input.AliasLimit == nil && input.Disabled == nil {
		ApiErrorf(c, http.StatusBadRequest, "nothing to change")
		return
	}

	account, pErr := aa.userService.Patch(target, &input)
	if pErr != nil {
		switch pErr {
		case types.ErrNotFound:
			ApiErrorf(c, http.StatusNotFound, "user not found")
		case types.ErrBadRequest:
			ApiErrorf(c, http.StatusBadRequest, "invalid alias limit")
		default:
			level.Error(global.Logger).Log("msg", "failed to patch account", "target", target, "error", pErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to update account")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": toOutputAccount(account)})
}

// DeleteUser drives the cascading delete of one account: tokens, email
// records, aliases, the account row, the email mapping, then archived
// blobs as a fire-and-forget cleanup.
func (aa *AdminApi) DeleteUser(c *gin.Context) {
	admin := interceptors.GetAccount(c)
	if admin == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	target := c.Param("id")
	if target == "" {
		ApiErrorf(c, http.StatusBadRequest, "user id is required")
		return
	}

	if dErr := aa.userService.DeleteCascade(admin, target); dErr != nil {
		switch dErr {
		case types.ErrNotFound:
			ApiErrorf(c, http.StatusNotFound, "user not found")
		case types.ErrSelfTarget:
			ApiErrorf(c, http.StatusBadRequest, "cannot delete own account")
		case types.ErrLastAdmin:
			ApiErrorf(c, http.StatusBadRequest, "cannot delete the last admin")
		default:
			level.Error(global.Logger).Log("msg", "failed to delete account", "target", target, "error", dErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to delete account")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
