package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/go-playground/validator/v10"
	"github.com/siparmail/sipar-server/api/interceptors"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

type AliasApi struct {
	aliasService *services.AliasService
	validate     *validator.Validate
}

func NewAliasApi(aliasService *services.AliasService) *AliasApi {
	return &AliasApi{
		aliasService: aliasService,
		validate:     validator.New(),
	}
}

// ListAliases returns every alias of the logged-in account.
func (aa *AliasApi) ListAliases(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}

	aliases, lErr := aa.aliasService.List(account.Username)
	if lErr != nil {
		level.Error(global.Logger).Log("msg", "failed to list aliases", "user", account.Username, "error", lErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to list aliases")
		return
	}
	output := make([]*types.OutputAlias, 0, len(aliases))
	for _, alias := range aliases {
		output = append(output, toOutputAlias(alias))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "aliases": output})
}

// CreateAlias registers a new receiving address under the organization
// domain. Format is rejected before the quota is even consulted; the
// quota counts enabled aliases only and is read fresh on every call.
func (aa *AliasApi) CreateAlias(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}

	var input types.InputCreateAlias
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid alias input")
		return
	}
	if vErr := aa.validate.Struct(input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, ValidatorErrorToUser(vErr.(validator.ValidationErrors)))
		return
	}

	alias, cErr := aa.aliasService.Create(account, input.LocalPart)
	if cErr != nil {
		switch cErr {
		case types.ErrBadRequest:
			ApiErrorf(c, http.StatusBadRequest, "invalid alias")
		case types.ErrQuotaExceeded:
			ApiErrorf(c, http.StatusForbidden, "Limit alias tercapai")
		case types.ErrConflict:
			ApiErrorf(c, http.StatusBadRequest, "Alias sudah dipakai")
		default:
			level.Error(global.Logger).Log("msg", "failed to create alias", "user", account.Username, "error", cErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to create alias")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "alias": toOutputAlias(alias)})
}

// DeleteAlias removes an owned alias. Stored email records for the
// local part stay readable; only new deliveries stop.
func (aa *AliasApi) DeleteAlias(c *gin.Context) {
	account := interceptors.GetAccount(c)
	if account == nil {
		ApiErrorf(c, http.StatusUnauthorized, "session required")
		return
	}
	localPart := c.Param("local")
	if localPart == "" {
		ApiErrorf(c, http.StatusBadRequest, "alias is required")
		return
	}

	if dErr := aa.aliasService.Delete(account.Username, localPart); dErr != nil {
		if dErr == types.ErrNotFound {
			ApiErrorf(c, http.StatusNotFound, "alias not found")
			return
		}
		level.Error(global.Logger).Log("msg", "failed to delete alias", "user", account.Username, "error", dErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to delete alias")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func toOutputAlias(alias *types.Alias) *types.OutputAlias {
	return &types.OutputAlias{
		LocalPart: alias.LocalPart,
		Address:   fmt.Sprintf("%s@%s", alias.LocalPart, global.Conf.Sipar.Domain),
		Disabled:  alias.Disabled,
		Created:   alias.Created,
	}
}
