package interceptors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

// context key the authenticated account is stored under
const ContextAccountKey = "account"

// SessionMiddleware resolves the session cookie to an account on every
// request. Enablement is re-checked on each call, so disabling an
// account cuts off its outstanding sessions immediately.
func SessionMiddleware(tokenService *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext, cErr := c.Cookie(global.Conf.Sipar.CookieName)
		if cErr != nil || plaintext == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "session required"})
			return
		}

		account, vErr := tokenService.Verify(plaintext, types.TokenTypeSession)
		if vErr != nil {
			switch vErr {
			case types.ErrNotFound, types.ErrDisabled:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "session invalid or expired"})
			default:
				level.Error(global.Logger).Log("msg", "session verification failed", "error", vErr.Error())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
			}
			return
		}

		c.Set(ContextAccountKey, account)
		c.Next()
	}
}

// AdminMiddleware runs after SessionMiddleware and gates admin routes.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := GetAccount(c)
		if account == nil || account.Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "admin only"})
			return
		}
		c.Next()
	}
}

// GetAccount returns the account set by SessionMiddleware, nil outside
// an authenticated request.
func GetAccount(c *gin.Context) *types.Account {
	value, exists := c.Get(ContextAccountKey)
	if !exists {
		return nil
	}
	account, ok := value.(*types.Account)
	if !ok {
		return nil
	}
	return account
}
