package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/metrics"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

type AuthApi struct {
	userService  *services.UserService
	tokenService *services.TokenService
	env          *types.Environment
	validate     *validator.Validate
}

func NewAuthApi(userService *services.UserService, tokenService *services.TokenService, env *types.Environment) *AuthApi {
	return &AuthApi{
		userService:  userService,
		tokenService: tokenService,
		env:          env,
		validate:     validator.New(),
	}
}

// setSessionCookie issues the bearer cookie. Secure only over TLS so
// local development keeps working.
func (aa *AuthApi) setSessionCookie(c *gin.Context, plaintext string) {
	c.SetSameSite(http.SameSiteLaxMode)
	secure := c.Request.TLS != nil
	c.SetCookie(global.Conf.Sipar.CookieName, plaintext, global.Conf.Sipar.SessionTTLSeconds, "/", "", secure, true)
}

func (aa *AuthApi) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	secure := c.Request.TLS != nil
	c.SetCookie(global.Conf.Sipar.CookieName, "", -1, "/", "", secure, true)
}

// Signup registers an account and logs it in with a fresh session
// cookie. The first account of the installation becomes the admin.
func (aa *AuthApi) Signup(c *gin.Context) {
	var input types.InputSignup
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid signup input")
		return
	}
	if vErr := aa.validate.Struct(input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, ValidatorErrorToUser(vErr.(validator.ValidationErrors)))
		return
	}

	account, cErr := aa.userService.CreateUser(input.Username, input.Email, input.Password)
	if cErr != nil {
		switch cErr {
		case types.ErrConflict:
			ApiErrorf(c, http.StatusBadRequest, "Username/email sudah dipakai")
		case types.ErrBadRequest:
			ApiErrorf(c, http.StatusBadRequest, "invalid username or email")
		default:
			level.Error(global.Logger).Log("msg", "signup failed", "error", cErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to create account")
		}
		return
	}

	plaintext, tErr := aa.tokenService.Issue(account.Username, types.TokenTypeSession, global.Conf.Sipar.SessionTTLSeconds)
	if tErr != nil {
		level.Error(global.Logger).Log("msg", "failed to issue session after signup", "error", tErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to create session")
		return
	}
	aa.setSessionCookie(c, plaintext)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": toOutputAccount(account)})
}

// Login accepts username or email plus password. Failures never say
// whether the account or the password was wrong.
func (aa *AuthApi) Login(c *gin.Context) {
	var input types.InputLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid login input")
		return
	}
	if vErr := aa.validate.Struct(input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, ValidatorErrorToUser(vErr.(validator.ValidationErrors)))
		return
	}

	account, aErr := aa.userService.Authenticate(input.ID, input.Password)
	if aErr != nil {
		switch aErr {
		case types.ErrDisabled:
			ApiErrorf(c, http.StatusForbidden, "account disabled")
		case types.ErrUnsupportedIterations:
			ApiErrorf(c, http.StatusUnauthorized, "credential needs a password reset")
		default:
			ApiErrorf(c, http.StatusUnauthorized, "invalid credentials")
		}
		return
	}

	plaintext, tErr := aa.tokenService.Issue(account.Username, types.TokenTypeSession, global.Conf.Sipar.SessionTTLSeconds)
	if tErr != nil {
		level.Error(global.Logger).Log("msg", "failed to issue session", "error", tErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to create session")
		return
	}
	aa.setSessionCookie(c, plaintext)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": toOutputAccount(account)})
}

// Logout revokes the presented session and clears the cookie. Unknown
// or already revoked sessions log out successfully all the same.
func (aa *AuthApi) Logout(c *gin.Context) {
	plaintext, cErr := c.Cookie(global.Conf.Sipar.CookieName)
	if cErr == nil && plaintext != "" {
		if rErr := aa.tokenService.Revoke(plaintext); rErr != nil {
			level.Error(global.Logger).Log("msg", "failed to revoke session", "error", rErr.Error())
		}
	}
	aa.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResetRequest answers {ok:true} no matter what, so the endpoint never
// confirms whether an email address is registered. Delivery happens off
// the request path.
func (aa *AuthApi) ResetRequest(c *gin.Context) {
	var input types.InputResetRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid reset input")
		return
	}
	if vErr := aa.validate.Struct(input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, ValidatorErrorToUser(vErr.(validator.ValidationErrors)))
		return
	}

	account, fErr := aa.userService.FindByEmail(input.Email)
	if fErr == nil && account.Enabled {
		plaintext, tErr := aa.tokenService.Issue(account.Username, types.TokenTypeReset, global.Conf.Sipar.ResetTTLSeconds)
		if tErr != nil {
			level.Error(global.Logger).Log("msg", "failed to issue reset token", "error", tErr.Error())
		} else {
			aa.enqueueResetEmail(account.Email, plaintext)
		}
	} else if fErr != nil && fErr != types.ErrNotFound {
		level.Error(global.Logger).Log("msg", "reset lookup failed", "error", fErr.Error())
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResetConfirm exchanges a valid reset token for a new credential. All
// outstanding sessions of the account are revoked along the way.
func (aa *AuthApi) ResetConfirm(c *gin.Context) {
	var input types.InputResetConfirm
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid reset input")
		return
	}
	if vErr := aa.validate.Struct(input); vErr != nil {
		ApiErrorf(c, http.StatusBadRequest, ValidatorErrorToUser(vErr.(validator.ValidationErrors)))
		return
	}

	account, vErr := aa.tokenService.Verify(input.Token, types.TokenTypeReset)
	if vErr != nil {
		switch vErr {
		case types.ErrNotFound:
			ApiErrorf(c, http.StatusUnauthorized, "invalid or expired reset token")
		case types.ErrDisabled:
			ApiErrorf(c, http.StatusForbidden, "account disabled")
		default:
			level.Error(global.Logger).Log("msg", "reset token verification failed", "error", vErr.Error())
			ApiErrorf(c, http.StatusInternalServerError, "failed to verify reset token")
		}
		return
	}

	if uErr := aa.userService.UpdatePassword(account, input.NewPassword); uErr != nil {
		level.Error(global.Logger).Log("msg", "failed to update password", "error", uErr.Error())
		ApiErrorf(c, http.StatusInternalServerError, "failed to update password")
		return
	}

	// the reset token is single-use and old sessions die with the old
	// password
	if rErr := aa.tokenService.Revoke(input.Token); rErr != nil {
		level.Error(global.Logger).Log("msg", "failed to revoke reset token", "error", rErr.Error())
	}
	ctx := c.Request.Context()
	if dErr := aa.tokenService.DeleteAllByUser(ctx, account.Username); dErr != nil {
		level.Error(global.Logger).Log("msg", "failed to revoke sessions after reset", "error", dErr.Error())
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (aa *AuthApi) enqueueResetEmail(email, token string) {
	if aa.env == nil || aa.env.TaskClient == nil {
		return
	}
	task, tErr := types.NewResetEmailTask(&types.ResetEmailTask{Email: email, Token: token})
	if tErr != nil {
		level.Error(global.Logger).Log("msg", "failed to create reset email task", "error", tErr.Error())
		return
	}
	if _, qErr := aa.env.TaskClient.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(60*time.Second)); qErr != nil {
		level.Error(global.Logger).Log("msg", "failed to enqueue reset email task", "error", qErr.Error())
		return
	}
	metrics.ResetEmailsQueuedMetricsCount.Inc()
}

func toOutputAccount(account *types.Account) *types.OutputAccount {
	return &types.OutputAccount{
		Username:   account.Username,
		Email:      account.Email,
		Role:       account.Role,
		AliasLimit: account.AliasLimit,
		Enabled:    account.Enabled,
		Created:    account.Created,
	}
}
