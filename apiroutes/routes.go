package apiroutes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/siparmail/sipar-server/api"
	"github.com/siparmail/sipar-server/api/interceptors"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/metrics"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/services"
	"github.com/siparmail/sipar-server/types"
)

// REST API routes
func ConfigRoutes(router *gin.Engine, dbSelector *repository.CouchDBSelector, env *types.Environment) *gin.Engine {
	// init metrics
	if global.Conf.Metrics.Enabled {

		metrics.InitMetrics()

		authorized := router.Group("/metrics", gin.BasicAuth(gin.Accounts{
			global.Conf.Metrics.Username: global.Conf.Metrics.Password,
		}))

		authorized.GET("", gin.WrapH(promhttp.Handler()))
	}

	// SERVICE definitions
	userService := services.NewUserService(dbSelector, env)
	tokenService := services.NewTokenService(dbSelector)
	aliasService := services.NewAliasService(dbSelector)
	messageService := services.NewMessageService(dbSelector)
	inboundService := services.NewInboundService(dbSelector, env)

	// API definitions
	authApi := api.NewAuthApi(userService, tokenService, env)
	userApi := api.NewUserApi(userService)
	aliasApi := api.NewAliasApi(aliasService)
	emailApi := api.NewEmailApi(messageService, env)
	adminApi := api.NewAdminApi(userService)
	webhookApi := api.NewInboundWebhookApi(inboundService)
	healthApi := api.NewHealthCheckApi()

	// PUBLIC API
	publicApi := router.Group("/api", metrics.MetricsMiddleware())
	{
		publicApi.GET("/healthcheck", healthApi.HealthCheck)
		publicApi.POST("/auth/signup", authApi.Signup)
		publicApi.POST("/auth/login", authApi.Login)
		publicApi.POST("/auth/logout", authApi.Logout)
		publicApi.POST("/auth/reset/request", authApi.ResetRequest)
		publicApi.POST("/auth/reset/confirm", authApi.ResetConfirm)
	}

	// SESSION protected API
	sessionApi := router.Group("/api", metrics.MetricsMiddleware(), interceptors.SessionMiddleware(tokenService))
	{
		sessionApi.GET("/me", userApi.Me)

		sessionApi.GET("/aliases", aliasApi.ListAliases)
		sessionApi.POST("/aliases", aliasApi.CreateAlias)
		sessionApi.DELETE("/aliases/:local", aliasApi.DeleteAlias)

		sessionApi.GET("/emails", emailApi.ListEmails)
		sessionApi.GET("/emails/:id", emailApi.GetEmail)
		sessionApi.GET("/emails/:id/raw", emailApi.GetRawEmail)
		sessionApi.DELETE("/emails/:id", emailApi.DeleteEmail)
	}

	// ADMIN API
	adminGroup := router.Group("/api/admin", metrics.MetricsMiddleware(), interceptors.SessionMiddleware(tokenService), interceptors.AdminMiddleware())
	{
		adminGroup.GET("/users", adminApi.ListUsers)
		adminGroup.PATCH("/users/:id", adminApi.PatchUser)
		adminGroup.DELETE("/users/:id", adminApi.DeleteUser)
	}

	// webhook with basic authentication, registered only when the
	// provider key is configured
	if global.Conf.Webhook.Key != "" {
		inboundWebhook := router.Group("/webhook", gin.BasicAuth(gin.Accounts{
			"sipar": global.Conf.Webhook.Key,
		}))
		{
			inboundWebhook.POST("/inbound", webhookApi.ReceiveMail)
		}
	}

	return router
}
