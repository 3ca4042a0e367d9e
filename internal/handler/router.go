package handler

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/handler/middleware"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowOrigins      []string
	SessionCookieName string
	AccessLog         bool
}

// Handlers groups everything NewRouter mounts. Webhook may be nil when no signing secret is configured.
type Handlers struct {
	Health   *HealthHandler
	License  *LicenseHandler
	Device   *DeviceHandler
	Trial    *TrialHandler
	Auth     *AuthHandler
	Account  *AccountHandler
	Webhook  *WebhookHandler
	APIKey   *APIKeyHandler
	Sessions *service.SessionService
	APIKeys  *service.APIKeyService
	Guard    *ratelimit.Guard
}

func NewRouter(cfg RouterConfig, h Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	if cfg.AccessLog {
		router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC1123),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		}))
	}
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	router.GET("/healthz", h.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/devices/activate", h.Device.Activate)
		apiV1.POST("/licenses/validate", h.License.Validate)

		trialRoutes := apiV1.Group("/trials")
		{
			trialRoutes.POST("", middleware.RateLimitByIP(h.Guard, ratelimit.OpTrialStart), h.Trial.Start)
			trialRoutes.GET("/:deviceId", h.Trial.Status)
		}

		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/password", middleware.RateLimitByIP(h.Guard, ratelimit.OpPasswordSet), h.Auth.SetPassword)
			authRoutes.POST("/login", middleware.RateLimitByIP(h.Guard, ratelimit.OpLogin), h.Auth.Login)
			authRoutes.POST("/password/reset", middleware.RateLimitByIP(h.Guard, ratelimit.OpPasswordReset), h.Auth.ResetPassword)
			authRoutes.POST("/logout", h.Auth.Logout)
			authRoutes.POST("/firebase", middleware.RateLimitByIP(h.Guard, ratelimit.OpLogin), h.Auth.FirebaseLogin)
		}

		if h.Webhook != nil {
			apiV1.POST("/webhooks/payments", h.Webhook.Receive)
		}

		accountRoutes := apiV1.Group("/account")
		accountRoutes.Use(middleware.SessionMiddleware(h.Sessions, cfg.SessionCookieName, logger))
		{
			accountRoutes.GET("", h.Account.Get)
			accountRoutes.GET("/devices", h.Account.ListDevices)
			accountRoutes.DELETE("/devices/:deviceId", h.Account.DeactivateDevice)
			accountRoutes.POST("/subscription/cancel", h.Account.CancelSubscription)
			accountRoutes.POST("/firebase", h.Account.LinkFirebase)
		}

		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(middleware.APIKeyAuthMiddleware(h.APIKeys, logger))
		{
			licenseRoutes := adminRoutes.Group("/licenses")
			{
				licenseRoutes.POST("", h.License.Create)
				licenseRoutes.GET("", h.License.List)
				licenseRoutes.GET("/:key", h.License.Get)
				licenseRoutes.PATCH("/:key/status", h.License.UpdateStatus)
			}
			apiKeyRoutes := adminRoutes.Group("/apikeys")
			{
				apiKeyRoutes.POST("", h.APIKey.Create)
				apiKeyRoutes.GET("", h.APIKey.List)
				apiKeyRoutes.DELETE("/:id", h.APIKey.Revoke)
			}
		}
	}

	return router
}
