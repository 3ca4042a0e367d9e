package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyContextKey = "apiKeyID"
)

// APIKeyAuthMiddleware guards the admin API.
func APIKeyAuthMiddleware(apiKeys *service.APIKeyService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("APIKeyAuthMiddleware")
	return func(c *gin.Context) {
		apiKeyFromHeader := c.GetHeader(apiKeyHeader)
		if apiKeyFromHeader == "" {
			log.Debug("API Key header is missing", zap.String("header", apiKeyHeader))
			_ = c.Error(fmt.Errorf("%w: api key required", ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		key, err := apiKeys.Authenticate(c.Request.Context(), apiKeyFromHeader)
		if err != nil {
			log.Warn("API key rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		log.Debug("API key validated successfully", zap.String("prefix", key.Prefix), zap.String("key_id", key.ID.String()))
		c.Set(apiKeyContextKey, key.ID.String())
		c.Next()
	}
}
