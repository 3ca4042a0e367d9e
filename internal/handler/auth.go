package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

type AuthHandler struct {
	credentials *service.CredentialService
	identity    *service.IdentityService
	sessions    *service.SessionService
	cookie      config.SessionConfig
	logger      *zap.Logger
}

func NewAuthHandler(
	credentials *service.CredentialService,
	identity *service.IdentityService,
	sessions *service.SessionService,
	cookie config.SessionConfig,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		identity:    identity,
		sessions:    sessions,
		cookie:      cookie,
		logger:      logger.Named("AuthHandler"),
	}
}

func (h *AuthHandler) SetPassword(c *gin.Context) {
	var req dto.SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	err := h.credentials.SetPassword(c.Request.Context(), service.SetPasswordInput{
		LicenseKey: req.LicenseKey,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "Password set"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind login request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	acct, err := h.credentials.ValidatePassword(c.Request.Context(), service.LoginInput{
		LicenseKey: req.LicenseKey,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.startSession(c, acct)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	err := h.credentials.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		LicenseKey:  req.LicenseKey,
		Email:       req.Email,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "Password updated"})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, "", -1, "/", h.cookie.CookieDomain, h.cookie.CookieSecure, true)
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true})
}

// FirebaseLogin signs in with an ID token whose uid was linked to a license before.
func (h *AuthHandler) FirebaseLogin(c *gin.Context) {
	var req dto.FirebaseTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	acct, err := h.identity.Login(c.Request.Context(), req.IDToken)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.startSession(c, acct)
}

func (h *AuthHandler) startSession(c *gin.Context, acct *service.Account) {
	token, expiresAt, err := h.sessions.Issue(service.Session{LicenseKey: acct.LicenseKey, Email: acct.Email})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, token, int(time.Until(expiresAt).Seconds()), "/", h.cookie.CookieDomain, h.cookie.CookieSecure, true)

	h.logger.Info("Dashboard session started", zap.String("license_key", logger.MaskKey(acct.LicenseKey)))
	c.JSON(http.StatusOK, dto.SessionResponse{
		Token:      token,
		ExpiresAt:  expiresAt,
		LicenseKey: acct.LicenseKey,
		Email:      acct.Email,
		Status:     acct.Status,
	})
}
