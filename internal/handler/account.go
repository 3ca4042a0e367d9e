package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/handler/middleware"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

// AccountHandler serves the customer dashboard. Every route runs behind SessionMiddleware.
type AccountHandler struct {
	licenses *service.LicenseService
	devices  *service.DeviceService
	identity *service.IdentityService
	guard    *ratelimit.Guard
	logger   *zap.Logger
}

func NewAccountHandler(
	licenses *service.LicenseService,
	devices *service.DeviceService,
	identity *service.IdentityService,
	guard *ratelimit.Guard,
	logger *zap.Logger,
) *AccountHandler {
	return &AccountHandler{
		licenses: licenses,
		devices:  devices,
		identity: identity,
		guard:    guard,
		logger:   logger.Named("AccountHandler"),
	}
}

func (h *AccountHandler) Get(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(ierr.ErrInvalidSession)
		return
	}
	lic, err := h.licenses.AccountInfo(c.Request.Context(), sess)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *AccountHandler) ListDevices(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(ierr.ErrInvalidSession)
		return
	}
	devices, err := h.devices.ListDevices(c.Request.Context(), sess)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeviceResponses(devices))
}

func (h *AccountHandler) DeactivateDevice(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(ierr.ErrInvalidSession)
		return
	}
	if err := h.guard.Check(c.Request.Context(), ratelimit.OpDeviceDeactivate, sess.LicenseKey); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.devices.Deactivate(c.Request.Context(), sess, sess.LicenseKey, c.Param("deviceId")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "Device deactivated"})
}

func (h *AccountHandler) CancelSubscription(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(ierr.ErrInvalidSession)
		return
	}
	if err := h.guard.Check(c.Request.Context(), ratelimit.OpSubscriptionCancel, sess.LicenseKey); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.licenses.CancelSubscription(c.Request.Context(), sess); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, dto.MessageResponse{
		Success: true,
		Message: "Subscription will not renew; access continues until the end of the paid period",
	})
}

func (h *AccountHandler) LinkFirebase(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		_ = c.Error(ierr.ErrInvalidSession)
		return
	}
	var req dto.FirebaseTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if err := h.guard.Check(c.Request.Context(), ratelimit.OpIdentityLink, sess.LicenseKey); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.identity.Link(c.Request.Context(), sess, req.IDToken); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: "Account linked"})
}
