package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	devices *service.DeviceService
	guard   *ratelimit.Guard
	logger  *zap.Logger
}

func NewDeviceHandler(devices *service.DeviceService, guard *ratelimit.Guard, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		guard:   guard,
		logger:  logger.Named("DeviceHandler"),
	}
}

func (h *DeviceHandler) Activate(c *gin.Context) {
	var req dto.ActivateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind activation request", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	if err := h.guard.Check(c.Request.Context(), ratelimit.OpDeviceActivate, license.NormalizeKey(req.LicenseKey)); err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.devices.Activate(c.Request.Context(), service.ActivateInput{
		LicenseKey: req.LicenseKey,
		Email:      req.Email,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		Hardware:   req.HardwareInfo.Domain(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ActivateDeviceResponse{
		Success:       true,
		DeviceID:      res.DeviceID,
		LicenseType:   res.LicenseType,
		Status:        res.Status,
		ExpiresAt:     res.ExpiresAt,
		MaxDevices:    res.MaxDevices,
		ActiveDevices: res.ActiveDevices,
		AlreadyActive: res.AlreadyActive,
	})
}
