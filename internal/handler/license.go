package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ratelimit"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.LicenseService
	guard   *ratelimit.Guard
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, guard *ratelimit.Guard, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		guard:   guard,
		logger:  logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create license")
	var req dto.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	createdLicense, err := h.service.CreateLicense(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Service failed to create license", zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Info("License created successfully via handler", zap.String("id", createdLicense.ID.String()))
	c.JSON(http.StatusCreated, dto.NewLicenseResponse(createdLicense))
}

func (h *LicenseHandler) List(c *gin.Context) {
	var req dto.ListLicensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind or validate query parameters", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	licenses, totalCount, err := h.service.ListLicenses(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	licenseResponses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		licenseResponses[i] = dto.NewLicenseResponse(lic)
	}

	c.JSON(http.StatusOK, dto.PaginatedLicenseResponse{
		Licenses:   licenseResponses,
		TotalCount: totalCount,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

func (h *LicenseHandler) Get(c *gin.Context) {
	key := c.Param("key")
	lic, err := h.service.GetLicense(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *LicenseHandler) UpdateStatus(c *gin.Context) {
	key := c.Param("key")
	var req dto.UpdateLicenseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind status update", zap.String("key", logger.MaskKey(key)), zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	lic, err := h.service.UpdateLicenseStatus(c.Request.Context(), key, *req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

// Validate is the desktop app's periodic entitlement check.
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req dto.ValidateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	key := license.NormalizeKey(req.LicenseKey)
	if err := h.guard.Check(c.Request.Context(), ratelimit.OpLicenseValidate, key); err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.service.Validate(c.Request.Context(), key, req.DeviceID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ValidateLicenseResponse{
		IsValid:          res.Valid,
		Status:           res.Status,
		LicenseType:      res.LicenseType,
		MaxDevices:       res.MaxDevices,
		DeviceRegistered: res.DeviceRegistered,
		ExpiresAt:        res.ExpiresAt,
		UpdatesEndDate:   res.UpdatesEndDate,
	})
}
