package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

type TrialHandler struct {
	trials *service.TrialService
	logger *zap.Logger
}

func NewTrialHandler(trials *service.TrialService, logger *zap.Logger) *TrialHandler {
	return &TrialHandler{
		trials: trials,
		logger: logger.Named("TrialHandler"),
	}
}

// Start answers 200 for a repeat request too; Success tells the two apart.
func (h *TrialHandler) Start(c *gin.Context) {
	var req dto.StartTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.trials.StartTrial(c.Request.Context(), req.DeviceID, service.TrialOptions{
		Email:      req.Email,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	status := http.StatusCreated
	if !res.Success {
		status = http.StatusOK
	}
	c.JSON(status, dto.StartTrialResponse{
		Success:       res.Success,
		Message:       res.Message,
		DaysRemaining: res.DaysRemaining,
		ExpiresAt:     res.ExpiresAt,
	})
}

func (h *TrialHandler) Status(c *gin.Context) {
	st, err := h.trials.CheckStatus(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.TrialStatusResponse{
		Found:         st.Found,
		Active:        st.Active,
		DaysRemaining: st.DaysRemaining,
		ExpiresAt:     st.ExpiresAt,
	})
}
