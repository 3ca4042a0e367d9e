package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	verifier *webhook.Verifier
	service  *service.WebhookService
	logger   *zap.Logger
}

func NewWebhookHandler(verifier *webhook.Verifier, service *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		service:  service,
		logger:   logger.Named("WebhookHandler"),
	}
}

// Receive verifies the signature over the raw body before anything is parsed.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: unreadable webhook body: %v", ierr.ErrValidation, err))
		return
	}

	id := c.GetHeader(webhook.HeaderID)
	ts := c.GetHeader(webhook.HeaderTimestamp)
	if err := h.verifier.Verify(id, ts, c.GetHeader(webhook.HeaderSignature), body); err != nil {
		h.logger.Warn("Rejected webhook", zap.String("webhook_id", id), zap.Error(err))
		_ = c.Error(ierr.ErrInvalidSignature)
		return
	}

	var evt webhook.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		_ = c.Error(fmt.Errorf("%w: malformed webhook payload: %v", ierr.ErrValidation, err))
		return
	}
	evt.ID = id
	if evt.Timestamp.IsZero() {
		// Verify already parsed it.
		sec, _ := strconv.ParseInt(ts, 10, 64)
		evt.Timestamp = time.Unix(sec, 0).UTC()
	}

	res, err := h.service.HandleEvent(c.Request.Context(), &evt)
	if err != nil {
		switch {
		case errors.Is(err, ierr.ErrValidation):
		case errors.Is(err, ierr.ErrLicensePending), errors.Is(err, ierr.ErrWebhookInFlight):
			h.logger.Warn("Webhook deferred, awaiting redelivery", zap.String("webhook_id", id), zap.String("type", string(evt.Type)), zap.Error(err))
		default:
			h.logger.Error("Webhook processing failed", zap.String("webhook_id", id), zap.String("type", string(evt.Type)), zap.Error(err))
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAckResponse{
		Received:  true,
		Duplicate: res.Duplicate,
		Action:    res.Action,
	})
}
