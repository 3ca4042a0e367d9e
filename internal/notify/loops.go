// Package notify delivers transactional email.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const transactionalPath = "/api/v1/transactional"

// LoopsClient sends transactional email through the Loops HTTP API. Outbound
// requests are paced by a token bucket shared by all workers in the process.
type LoopsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewLoopsClient(cfg *config.EmailConfig, logger *zap.Logger) *LoopsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &LoopsClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("LoopsClient"),
	}
}

type transactionalRequest struct {
	TransactionalID string         `json:"transactionalId"`
	Email           string         `json:"email"`
	DataVariables   map[string]any `json:"dataVariables,omitempty"`
}

type loopsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Send returns an ierr.ErrValidation-wrapped error for requests the provider will
// never accept, and ierr.ErrUpstream for failures worth retrying.
func (c *LoopsClient) Send(ctx context.Context, email service.Email) error {
	if c.apiKey == "" {
		c.logger.Warn("Email API key not configured, dropping message", zap.String("template", email.TransactionalID))
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: email rate limiter: %v", ierr.ErrUpstream, err)
	}

	body, err := json.Marshal(transactionalRequest{
		TransactionalID: email.TransactionalID,
		Email:           email.Address,
		DataVariables:   email.DataVariables,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to encode email: %v", ierr.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transactionalPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if email.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", email.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: email provider unreachable: %v", ierr.ErrUpstream, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Idempotency key already used: the message went out before.
		c.logger.Info("Email already sent for idempotency key", zap.String("idempotency_key", email.IdempotencyKey))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ierr.ErrUpstream, resp.StatusCode)
	default:
		var lr loopsResponse
		if json.Unmarshal(respBody, &lr) == nil && lr.Message != "" {
			return fmt.Errorf("%w: HTTP %d: %s", ierr.ErrValidation, resp.StatusCode, lr.Message)
		}
		return fmt.Errorf("%w: HTTP %d", ierr.ErrValidation, resp.StatusCode)
	}
}
