// Package payment talks to the payment provider's REST API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"go.uber.org/zap"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns nil when no provider is configured.
func NewClient(cfg *config.PaymentConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("PaymentClient"),
	}
}

type updateSubscriptionRequest struct {
	CancelAtNextBillingDate bool `json:"cancel_at_next_billing_date"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CancelSubscription stops renewal at the end of the paid period.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	body, err := json.Marshal(updateSubscriptionRequest{CancelAtNextBillingDate: true})
	if err != nil {
		return fmt.Errorf("payment: failed to encode request: %w", err)
	}
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.doRequest(ctx, http.MethodPatch, path, body); err != nil {
		return err
	}
	c.logger.Info("Subscription set to cancel at period end", zap.String("subscription_id", subscriptionID))
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) error {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("payment: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: payment provider unreachable: %v", ierr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payment: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("%w: %s - %s", ierr.ErrUpstream, errResp.Code, errResp.Message)
		}
		return fmt.Errorf("%w: HTTP %d", ierr.ErrUpstream, resp.StatusCode)
	}
	return nil
}
