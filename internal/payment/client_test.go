package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_CancelSubscription(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(&config.PaymentConfig{BaseURL: srv.URL + "/", APIKey: "sk_test"}, zap.NewNop())
	require.NotNil(t, c)
	require.NoError(t, c.CancelSubscription(context.Background(), "sub_123"))

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/subscriptions/sub_123", gotPath)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.Equal(t, true, gotBody["cancel_at_next_billing_date"])
}

func TestClient_ProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID_STATE","message":"subscription already cancelled"}`))
	}))
	defer srv.Close()

	c := NewClient(&config.PaymentConfig{BaseURL: srv.URL, APIKey: "sk_test"}, zap.NewNop())
	err := c.CancelSubscription(context.Background(), "sub_123")
	require.ErrorIs(t, err, ierr.ErrUpstream)
	assert.Contains(t, err.Error(), "subscription already cancelled")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(&config.PaymentConfig{BaseURL: srv.URL, APIKey: "sk_test", Timeout: 20 * time.Millisecond}, zap.NewNop())
	err := c.CancelSubscription(context.Background(), "sub_123")
	assert.ErrorIs(t, err, ierr.ErrUpstream)
}

func TestNewClient_Unconfigured(t *testing.T) {
	assert.Nil(t, NewClient(&config.PaymentConfig{}, zap.NewNop()))
}
