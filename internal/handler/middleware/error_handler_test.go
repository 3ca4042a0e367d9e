package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serveError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlerMiddleware(zap.NewNop()))
	r.GET("/", func(c *gin.Context) {
		_ = c.Error(err)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestErrorHandler_MapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ierr.ErrWeakPassword, http.StatusBadRequest, "VALIDATION_ERROR"},
		{ierr.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{ierr.ErrLicenseInactive, http.StatusForbidden, "FORBIDDEN"},
		{ierr.ErrDeviceNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ierr.ErrMaxDevicesReached, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: provider down", ierr.ErrUpstream), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{ierr.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := serveError(t, tc.err)
			require.Equal(t, tc.status, rec.Code)

			var body dto.APIErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestErrorHandler_HidesUpstreamDetail(t *testing.T) {
	rec := serveError(t, fmt.Errorf("%w: sk_live_secret rejected", ierr.ErrUpstream))
	assert.NotContains(t, rec.Body.String(), "sk_live_secret")
}

func TestErrorHandler_RateLimitHeaders(t *testing.T) {
	resetAt := time.Now().Add(90 * time.Second)
	rec := serveError(t, &ierr.RateLimitError{
		Operation:  "login",
		Limit:      10,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: 90 * time.Second,
	})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, rec.Body.String(), `"operation":"login"`)
}
