package dto

import "time"

type APIErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RateLimitDetails accompanies a RATE_LIMITED error.
type RateLimitDetails struct {
	Operation         string    `json:"operation"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	ResetAt           time.Time `json:"reset_at"`
}
