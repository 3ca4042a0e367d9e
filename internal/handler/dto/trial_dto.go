package dto

import "time"

type StartTrialRequest struct {
	DeviceID   string `json:"device_id" binding:"required,max=128"`
	Email      string `json:"email" binding:"omitempty,email"`
	AppVersion string `json:"app_version" binding:"omitempty,max=50"`
}

type StartTrialResponse struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	DaysRemaining int       `json:"days_remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type TrialStatusResponse struct {
	Found         bool       `json:"found"`
	Active        bool       `json:"active"`
	DaysRemaining int        `json:"days_remaining"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}
