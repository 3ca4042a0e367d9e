package dto

import (
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
)

type SetPasswordRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
}

type LoginRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
}

type ResetPasswordRequest struct {
	LicenseKey  string `json:"license_key" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	NewPassword string `json:"new_password" binding:"required"`
}

type FirebaseTokenRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// SessionResponse also carries the token for clients that cannot use cookies.
type SessionResponse struct {
	Token      string                `json:"token"`
	ExpiresAt  time.Time             `json:"expires_at"`
	LicenseKey string                `json:"license_key"`
	Email      string                `json:"email"`
	Status     license.LicenseStatus `json:"status"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
