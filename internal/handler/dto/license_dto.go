package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
)

type CreateLicenseRequest struct {
	Email           string                 `json:"email" binding:"required,email"`
	CustomerName    string                 `json:"customer_name" binding:"omitempty,max=200"`
	LicenseType     license.LicenseType    `json:"license_type" binding:"required,oneof=lifetime lifetime_basic monthly yearly"`
	MaxDevices      int                    `json:"max_devices" binding:"required,oneof=1 2 4 10"`
	ProductID       string                 `json:"product_id" binding:"omitempty,max=100"`
	InitialStatus   *license.LicenseStatus `json:"initial_status,omitempty" binding:"omitempty,oneof=active trial"`
	NextBillingDate *time.Time             `json:"next_billing_date,omitempty"`
}

type DeviceResponse struct {
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	ActivatedAt time.Time `json:"activated_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

func NewDeviceResponses(devices []license.Device) []DeviceResponse {
	out := make([]DeviceResponse, len(devices))
	for i, d := range devices {
		out[i] = DeviceResponse{
			DeviceID:    d.DeviceID,
			DeviceName:  d.DeviceName,
			ActivatedAt: d.ActivatedAt,
			LastUsedAt:  d.LastUsedAt,
		}
	}
	return out
}

type LicenseResponse struct {
	ID              uuid.UUID             `json:"id"`
	LicenseKey      string                `json:"license_key"`
	Email           string                `json:"email"`
	CustomerName    string                `json:"customer_name,omitempty"`
	Status          license.LicenseStatus `json:"status"`
	LicenseType     license.LicenseType   `json:"license_type"`
	MaxDevices      int                   `json:"max_devices"`
	ActiveDevices   []DeviceResponse      `json:"active_devices"`
	ProductID       string                `json:"product_id,omitempty"`
	PaymentID       *string               `json:"payment_id,omitempty"`
	SubscriptionID  *string               `json:"subscription_id,omitempty"`
	NextBillingDate *time.Time            `json:"next_billing_date,omitempty"`
	UpdatesEndDate  *time.Time            `json:"updates_end_date,omitempty"`
	HasPassword     bool                  `json:"has_password"`
	LastLoginAt     *time.Time            `json:"last_login_at,omitempty"`
	IdentityLinked  bool                  `json:"identity_linked"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func NewLicenseResponse(lic *license.License) *LicenseResponse {
	return &LicenseResponse{
		ID:              lic.ID,
		LicenseKey:      lic.LicenseKey,
		Email:           lic.Email,
		CustomerName:    lic.CustomerName,
		Status:          lic.Status,
		LicenseType:     lic.Type,
		MaxDevices:      lic.MaxDevices,
		ActiveDevices:   NewDeviceResponses(lic.ActiveDevices),
		ProductID:       lic.ProductID,
		PaymentID:       lic.PaymentID,
		SubscriptionID:  lic.SubscriptionID,
		NextBillingDate: lic.NextBillingDate,
		UpdatesEndDate:  lic.UpdatesEndDate,
		HasPassword:     lic.HasPassword(),
		LastLoginAt:     lic.LastLoginAt,
		IdentityLinked:  lic.FirebaseUID != nil,
		CreatedAt:       lic.CreatedAt,
		UpdatedAt:       lic.UpdatedAt,
	}
}

type ListLicensesRequest struct {
	Status      *license.LicenseStatus `form:"status" binding:"omitempty,oneof=active trial cancelled expired blocked"`
	LicenseType *license.LicenseType   `form:"license_type" binding:"omitempty,oneof=lifetime lifetime_basic monthly yearly"`
	Email       *string                `form:"email" binding:"omitempty,email"`
	Limit       int                    `form:"limit,default=20" binding:"omitempty,gte=1,lte=100"`
	Offset      int                    `form:"offset,default=0" binding:"omitempty,gte=0"`
}

type PaginatedLicenseResponse struct {
	Licenses   []*LicenseResponse `json:"licenses"`
	TotalCount int64              `json:"totalCount"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

type UpdateLicenseStatusRequest struct {
	Status *license.LicenseStatus `json:"status" binding:"required,oneof=active trial cancelled expired blocked"`
}

type ValidateLicenseRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	DeviceID   string `json:"device_id" binding:"omitempty,max=128"`
}

type ValidateLicenseResponse struct {
	IsValid          bool                  `json:"is_valid"`
	Status           license.LicenseStatus `json:"status"`
	LicenseType      license.LicenseType   `json:"license_type"`
	MaxDevices       int                   `json:"max_devices"`
	DeviceRegistered bool                  `json:"device_registered"`
	ExpiresAt        *time.Time            `json:"expires_at,omitempty"`
	UpdatesEndDate   *time.Time            `json:"updates_end_date,omitempty"`
}
