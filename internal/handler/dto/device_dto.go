package dto

import (
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
)

type HardwareInfo struct {
	OS       string `json:"os" binding:"required,max=100"`
	Hostname string `json:"hostname" binding:"required,max=255"`
	CPUs     int    `json:"cpus" binding:"required,gte=1,lte=4096"`
	Arch     string `json:"arch" binding:"required,max=50"`
	Platform string `json:"platform" binding:"required,max=50"`
}

type ActivateDeviceRequest struct {
	LicenseKey   string       `json:"license_key" binding:"required"`
	Email        string       `json:"email" binding:"omitempty,email"`
	DeviceID     string       `json:"device_id" binding:"omitempty,max=128"`
	DeviceName   string       `json:"device_name" binding:"omitempty,max=200"`
	HardwareInfo HardwareInfo `json:"hardware_info" binding:"required"`
}

func (h HardwareInfo) Domain() license.HardwareInfo {
	return license.HardwareInfo{
		OS:       h.OS,
		Hostname: h.Hostname,
		CPUs:     h.CPUs,
		Arch:     h.Arch,
		Platform: h.Platform,
	}
}

type ActivateDeviceResponse struct {
	Success       bool                  `json:"success"`
	DeviceID      string                `json:"device_id"`
	LicenseType   license.LicenseType   `json:"license_type"`
	Status        license.LicenseStatus `json:"status"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	MaxDevices    int                   `json:"max_devices"`
	ActiveDevices int                   `json:"active_devices"`
	AlreadyActive bool                  `json:"already_active"`
}
