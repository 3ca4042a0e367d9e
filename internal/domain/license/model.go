package license

import (
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	StatusActive    LicenseStatus = "active"
	StatusTrial     LicenseStatus = "trial"
	StatusCancelled LicenseStatus = "cancelled"
	StatusExpired   LicenseStatus = "expired"
	StatusBlocked   LicenseStatus = "blocked"
)

func (s LicenseStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusCancelled, StatusExpired, StatusBlocked:
		return true
	}
	return false
}

type LicenseType string

const (
	TypeLifetime      LicenseType = "lifetime"
	TypeLifetimeBasic LicenseType = "lifetime_basic"
	TypeMonthly       LicenseType = "monthly"
	TypeYearly        LicenseType = "yearly"
)

func (t LicenseType) Valid() bool {
	switch t {
	case TypeLifetime, TypeLifetimeBasic, TypeMonthly, TypeYearly:
		return true
	}
	return false
}

func (t LicenseType) IsSubscription() bool {
	return t == TypeMonthly || t == TypeYearly
}

// Device is one occupied seat. DeviceID is issued by the server, HardwareID is derived
// from the client's hardware fingerprint.
type Device struct {
	DeviceID    string    `json:"deviceId"`
	HardwareID  string    `json:"hardwareId"`
	DeviceName  string    `json:"deviceName"`
	ActivatedAt time.Time `json:"activatedAt"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
}

type License struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	LicenseKey      string        `db:"license_key" json:"license_key"`
	Email           string        `db:"email" json:"email"`
	CustomerName    string        `db:"customer_name" json:"customer_name,omitempty"`
	Status          LicenseStatus `db:"status" json:"status"`
	Type            LicenseType   `db:"license_type" json:"license_type"`
	MaxDevices      int           `db:"max_devices" json:"max_devices"`
	ActiveDevices   []Device      `db:"active_devices" json:"active_devices"`
	ProductID       string        `db:"product_id" json:"product_id,omitempty"`
	PaymentID       *string       `db:"payment_id" json:"payment_id,omitempty"`
	SubscriptionID  *string       `db:"subscription_id" json:"subscription_id,omitempty"`
	NextBillingDate *time.Time    `db:"next_billing_date" json:"next_billing_date,omitempty"`
	UpdatesEndDate  *time.Time    `db:"updates_end_date" json:"updates_end_date,omitempty"`
	PasswordHash    *string       `db:"password_hash" json:"-"`
	PasswordSetAt   *time.Time    `db:"password_set_at" json:"password_set_at,omitempty"`
	LastLoginAt     *time.Time    `db:"last_login_at" json:"last_login_at,omitempty"`
	FirebaseUID     *string       `db:"firebase_uid" json:"firebase_uid,omitempty"`
	LastEventAt     *time.Time    `db:"last_event_at" json:"last_event_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// IsUsable reports whether the license currently grants access. A cancelled
// subscription stays usable until its paid period ends.
func (l *License) IsUsable(now time.Time) bool {
	switch l.Status {
	case StatusActive, StatusTrial:
		return true
	case StatusCancelled:
		return l.NextBillingDate != nil && l.NextBillingDate.After(now)
	}
	return false
}

func (l *License) HasPassword() bool {
	return l.PasswordSetAt != nil && l.PasswordHash != nil
}

func (l *License) DeviceByHardwareID(hardwareID string) (Device, bool) {
	for _, d := range l.ActiveDevices {
		if d.HardwareID == hardwareID {
			return d, true
		}
	}
	return Device{}, false
}

func (l *License) DeviceByID(deviceID string) (Device, bool) {
	for _, d := range l.ActiveDevices {
		if d.DeviceID == deviceID {
			return d, true
		}
	}
	return Device{}, false
}

// ExpiresAt is the end of the paid period for subscriptions, nil for lifetime licenses.
func (l *License) ExpiresAt() *time.Time {
	if !l.Type.IsSubscription() {
		return nil
	}
	return l.NextBillingDate
}

// Clone returns a deep copy, so callers can't mutate a stored record through shared slices or pointers.
func (l *License) Clone() *License {
	c := *l
	c.ActiveDevices = append([]Device(nil), l.ActiveDevices...)
	c.PaymentID = cloneString(l.PaymentID)
	c.SubscriptionID = cloneString(l.SubscriptionID)
	c.PasswordHash = cloneString(l.PasswordHash)
	c.FirebaseUID = cloneString(l.FirebaseUID)
	c.NextBillingDate = cloneTime(l.NextBillingDate)
	c.UpdatesEndDate = cloneTime(l.UpdatesEndDate)
	c.PasswordSetAt = cloneTime(l.PasswordSetAt)
	c.LastLoginAt = cloneTime(l.LastLoginAt)
	c.LastEventAt = cloneTime(l.LastEventAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
