package license

import (
	"context"
	"time"
)

type ListParams struct {
	Status *LicenseStatus
	Type   *LicenseType
	Email  *string
	Limit  int
	Offset int
}

// StateChange is an absolute transition requested by a provider event.
type StateChange struct {
	Status LicenseStatus
	// NextBillingDate replaces the stored date when set.
	NextBillingDate *time.Time
	// EndGrace clears the next billing date so a cancellation takes effect immediately.
	EndGrace bool
	// PreserveBlocked skips the change when the license is blocked.
	PreserveBlocked bool
	// RequireStatus applies the change only when the license currently has this status.
	RequireStatus *LicenseStatus
}

// Repository is the License Store. Methods that enforce invariants are conditional
// updates and report whether they matched instead of failing.
type Repository interface {
	Create(ctx context.Context, lic *License) error
	FindByKey(ctx context.Context, key string) (*License, error)
	FindByKeyAndEmail(ctx context.Context, key, email string) (*License, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*License, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*License, error)
	FindByFirebaseUID(ctx context.Context, uid string) (*License, error)
	List(ctx context.Context, params ListParams) ([]*License, int64, error)
	UpdateStatus(ctx context.Context, key string, status LicenseStatus) error

	// AddDevice appends dev only if the license is usable at now, has a free seat and
	// does not already hold dev.HardwareID.
	AddDevice(ctx context.Context, key string, dev Device, now time.Time) (bool, error)
	TouchDevice(ctx context.Context, key, hardwareID string, at time.Time) error
	RemoveDevice(ctx context.Context, key, deviceID string) (bool, error)

	// SetPasswordOnce stores hash only if no password was set before.
	SetPasswordOnce(ctx context.Context, key, email, hash string, at time.Time) (bool, error)
	ResetPassword(ctx context.Context, key, email, hash string, at time.Time) (bool, error)
	RecordLogin(ctx context.Context, key string, at time.Time) error
	LinkFirebaseUID(ctx context.Context, key, uid string) error

	// ApplyStateChange applies change only if no newer event was applied before.
	ApplyStateChange(ctx context.Context, key string, change StateChange, eventAt time.Time) (bool, error)
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}
