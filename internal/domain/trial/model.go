package trial

import (
	"time"
)

const DefaultDurationDays = 7

type Trial struct {
	DeviceID   string    `db:"device_id" json:"device_id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	Email      *string   `db:"email" json:"email,omitempty"`
	AppVersion *string   `db:"app_version" json:"app_version,omitempty"`
}

// IsActive is evaluated at call time; trials never store an active flag.
func (t *Trial) IsActive(now time.Time) bool {
	return t.ExpiresAt.After(now)
}

// DaysRemaining rounds up, so any positive remainder counts as a full day.
func (t *Trial) DaysRemaining(now time.Time) int {
	remaining := t.ExpiresAt.Sub(now).Milliseconds()
	if remaining <= 0 {
		return 0
	}
	const dayMillis = int64(24 * time.Hour / time.Millisecond)
	return int((remaining + dayMillis - 1) / dayMillis)
}
