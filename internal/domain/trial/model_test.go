package trial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysRemaining(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tr := &Trial{StartedAt: start, ExpiresAt: start.AddDate(0, 0, 7)}

	assert.Equal(t, 7, tr.DaysRemaining(start))
	assert.Equal(t, 7, tr.DaysRemaining(start.Add(time.Minute)))
	assert.Equal(t, 1, tr.DaysRemaining(tr.ExpiresAt.Add(-time.Millisecond)))
	assert.Equal(t, 0, tr.DaysRemaining(tr.ExpiresAt))
	assert.Equal(t, 0, tr.DaysRemaining(tr.ExpiresAt.Add(time.Hour)))
}

func TestIsActive(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tr := &Trial{StartedAt: start, ExpiresAt: start.AddDate(0, 0, 7)}

	assert.True(t, tr.IsActive(start))
	assert.True(t, tr.IsActive(tr.ExpiresAt.Add(-time.Nanosecond)))
	assert.False(t, tr.IsActive(tr.ExpiresAt))
}
