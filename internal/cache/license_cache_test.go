package cache

import (
	"testing"
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseCache_AddGetInvalidate(t *testing.T) {
	c := NewLicenseCache(10, time.Minute)
	c.Add(&license.License{LicenseKey: "ABCD-1234-EFGH-5678", Status: license.StatusActive})

	got, ok := c.Get("ABCD-1234-EFGH-5678")
	require.True(t, ok)
	assert.Equal(t, license.StatusActive, got.Status)

	got.Status = license.StatusBlocked
	again, _ := c.Get("ABCD-1234-EFGH-5678")
	assert.Equal(t, license.StatusActive, again.Status, "callers receive copies")

	c.Invalidate("ABCD-1234-EFGH-5678")
	_, ok = c.Get("ABCD-1234-EFGH-5678")
	assert.False(t, ok)
}

func TestLicenseCache_Expires(t *testing.T) {
	c := NewLicenseCache(10, 20*time.Millisecond)
	c.Add(&license.License{LicenseKey: "ABCD-1234-EFGH-5678"})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("ABCD-1234-EFGH-5678")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLicenseCache_EvictsOldest(t *testing.T) {
	c := NewLicenseCache(2, time.Minute)
	c.Add(&license.License{LicenseKey: "A"})
	c.Add(&license.License{LicenseKey: "B"})
	c.Add(&license.License{LicenseKey: "C"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("A")
	assert.False(t, ok)
}
