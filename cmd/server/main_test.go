package main

import (
	"testing"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCatalog(t *testing.T) {
	catalog, err := buildCatalog([]config.ProductConfig{
		{ID: "pdt_AbC123XyZ", LicenseType: "lifetime", MaxDevices: 2},
	})
	require.NoError(t, err)

	plan, ok := catalog.Resolve("pdt_AbC123XyZ")
	require.True(t, ok)
	assert.Equal(t, license.Plan{Type: license.TypeLifetime, MaxDevices: 2}, plan)

	_, ok = catalog.Resolve("pdt_abc123xyz")
	assert.False(t, ok)
}

func TestBuildCatalog_Rejects(t *testing.T) {
	_, err := buildCatalog([]config.ProductConfig{
		{ID: "pdt_1", LicenseType: "lifetime", MaxDevices: 2},
		{ID: "pdt_1", LicenseType: "monthly", MaxDevices: 4},
	})
	assert.Error(t, err)

	_, err = buildCatalog([]config.ProductConfig{{LicenseType: "lifetime", MaxDevices: 2}})
	assert.Error(t, err)
}
