package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_ProductIDsKeepCase(t *testing.T) {
	path := writeConfig(t, `
products:
  - id: pdt_AbC123XyZ
    licenseType: lifetime
    maxDevices: 2
  - id: pdt_Monthly9Q
    licenseType: monthly
    maxDevices: 4
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Products, 2)
	assert.Equal(t, ProductConfig{ID: "pdt_AbC123XyZ", LicenseType: "lifetime", MaxDevices: 2}, cfg.Products[0])
	assert.Equal(t, ProductConfig{ID: "pdt_Monthly9Q", LicenseType: "monthly", MaxDevices: 4}, cfg.Products[1])
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DefaultProducts(), cfg.Products)
	assert.Equal(t, 30*24*time.Hour, cfg.Webhook.Retention)
	assert.Equal(t, "@daily", cfg.Worker.WebhookPurgeCron)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.ClaimTTL)
}
