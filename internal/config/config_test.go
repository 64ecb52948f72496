package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VRENT_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, int64(1800), cfg.Billing.TaxBps)
	assert.Equal(t, 6, cfg.Booking.CancellationCutoffHour)
	assert.Equal(t, 2*time.Hour, cfg.Booking.NoShowTimeout())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vrent.yaml")
	yamlDoc := `
http:
  addr: ":9090"
billing:
  tax_bps: 500
booking:
  timezone: "UTC"
  no_show_timeout_minutes: 30
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("VRENT_CONFIG", path)
	t.Setenv("VRENT_TAX_BPS", "1200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, int64(1200), cfg.Billing.TaxBps, "env must win over file")
	assert.Equal(t, 30*time.Minute, cfg.Booking.NoShowTimeout())
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	// untouched sections keep their defaults
	assert.Equal(t, 120, cfg.Booking.ExtensionPaymentGraceMins)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tax above 100%", func(c *Config) { c.Billing.TaxBps = 10001 }},
		{"cutoff hour", func(c *Config) { c.Booking.CancellationCutoffHour = 24 }},
		{"bad timezone", func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }},
		{"no-show timeout", func(c *Config) { c.Booking.NoShowTimeoutMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
