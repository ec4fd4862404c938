package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2/studies", cfg.Registries.CTGov.BaseURL)
	assert.Equal(t, 100, cfg.Registries.CTGov.PageSize)
	assert.True(t, cfg.Registries.CTGov.Enabled)
	assert.False(t, cfg.Registries.ISRCTN.Enabled)
	assert.Equal(t, "log", cfg.Notify.Provider)
	assert.Equal(t, 720, cfg.Watch.ActivityWindowHours)
	assert.Equal(t, 50, cfg.Watch.ActivityLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRIALWATCH_STORE_DRIVER", "sqlite")
	t.Setenv("TRIALWATCH_NOTIFY_PROVIDER", "resend")
	t.Setenv("TRIALWATCH_REGISTRIES_CTGOV_PAGE_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "resend", cfg.Notify.Provider)
	assert.Equal(t, 25, cfg.Registries.CTGov.PageSize)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loudest", Format: "json"}))
}
