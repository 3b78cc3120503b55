package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "ILS", cfg.Payments.DefaultCurrency)
	assert.Equal(t, 300, cfg.RAG.CacheTTLSeconds)
	assert.Equal(t, "cohere_chat", cfg.RAG.BreakerName)
	assert.Equal(t, 3, cfg.RateLimit.MagicLinkPerHourPerIP)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PAZPAZ_PORT", "9090")
	t.Setenv("PAZPAZ_ENV", "production")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	require.NoError(t, err)
}

func TestLoadExistingFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("server:\n  port: \"7000\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
}
