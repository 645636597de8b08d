package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("FACILITATOR_URL", "https://facilitator.example")
	t.Setenv("SWAP_API_URL", "https://swap.example")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://facilitator.example", cfg.FacilitatorURL)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "Tip payment", cfg.TipDescription)
	assert.Empty(t, cfg.FacilitatorAPIKey)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9999")
	t.Setenv("REQUEST_TIMEOUT", "30s")
	t.Setenv("FACILITATOR_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "secret", cfg.FacilitatorAPIKey)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("FACILITATOR_URL", "")
	t.Setenv("SWAP_API_URL", "https://swap.example")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("FACILITATOR_URL", "https://facilitator.example")
	t.Setenv("SWAP_API_URL", "")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadBadTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
}
