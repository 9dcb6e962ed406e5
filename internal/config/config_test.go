package config_test

import (
	"testing"

	"github.com/mna/pex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLimitsDefaultsWhenUnset(t *testing.T) {
	l, err := config.LoadLimits()
	require.NoError(t, err)
	assert.Equal(t, 10000, l.MaxStackSize)
	assert.Equal(t, 1000, l.MaxFrames)
}

func TestLoadLimitsReadsEnvOverrides(t *testing.T) {
	t.Setenv("PEX_MAX_STACK_SIZE", "2048")
	t.Setenv("PEX_MAX_FRAMES", "64")

	l, err := config.LoadLimits()
	require.NoError(t, err)
	assert.Equal(t, 2048, l.MaxStackSize)
	assert.Equal(t, 64, l.MaxFrames)
}

func TestLoadLimitsRejectsUnparseableValue(t *testing.T) {
	t.Setenv("PEX_MAX_FRAMES", "not-a-number")
	_, err := config.LoadLimits()
	require.Error(t, err)
}
