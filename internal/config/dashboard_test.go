package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDashboardConfigIsValid(t *testing.T) {
	cfg := DefaultDashboardConfig()
	require.NoError(t, ValidateDashboardConfig(cfg))
	assert.Equal(t, []string{"REL"}, cfg.ProductCodes("Relay"))
	assert.Nil(t, cfg.ProductCodes("all"))
	assert.Equal(t, 14*24, int(cfg.ActivityWindow().Hours()))
}

func TestValidateDashboardConfigRejectsUnknownSource(t *testing.T) {
	cfg := DefaultDashboardConfig()
	cfg.ActivitySource = "kafka"
	assert.Error(t, ValidateDashboardConfig(cfg))

	cfg = DefaultDashboardConfig()
	cfg.OverThreshold = 0.5
	assert.Error(t, ValidateDashboardConfig(cfg))
}

func TestNormalizeDashboardConfig(t *testing.T) {
	cfg := DefaultDashboardConfig()
	cfg.Modes = map[string][]string{"Relay": {" rel "}, "USER": {"sub", ""}}
	cfg.Currencies = []string{"usd", " gbp"}
	cfg.JoinKey = " Name "

	out := normalizeDashboardConfig(cfg)
	assert.Equal(t, []string{"REL"}, out.Modes["relay"])
	assert.Equal(t, []string{"SUB"}, out.Modes["user"])
	assert.True(t, out.CurrencyAllowed("GBP"))
	assert.False(t, out.CurrencyAllowed("XYZ"))
	assert.Equal(t, JoinKeyName, out.JoinKey)
}
