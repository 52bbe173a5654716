package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
loop:
  symbols: [SPY, QQQ]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, time.Second, c.Loop.Cadence)
	assert.Equal(t, 600*time.Millisecond, c.Loop.FanoutDeadline)
	assert.Equal(t, 100*time.Millisecond, c.Loop.PrepareDeadline)
	assert.Equal(t, 950*time.Millisecond, c.StageBudget())
	assert.Equal(t, 0.5, c.Risk.AttenuationFactor)
	assert.Equal(t, 0.25, c.Risk.MaxConcentration)
	assert.Equal(t, []string{"technical", "sentiment", "flow"}, c.Producers.Enabled)
	assert.Equal(t, "regular", c.Schedule.Mode)
	assert.LessOrEqual(t, c.StageBudget(), c.Loop.Cadence)
}

func TestParseRejectsStageBudgetOverCadence(t *testing.T) {
	_, err := Parse([]byte(minimal + `
  cadence: 500ms
  fanout_deadline: 400ms
  synthesis_deadline: 100ms
  gate_deadline: 100ms
`))
	require.ErrorIs(t, err, ErrFatalConfig)
}

func TestParseRejectsAttenuationOutOfRange(t *testing.T) {
	_, err := Parse([]byte(minimal + `
risk:
  attenuation_factor: 1
`))
	require.ErrorIs(t, err, ErrFatalConfig)
}

func TestParseRequiresSymbols(t *testing.T) {
	_, err := Parse([]byte("environment: test\n"))
	require.ErrorIs(t, err, ErrFatalConfig)
}

func TestLoadWithEnvOverlayAndEnv(t *testing.T) {
	dir := t.TempDir()
	limits := filepath.Join(dir, "limits.toml")
	require.NoError(t, os.WriteFile(limits, []byte("[risk]\nmax_var = 1234.5\nmax_concentration = 0.1\n"), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(minimal+"risk:\n  limits_file: "+limits+"\n"), 0o600))

	t.Setenv("TRADELOOP_SYMBOLS", "IWM")
	c, err := LoadWithEnv(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 1234.5, c.Risk.MaxVaR)
	assert.Equal(t, 0.1, c.Risk.MaxConcentration)
	assert.Equal(t, 0.5, c.Risk.AttenuationFactor)
	assert.Equal(t, []string{"IWM"}, c.Loop.Symbols)
}

func TestLoadWithEnvBadVaR(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(minimal), 0o600))
	t.Setenv("RISK_MAX_VAR", "lots")

	_, err := LoadWithEnv(cfgPath)
	require.ErrorIs(t, err, ErrFatalConfig)
}
