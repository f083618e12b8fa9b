package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_DefaultsFillEmptyConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: dev\n"))
	require.NoError(t, err)

	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, "sim", cfg.Feed.Source)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 0.25, cfg.Bracket.TickSize)
	assert.Equal(t, int64(20), cfg.Bracket.StopTicks)
	assert.Equal(t, int64(40), cfg.Bracket.TargetTicks)
	assert.Equal(t, int64(24), cfg.Bracket.BreakEvenTicks)
	assert.Equal(t, 8, cfg.Coord.Lanes)
	assert.Equal(t, 3, cfg.Gateway.BreakerThreshold)
}

func TestLoad_ExplicitValuesWinOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  http_addr: ":8080"
risk:
  max_open_positions: 1
bracket:
  stop_ticks: 10
coord:
  lanes: 2
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, 1, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, int64(10), cfg.Bracket.StopTicks)
	assert.Equal(t, 2, cfg.Coord.Lanes)
	// Untouched sections still get defaults.
	assert.Equal(t, int64(40), cfg.Bracket.TargetTicks)
}

func TestLoad_WeaklyTypedNumbers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
bracket:
  stop_ticks: "15"
risk:
  daily_loss_limit: "750"
`))
	require.NoError(t, err)
	assert.Equal(t, int64(15), cfg.Bracket.StopTicks)
	assert.Equal(t, 750.0, cfg.Risk.DailyLossLimit)
}

func TestLoad_RejectsUnknownFeedSource(t *testing.T) {
	_, err := Load(writeConfig(t, "feed:\n  source: carrier-pigeon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed.source")
}

func TestLoad_ReplayRequiresPath(t *testing.T) {
	_, err := Load(writeConfig(t, "feed:\n  source: replay\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay_path")
}

func TestLoad_BreakEvenOffsetMustBeInsideTrigger(t *testing.T) {
	_, err := Load(writeConfig(t, `
bracket:
  break_even_ticks: 4
  break_even_offset_ticks: 4
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "break_even_offset_ticks")
}

func TestLoad_TelegramRequiresCredentialsWhenEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, `
notify:
  telegram:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
