package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

func TestCfgBacktest_DefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestCfgBacktest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Backtest)
	}{
		{"zero cash", func(c *Backtest) { c.InitialCash = fixed.Zero }},
		{"zero timeframe", func(c *Backtest) { c.Timeframe = 0 }},
		{"end before start", func(c *Backtest) {
			c.Start = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			c.End = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		}},
		{"fill ratio above one", func(c *Backtest) { c.MaxFillRatio = fixed.Two }},
		{"negative latency", func(c *Backtest) { c.Latency.Events = -1 }},
		{"duplicate symbol", func(c *Backtest) { c.Symbols = []string{"BTC", "BTC"} }},
		{"no slippage model", func(c *Backtest) { c.Slippage.Name = "" }},
		{"negative margin", func(c *Backtest) { c.Risk.MarginAllowance = fixed.NegOne }},
		{"snapshot cadence", func(c *Backtest) { c.SnapshotEvery = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), common.ErrConfiguration)
		})
	}
}

func TestCfgBacktest_ValidateCollectsAll(t *testing.T) {
	c := Default()
	c.InitialCash = fixed.Zero
	c.Timeframe = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_cash")
	assert.Contains(t, err.Error(), "timeframe")
}

func TestCfgBacktest_Clone(t *testing.T) {
	c := Default()
	c.Symbols = []string{"BTC"}
	c.Strategy.Params = map[string]string{"fast": "5"}

	clone := c.Clone()
	clone.Symbols[0] = "ETH"
	clone.Strategy.Params["fast"] = "7"

	assert.Equal(t, "BTC", c.Symbols[0])
	assert.Equal(t, "5", c.Strategy.Params["fast"])
	assert.True(t, c.HasSymbol("BTC"))
	assert.False(t, c.HasSymbol("ETH"))
	assert.True(t, Default().HasSymbol("anything"))
}

func TestCfgBacktest_Fingerprint(t *testing.T) {
	a, err := Default().Fingerprint()
	require.NoError(t, err)
	b, err := Default().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c := Default()
	c.RandomSeed = 7
	other, err := c.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestCfgLoad_Yaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	content := `
symbols: [BTCUSDT, ETHUSDT]
start: 2024-01-01T00:00:00Z
timeframe: 1h
initial_cash: 25000.50
random_seed: 7
slippage:
  name: fixed_bps
  value: 5
commission:
  name: percentage
  value: "0.001"
latency:
  events: 2
  delay: 250ms
risk:
  max_leverage: 2
  allow_short: false
max_fill_ratio: 0.5
strategy:
  name: smacross
  params:
    fast: "5"
    slow: "20"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Symbols)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.Start.UTC())
	assert.Equal(t, time.Hour, c.Timeframe)
	assert.True(t, c.InitialCash.Eq(fixed.MustParse("25000.50")))
	assert.Equal(t, int64(7), c.RandomSeed)
	assert.Equal(t, "fixed_bps", c.Slippage.Name)
	assert.True(t, c.Slippage.Value.Eq(fixed.Five))
	assert.True(t, c.Commission.Value.Eq(fixed.MustParse("0.001")))
	assert.Equal(t, 2, c.Latency.Events)
	assert.Equal(t, 250*time.Millisecond, c.Latency.Delay)
	assert.True(t, c.Risk.MaxLeverage.Eq(fixed.Two))
	assert.False(t, c.Risk.AllowShort)
	assert.True(t, c.MaxFillRatio.Eq(fixed.PointFive))
	assert.Equal(t, "smacross", c.Strategy.Name)
	assert.Equal(t, "20", c.Strategy.Params["slow"])

	// untouched keys keep their defaults
	assert.Equal(t, 1, c.SnapshotEvery)
	assert.True(t, c.Record.Trades)
}

func TestCfgLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial_cash: -5\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
