package synthetic

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

func generate(t *testing.T, cfg Config, seed int64) []common.Event {
	t.Helper()
	g, err := NewBarGenerator(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	events, err := datasource.Collect(g)
	require.NoError(t, err)
	return events
}

func TestBarGenerator_ProducesValidBars(t *testing.T) {
	cfg := DefaultConfig("BTCUSDT")
	cfg.Bars = 200

	events := generate(t, cfg, 7)
	require.Len(t, events, 200)

	for i, ev := range events {
		bar := ev.(common.Bar)
		require.NoError(t, bar.Validate(), "bar %d", i)
		assert.True(t, bar.TimeStamp.Equal(cfg.Start.Add(time.Duration(i)*time.Minute)))
		if i > 0 {
			prev := events[i-1].(common.Bar)
			assert.True(t, bar.Open.Eq(prev.Close), "bar %d opens at previous close", i)
		}
	}
}

func TestBarGenerator_Deterministic(t *testing.T) {
	cfg := DefaultConfig("X")
	cfg.Bars = 50

	a := generate(t, cfg, 42)
	b := generate(t, cfg, 42)
	c := generate(t, cfg, 43)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBarGenerator_ZeroVolatility(t *testing.T) {
	cfg := DefaultConfig("X")
	cfg.Bars = 3
	cfg.Mu = 0
	cfg.Sigma = 0
	cfg.VolumeVariance = 0

	for _, ev := range generate(t, cfg, 1) {
		bar := ev.(common.Bar)
		assert.True(t, bar.Close.Eq(fixed.FromInt(100, 0)))
		assert.True(t, bar.Volume.Eq(cfg.AvgVolume))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"symbol", func(c *Config) { c.Symbol = "" }},
		{"period", func(c *Config) { c.Period = 0 }},
		{"bars", func(c *Config) { c.Bars = -1 }},
		{"price", func(c *Config) { c.StartPrice = fixed.Zero }},
		{"sigma", func(c *Config) { c.Sigma = -1 }},
		{"steps", func(c *Config) { c.StepsPerBar = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("X")
			tt.mutate(&cfg)
			_, err := NewBarGenerator(cfg, nil)
			assert.ErrorIs(t, err, common.ErrConfiguration)
		})
	}
}
