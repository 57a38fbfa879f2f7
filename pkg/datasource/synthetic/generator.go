package synthetic

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const (
	barGeneratorComponentName = "datasource.synthetic.generator"

	secondsPerYear = 365.25 * 24 * 3600
)

// Config describes a geometric brownian motion price path sampled into bars.
// Mu and Sigma are annualized.
type Config struct {
	Symbol         string
	Start          time.Time
	Period         time.Duration
	Bars           int64
	StartPrice     fixed.Point
	Mu             float64
	Sigma          float64
	StepsPerBar    int
	AvgVolume      fixed.Point
	VolumeVariance float64
	PriceDigits    int
	VolumeDigits   int
}

func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:         symbol,
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Period:         time.Minute,
		Bars:           1000,
		StartPrice:     fixed.FromInt(100, 0),
		Mu:             0.05,
		Sigma:          0.2,
		StepsPerBar:    4,
		AvgVolume:      fixed.FromInt(10, 0),
		VolumeVariance: 0.5,
		PriceDigits:    2,
		VolumeDigits:   2,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("symbol is required: %w", common.ErrConfiguration)
	case c.Period <= 0:
		return fmt.Errorf("period must be positive: %w", common.ErrConfiguration)
	case c.Bars < 0:
		return fmt.Errorf("bar count is negative: %w", common.ErrConfiguration)
	case !c.StartPrice.IsPos():
		return fmt.Errorf("start price must be positive: %w", common.ErrConfiguration)
	case c.Sigma < 0:
		return fmt.Errorf("sigma is negative: %w", common.ErrConfiguration)
	case c.StepsPerBar <= 0:
		return fmt.Errorf("steps per bar must be positive: %w", common.ErrConfiguration)
	}
	return nil
}

// BarGenerator is a Feed of synthetic bars. The same config and seed always
// produce the same bars.
type BarGenerator struct {
	cfg Config
	rng *rand.Rand

	deltaLogPre1 float64
	deltaLogPre2 float64

	t         int64
	lastPrice fixed.Point
}

func NewBarGenerator(cfg Config, rng *rand.Rand) (*BarGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}

	deltaT := cfg.Period.Seconds() / float64(cfg.StepsPerBar) / secondsPerYear

	return &BarGenerator{
		cfg:          cfg,
		rng:          rng,
		deltaLogPre1: (cfg.Mu - 0.5*cfg.Sigma*cfg.Sigma) * deltaT,
		deltaLogPre2: cfg.Sigma * math.Sqrt(deltaT),
		lastPrice:    cfg.StartPrice,
	}, nil
}

func (g *BarGenerator) Next() (common.Event, error) {
	if g.t >= g.cfg.Bars {
		return nil, datasource.ErrEof
	}

	open := g.lastPrice.Rescale(g.cfg.PriceDigits)
	high, low := open, open

	for i := 0; i < g.cfg.StepsPerBar; i++ {
		deltaLog := g.deltaLogPre1 + g.deltaLogPre2*g.rng.NormFloat64()
		g.lastPrice = g.lastPrice.Mul(fixed.FromFloat64(math.Exp(deltaLog)))

		p := g.lastPrice.Rescale(g.cfg.PriceDigits)
		high = high.Max(p)
		low = low.Min(p)
	}

	bar := common.Bar{
		EventHeader: common.EventHeader{
			Source:    barGeneratorComponentName,
			Symbol:    g.cfg.Symbol,
			TimeStamp: g.cfg.Start.Add(time.Duration(g.t) * g.cfg.Period),
		},
		Period: g.cfg.Period,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  g.lastPrice.Rescale(g.cfg.PriceDigits),
		Volume: g.generateVolume(),
	}
	g.t++
	return bar, nil
}

func (g *BarGenerator) generateVolume() fixed.Point {
	if g.cfg.VolumeVariance <= 0 {
		return g.cfg.AvgVolume
	}
	multiplier := math.Exp(g.rng.NormFloat64() * g.cfg.VolumeVariance)
	vol := g.cfg.AvgVolume.Mul(fixed.FromFloat64(multiplier)).Rescale(g.cfg.VolumeDigits)
	if !vol.IsPos() {
		return fixed.One
	}
	return vol
}
