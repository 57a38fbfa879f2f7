package cfg

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// ModelSpec selects a named pricing model and its single parameter.
type ModelSpec struct {
	Name  string      `mapstructure:"name" yaml:"name" json:"name"`
	Value fixed.Point `mapstructure:"value" yaml:"value" json:"value"`
}

// Latency delays eligibility of a new order by a number of events and/or a
// span of simulation time. Both conditions must be met.
type Latency struct {
	Events int           `mapstructure:"events" yaml:"events" json:"events"`
	Delay  time.Duration `mapstructure:"delay" yaml:"delay" json:"delay"`
}

// Risk holds the basic constraint checks. Zero limits are disabled.
type Risk struct {
	MaxLeverage     fixed.Point `mapstructure:"max_leverage" yaml:"max_leverage" json:"max_leverage"`
	MaxPositionSize fixed.Point `mapstructure:"max_position_size" yaml:"max_position_size" json:"max_position_size"`
	MaxNotional     fixed.Point `mapstructure:"max_notional" yaml:"max_notional" json:"max_notional"`
	MarginAllowance fixed.Point `mapstructure:"margin_allowance" yaml:"margin_allowance" json:"margin_allowance"`
	AllowShort      bool        `mapstructure:"allow_short" yaml:"allow_short" json:"allow_short"`
}

// Liquidity caps a single execution at Participation of the visible volume.
type Liquidity struct {
	Enabled       bool        `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Participation fixed.Point `mapstructure:"participation" yaml:"participation" json:"participation"`
}

type Recording struct {
	Trades    bool `mapstructure:"trades" yaml:"trades" json:"trades"`
	Orders    bool `mapstructure:"orders" yaml:"orders" json:"orders"`
	Positions bool `mapstructure:"positions" yaml:"positions" json:"positions"`
	Equity    bool `mapstructure:"equity" yaml:"equity" json:"equity"`
}

type StrategySpec struct {
	Name   string            `mapstructure:"name" yaml:"name" json:"name"`
	Params map[string]string `mapstructure:"params" yaml:"params,omitempty" json:"params,omitempty"`
}

// Backtest is the immutable configuration snapshot of a single run.
type Backtest struct {
	Symbols      []string      `mapstructure:"symbols" yaml:"symbols" json:"symbols"`
	Start        time.Time     `mapstructure:"start" yaml:"start,omitempty" json:"start"`
	End          time.Time     `mapstructure:"end" yaml:"end,omitempty" json:"end"`
	Timeframe    time.Duration `mapstructure:"timeframe" yaml:"timeframe" json:"timeframe"`
	InitialCash  fixed.Point   `mapstructure:"initial_cash" yaml:"initial_cash" json:"initial_cash"`
	Slippage     ModelSpec     `mapstructure:"slippage" yaml:"slippage" json:"slippage"`
	Commission   ModelSpec     `mapstructure:"commission" yaml:"commission" json:"commission"`
	Latency      Latency       `mapstructure:"latency" yaml:"latency" json:"latency"`
	Risk         Risk          `mapstructure:"risk" yaml:"risk" json:"risk"`
	MaxFillRatio fixed.Point   `mapstructure:"max_fill_ratio" yaml:"max_fill_ratio" json:"max_fill_ratio"`
	Liquidity    Liquidity     `mapstructure:"liquidity" yaml:"liquidity" json:"liquidity"`
	RandomSeed   int64         `mapstructure:"random_seed" yaml:"random_seed" json:"random_seed"`
	RiskFreeRate fixed.Point   `mapstructure:"risk_free_rate" yaml:"risk_free_rate" json:"risk_free_rate"`

	SnapshotEvery int       `mapstructure:"snapshot_every" yaml:"snapshot_every" json:"snapshot_every"`
	ProgressEvery int       `mapstructure:"progress_every" yaml:"progress_every" json:"progress_every"`
	Trace         bool      `mapstructure:"trace" yaml:"trace" json:"trace"`
	Record        Recording `mapstructure:"record" yaml:"record" json:"record"`

	Strategy StrategySpec `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
}

func Default() Backtest {
	return Backtest{
		Timeframe:    time.Minute,
		InitialCash:  fixed.FromInt(100000, 0),
		Slippage:     ModelSpec{Name: "none", Value: fixed.Zero},
		Commission:   ModelSpec{Name: "none", Value: fixed.Zero},
		Latency:      Latency{Events: 0},
		MaxFillRatio: fixed.One,
		Risk: Risk{
			MaxLeverage:     fixed.Zero,
			MaxPositionSize: fixed.Zero,
			MaxNotional:     fixed.Zero,
			MarginAllowance: fixed.Zero,
			AllowShort:      true,
		},
		Liquidity:     Liquidity{Participation: fixed.One},
		RandomSeed:    42,
		RiskFreeRate:  fixed.Zero,
		SnapshotEvery: 1,
		Record:        Recording{Trades: true, Orders: true, Positions: true, Equity: true},
	}
}

// Validate reports every problem found, wrapped as a configuration error.
func (c Backtest) Validate() error {
	var err error

	if !c.InitialCash.IsPos() {
		err = multierr.Append(err, fmt.Errorf("initial_cash must be positive, got %s", c.InitialCash))
	}
	if c.Timeframe <= 0 {
		err = multierr.Append(err, fmt.Errorf("timeframe must be positive, got %s", c.Timeframe))
	}
	if !c.Start.IsZero() && !c.End.IsZero() && !c.End.After(c.Start) {
		err = multierr.Append(err, fmt.Errorf("end %s must be after start %s", c.End, c.Start))
	}
	if c.Slippage.Name == "" {
		err = multierr.Append(err, fmt.Errorf("slippage model name is empty"))
	}
	if c.Commission.Name == "" {
		err = multierr.Append(err, fmt.Errorf("commission model name is empty"))
	}
	if c.Slippage.Value.IsNeg() || c.Commission.Value.IsNeg() {
		err = multierr.Append(err, fmt.Errorf("model parameters must not be negative"))
	}
	if c.Latency.Events < 0 || c.Latency.Delay < 0 {
		err = multierr.Append(err, fmt.Errorf("latency must not be negative"))
	}
	if c.Risk.MaxLeverage.IsNeg() || c.Risk.MaxPositionSize.IsNeg() ||
		c.Risk.MaxNotional.IsNeg() || c.Risk.MarginAllowance.IsNeg() {
		err = multierr.Append(err, fmt.Errorf("risk limits must not be negative"))
	}
	if !c.MaxFillRatio.IsPos() || c.MaxFillRatio.Gt(fixed.One) {
		err = multierr.Append(err, fmt.Errorf("max_fill_ratio must be in (0, 1], got %s", c.MaxFillRatio))
	}
	if c.Liquidity.Enabled && (!c.Liquidity.Participation.IsPos() || c.Liquidity.Participation.Gt(fixed.One)) {
		err = multierr.Append(err, fmt.Errorf("liquidity participation must be in (0, 1], got %s", c.Liquidity.Participation))
	}
	if c.SnapshotEvery < 1 {
		err = multierr.Append(err, fmt.Errorf("snapshot_every must be at least 1, got %d", c.SnapshotEvery))
	}
	if c.ProgressEvery < 0 {
		err = multierr.Append(err, fmt.Errorf("progress_every must not be negative, got %d", c.ProgressEvery))
	}

	seen := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			err = multierr.Append(err, fmt.Errorf("empty symbol"))
			continue
		}
		if _, ok := seen[s]; ok {
			err = multierr.Append(err, fmt.Errorf("duplicate symbol %s", s))
		}
		seen[s] = struct{}{}
	}

	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate a running config.
func (c Backtest) Clone() Backtest {
	out := c
	out.Symbols = slices.Clone(c.Symbols)
	out.Strategy.Params = maps.Clone(c.Strategy.Params)
	return out
}

// HasSymbol reports whether symbol is tradable; an empty symbol list allows all.
func (c Backtest) HasSymbol(symbol string) bool {
	return len(c.Symbols) == 0 || slices.Contains(c.Symbols, symbol)
}

// Fingerprint is a canonical encoding of the config, equal for equal configs.
func (c Backtest) Fingerprint() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("unable to encode config: %w", err)
	}
	return b, nil
}
