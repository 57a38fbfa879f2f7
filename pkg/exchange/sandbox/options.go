package sandbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type Option func(*Broker)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithSlippage(model SlippageModel) Option {
	return func(b *Broker) {
		b.slippage = model
	}
}

func WithCommission(model CommissionModel) Option {
	return func(b *Broker) {
		b.commission = model
	}
}

// WithLatency delays eligibility of new orders by events and by delay of
// simulation time.
func WithLatency(events int, delay time.Duration) Option {
	return func(b *Broker) {
		b.latencyEvents = int64(events)
		b.latencyDelay = delay
	}
}

// WithMaxFillRatio caps a single execution at ratio of the order quantity.
func WithMaxFillRatio(ratio fixed.Point) Option {
	return func(b *Broker) {
		b.maxFillRatio = ratio
	}
}

// WithLiquidity caps a single execution at participation of the visible volume.
func WithLiquidity(participation fixed.Point) Option {
	return func(b *Broker) {
		b.liquidity = true
		b.participation = participation
	}
}

func WithRisk(risk cfg.Risk) Option {
	return func(b *Broker) {
		b.risk = risk
	}
}

// WithSymbols restricts trading to symbols.
func WithSymbols(symbols ...string) Option {
	return func(b *Broker) {
		b.symbols = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			b.symbols[s] = struct{}{}
		}
	}
}

// FromConfig translates a backtest configuration into broker options,
// resolving the named pricing models once.
func FromConfig(c cfg.Backtest) ([]Option, error) {
	slippage, err := NewSlippage(c.Slippage)
	if err != nil {
		return nil, err
	}
	commission, err := NewCommission(c.Commission)
	if err != nil {
		return nil, err
	}

	options := []Option{
		WithSlippage(slippage),
		WithCommission(commission),
		WithLatency(c.Latency.Events, c.Latency.Delay),
		WithMaxFillRatio(c.MaxFillRatio),
		WithRisk(c.Risk),
	}
	if c.Liquidity.Enabled {
		options = append(options, WithLiquidity(c.Liquidity.Participation))
	}
	if len(c.Symbols) > 0 {
		options = append(options, WithSymbols(c.Symbols...))
	}
	return options, nil
}
