package sandbox

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// SlippageModel adjusts the reference price of a market execution. Models that
// need randomness must draw from rng only, so runs with equal seeds match.
type SlippageModel interface {
	Name() string
	Adjust(order common.Order, reference fixed.Point, rng *rand.Rand) fixed.Point
}

// CommissionModel prices the fee of a single fill.
type CommissionModel interface {
	Name() string
	Fee(notional fixed.Point, symbol string) fixed.Point
}

type SlippageFactory func(param fixed.Point) (SlippageModel, error)
type CommissionFactory func(param fixed.Point) (CommissionModel, error)

var (
	registryMu sync.RWMutex

	slippageModels = map[string]SlippageFactory{
		"none":       func(fixed.Point) (SlippageModel, error) { return NoSlippage{}, nil },
		"fixed_bps":  func(p fixed.Point) (SlippageModel, error) { return FixedBpsSlippage{Bps: p}, nil },
		"percentage": func(p fixed.Point) (SlippageModel, error) { return PercentageSlippage{Rate: p}, nil },
		"random_bps": func(p fixed.Point) (SlippageModel, error) { return RandomBpsSlippage{MaxBps: p}, nil },
	}

	commissionModels = map[string]CommissionFactory{
		"none":       func(fixed.Point) (CommissionModel, error) { return NoCommission{}, nil },
		"percentage": func(p fixed.Point) (CommissionModel, error) { return PercentageCommission{Rate: p}, nil },
		"bps":        func(p fixed.Point) (CommissionModel, error) { return PercentageCommission{Rate: p.Div(fixed.BasisPoints)}, nil },
		"fixed":      func(p fixed.Point) (CommissionModel, error) { return FixedCommission{Amount: p}, nil },
	}
)

// RegisterSlippage adds a named slippage model. It is meant to be called from
// init functions, before any broker is built.
func RegisterSlippage(name string, factory SlippageFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	slippageModels[name] = factory
}

func RegisterCommission(name string, factory CommissionFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	commissionModels[name] = factory
}

func NewSlippage(spec cfg.ModelSpec) (SlippageModel, error) {
	registryMu.RLock()
	factory, ok := slippageModels[spec.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown slippage model %q: %w", spec.Name, common.ErrConfiguration)
	}
	return factory(spec.Value)
}

func NewCommission(spec cfg.ModelSpec) (CommissionModel, error) {
	registryMu.RLock()
	factory, ok := commissionModels[spec.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown commission model %q: %w", spec.Name, common.ErrConfiguration)
	}
	return factory(spec.Value)
}

func SlippageModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(slippageModels)
}

func CommissionModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(commissionModels)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// worsen moves price against the order side by amount.
func worsen(side common.Side, price, amount fixed.Point) fixed.Point {
	if side == common.SideBuy {
		return price.Add(amount)
	}
	return price.Sub(amount)
}

type NoSlippage struct{}

func (NoSlippage) Name() string { return "none" }
func (NoSlippage) Adjust(_ common.Order, reference fixed.Point, _ *rand.Rand) fixed.Point {
	return reference
}

// FixedBpsSlippage moves the price by a constant number of basis points.
type FixedBpsSlippage struct {
	Bps fixed.Point
}

func (FixedBpsSlippage) Name() string { return "fixed_bps" }
func (s FixedBpsSlippage) Adjust(order common.Order, reference fixed.Point, _ *rand.Rand) fixed.Point {
	return worsen(order.Side, reference, reference.Mul(s.Bps).Div(fixed.BasisPoints))
}

// PercentageSlippage moves the price by a fraction of it, 0.01 being 1%.
type PercentageSlippage struct {
	Rate fixed.Point
}

func (PercentageSlippage) Name() string { return "percentage" }
func (s PercentageSlippage) Adjust(order common.Order, reference fixed.Point, _ *rand.Rand) fixed.Point {
	return worsen(order.Side, reference, reference.Mul(s.Rate))
}

const randomSteps = 10000

// RandomBpsSlippage draws one value per execution, uniform in [0, MaxBps] on
// a grid of randomSteps, so the adjusted price stays an exact decimal.
type RandomBpsSlippage struct {
	MaxBps fixed.Point
}

func (RandomBpsSlippage) Name() string { return "random_bps" }
func (s RandomBpsSlippage) Adjust(order common.Order, reference fixed.Point, rng *rand.Rand) fixed.Point {
	step := fixed.FromInt64(rng.Int63n(randomSteps+1), 0)
	bps := s.MaxBps.Mul(step).DivInt(randomSteps)
	return worsen(order.Side, reference, reference.Mul(bps).Div(fixed.BasisPoints))
}

type NoCommission struct{}

func (NoCommission) Name() string                        { return "none" }
func (NoCommission) Fee(fixed.Point, string) fixed.Point { return fixed.Zero }

// PercentageCommission charges a fraction of the traded notional.
type PercentageCommission struct {
	Rate fixed.Point
}

func (PercentageCommission) Name() string { return "percentage" }
func (c PercentageCommission) Fee(notional fixed.Point, _ string) fixed.Point {
	return notional.Abs().Mul(c.Rate)
}

// FixedCommission charges a flat amount per fill.
type FixedCommission struct {
	Amount fixed.Point
}

func (FixedCommission) Name() string { return "fixed" }
func (c FixedCommission) Fee(fixed.Point, string) fixed.Point {
	return c.Amount
}
