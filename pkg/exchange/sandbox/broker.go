package sandbox

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const componentName = "exchange.sandbox.broker"

type pendingOrder struct {
	order         common.Order
	eligibleIndex int64
	eligibleTime  time.Time
}

// Broker is the simulated exchange. It owns the orders and the portfolio and
// is driven one market event at a time by the engine.
type Broker struct {
	logger    *zap.Logger
	portfolio *portfolio.Portfolio
	rng       *rand.Rand

	slippage      SlippageModel
	commission    CommissionModel
	latencyEvents int64
	latencyDelay  time.Duration
	maxFillRatio  fixed.Point
	liquidity     bool
	participation fixed.Point
	risk          cfg.Risk
	symbols       map[string]struct{}

	now        time.Time
	eventIndex int64

	nextOrderId common.OrderId
	nextFillId  common.FillId
	orders      map[common.OrderId]*pendingOrder
	open        []*pendingOrder
	updates     []common.Order
}

// NewBroker builds a broker around p. rng is the single random source of the
// run and is consumed in fill evaluation order only.
func NewBroker(p *portfolio.Portfolio, rng *rand.Rand, options ...Option) *Broker {
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}

	b := &Broker{
		logger:        zap.NewNop(),
		portfolio:     p,
		rng:           rng,
		slippage:      NoSlippage{},
		commission:    NoCommission{},
		maxFillRatio:  fixed.One,
		participation: fixed.One,
		risk:          cfg.Risk{AllowShort: true},
		eventIndex:    -1,
		orders:        make(map[common.OrderId]*pendingOrder),
	}

	for _, option := range options {
		option(b)
	}

	b.logger = b.logger.With(zap.String("src", componentName))
	return b
}

func (b *Broker) Portfolio() *portfolio.Portfolio { return b.portfolio }
func (b *Broker) Now() time.Time                  { return b.now }

func (b *Broker) Submit(req common.OrderRequest) (common.OrderId, error) {
	b.nextOrderId++
	p := &pendingOrder{
		order:         common.NewOrder(b.nextOrderId, req, b.now),
		eligibleIndex: b.eventIndex + 1 + b.latencyEvents,
		eligibleTime:  b.now.Add(b.latencyDelay),
	}
	b.orders[p.order.Id] = p
	b.record(p.order)

	if err := req.Validate(); err != nil {
		b.reject(p, err)
		return p.order.Id, err
	}
	if !b.tradable(req.Symbol) {
		err := fmt.Errorf("symbol %s is not configured: %w", req.Symbol, common.ErrConfiguration)
		b.reject(p, err)
		return p.order.Id, err
	}
	if err := b.checkSubmission(p.order); err != nil {
		b.reject(p, err)
		return p.order.Id, nil
	}

	b.open = append(b.open, p)
	return p.order.Id, nil
}

func (b *Broker) Cancel(id common.OrderId) error {
	p, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("unable to cancel order %d: %w", id, common.ErrOrderNotFound)
	}
	if p.order.Status.IsTerminal() {
		return fmt.Errorf("unable to cancel order %d in status %s: %w", id, p.order.Status, common.ErrOrderTerminal)
	}

	b.transition(p, common.OrderStatusCanceled, "canceled by request")
	b.compact()
	return nil
}

func (b *Broker) Order(id common.OrderId) (common.Order, bool) {
	p, ok := b.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return p.order, true
}

// OpenOrders returns the working orders in submission order.
func (b *Broker) OpenOrders() []common.Order {
	out := make([]common.Order, 0, len(b.open))
	for _, p := range b.open {
		if p.order.IsActive() {
			out = append(out, p.order)
		}
	}
	return out
}

func (b *Broker) DrainUpdates() []common.Order {
	out := b.updates
	b.updates = nil
	return out
}

// OnEvent evaluates the working orders against ev in submission order. Orders
// submitted while handling an earlier event are only matched once their
// latency has elapsed, never against the event that created them.
func (b *Broker) OnEvent(ev common.Event) ([]common.Fill, error) {
	header := ev.Header()
	b.now = header.TimeStamp
	b.eventIndex++

	if mark, ok := common.MarkPrice(ev); ok {
		b.portfolio.Mark(header.Symbol, mark)
	}

	var fills []common.Fill
	for _, p := range b.open {
		if p.order.Status.IsTerminal() {
			continue
		}
		if b.expired(p) {
			b.transition(p, common.OrderStatusCanceled, "expired")
			continue
		}
		if p.order.Symbol != header.Symbol || !b.eligible(p) {
			continue
		}

		fill, ok, err := b.evaluate(p, ev)
		if err != nil {
			b.compact()
			return fills, &common.OrderError{OrderId: p.order.Id, Err: err}
		}
		if ok {
			fills = append(fills, fill)
		}
	}

	b.compact()
	return fills, nil
}

func (b *Broker) evaluate(p *pendingOrder, ev common.Event) (common.Fill, bool, error) {
	price, available, crossed := b.quote(p.order, ev)

	qty := fixed.Zero
	if crossed {
		qty = b.executable(p.order, available)
	}

	tif := p.order.TimeInForce
	if !qty.IsPos() {
		if tif == common.TimeInForceImmediateOrCancel || tif == common.TimeInForceFillOrKill {
			b.transition(p, common.OrderStatusCanceled, "not executable on first evaluation")
		}
		return common.Fill{}, false, nil
	}
	if tif == common.TimeInForceFillOrKill && qty.Lt(p.order.Remaining()) {
		b.transition(p, common.OrderStatusCanceled, "fill or kill quantity not available")
		return common.Fill{}, false, nil
	}

	execPrice := price
	if p.order.Type == common.OrderTypeMarket {
		execPrice = b.slippage.Adjust(p.order, price, b.rng)
	}
	if !execPrice.IsPos() {
		b.fail(p, fmt.Errorf("execution price %s is not positive: %w", execPrice, common.ErrRiskLimit))
		return common.Fill{}, false, nil
	}

	fee := b.commission.Fee(execPrice.Mul(qty), p.order.Symbol)
	if err := b.checkExecution(p.order, execPrice, qty, fee); err != nil {
		b.fail(p, err)
		return common.Fill{}, false, nil
	}

	b.nextFillId++
	fill, err := b.portfolio.Apply(common.Fill{
		Id:        b.nextFillId,
		OrderId:   p.order.Id,
		Symbol:    p.order.Symbol,
		Side:      p.order.Side,
		Price:     execPrice,
		Quantity:  qty,
		Fee:       fee,
		Slippage:  execPrice.Sub(price).Abs(),
		TimeStamp: b.now,
	})
	if err != nil {
		return common.Fill{}, false, fmt.Errorf("unable to apply fill: %w", err)
	}

	if err := p.order.ApplyExecution(execPrice, qty, b.now); err != nil {
		return common.Fill{}, false, err
	}
	b.record(p.order)

	if tif == common.TimeInForceImmediateOrCancel && p.order.Status == common.OrderStatusPartiallyFilled {
		b.transition(p, common.OrderStatusCanceled, "immediate or cancel residual")
	}
	return fill, true, nil
}

// quote returns the reference execution price, the visible quantity behind
// it and whether the order is executable against ev at all.
func (b *Broker) quote(o common.Order, ev common.Event) (fixed.Point, fixed.Point, bool) {
	switch e := ev.(type) {
	case common.Bar:
		return b.quoteBar(o, e)
	case *common.Bar:
		return b.quoteBar(o, *e)
	case common.Tick:
		return b.quoteTick(o, e)
	case *common.Tick:
		return b.quoteTick(o, *e)
	case common.OrderBookUpdate:
		return b.quoteBook(o, e)
	case *common.OrderBookUpdate:
		return b.quoteBook(o, *e)
	}
	return fixed.Zero, fixed.Zero, false
}

// quoteBar never assumes a better price than the bar allows: limit buys fill
// at min(limit, open) once low reaches the limit, sells symmetrically.
func (b *Broker) quoteBar(o common.Order, bar common.Bar) (fixed.Point, fixed.Point, bool) {
	available := bar.Volume.Mul(b.participation)

	if o.Type == common.OrderTypeMarket {
		return bar.Open, available, true
	}
	if o.Side == common.SideBuy && bar.Low.Lte(o.LimitPrice) {
		return o.LimitPrice.Min(bar.Open), available, true
	}
	if o.Side == common.SideSell && bar.High.Gte(o.LimitPrice) {
		return o.LimitPrice.Max(bar.Open), available, true
	}
	return fixed.Zero, fixed.Zero, false
}

func (b *Broker) quoteTick(o common.Order, tick common.Tick) (fixed.Point, fixed.Point, bool) {
	price, available := tick.BuyPrice(), tick.AskVolume
	if o.Side == common.SideSell {
		price, available = tick.SellPrice(), tick.BidVolume
	}
	if !available.IsPos() {
		available = tick.Quantity
	}
	return price, available.Mul(b.participation), b.limitAllows(o, price)
}

func (b *Broker) quoteBook(o common.Order, book common.OrderBookUpdate) (fixed.Point, fixed.Point, bool) {
	levels := book.Asks
	if o.Side == common.SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return fixed.Zero, fixed.Zero, false
	}
	best := levels[0]
	return best.Price, best.Quantity.Mul(b.participation), b.limitAllows(o, best.Price)
}

func (b *Broker) limitAllows(o common.Order, price fixed.Point) bool {
	switch {
	case o.Type == common.OrderTypeMarket:
		return true
	case o.Side == common.SideBuy:
		return price.Lte(o.LimitPrice)
	default:
		return price.Gte(o.LimitPrice)
	}
}

// executable caps the remaining quantity by the fill ratio and, when
// modelled, by the visible liquidity.
func (b *Broker) executable(o common.Order, available fixed.Point) fixed.Point {
	qty := o.Remaining().Min(o.Quantity.Mul(b.maxFillRatio))
	if b.liquidity {
		qty = qty.Min(available)
	}
	if qty.IsNeg() {
		return fixed.Zero
	}
	return qty
}

func (b *Broker) eligible(p *pendingOrder) bool {
	return b.eventIndex >= p.eligibleIndex && !b.now.Before(p.eligibleTime)
}

func (b *Broker) expired(p *pendingOrder) bool {
	return p.order.TimeInForce == common.TimeInForceGoodTillDate && b.now.After(p.order.ExpireTime)
}

func (b *Broker) tradable(symbol string) bool {
	if b.symbols == nil {
		return true
	}
	_, ok := b.symbols[symbol]
	return ok
}

// checkSubmission runs the funds and risk checks at the price known when the
// order arrives: the limit price, or the last mark for market orders.
func (b *Broker) checkSubmission(o common.Order) error {
	if err := b.checkQuantity(o, o.Quantity); err != nil {
		return err
	}

	price, ok := o.LimitPrice, o.Type == common.OrderTypeLimit
	if !ok {
		price, ok = b.portfolio.MarkPrice(o.Symbol)
	}
	if !ok {
		return nil
	}
	return b.checkExecution(o, price, o.Quantity, b.commission.Fee(price.Mul(o.Quantity), o.Symbol))
}

func (b *Broker) checkQuantity(o common.Order, qty fixed.Point) error {
	signed := qty
	if o.Side == common.SideSell {
		signed = qty.Neg()
	}
	after := b.portfolio.PositionQuantity(o.Symbol).Add(signed)

	if !b.risk.AllowShort && after.IsNeg() {
		return fmt.Errorf("short selling is disabled, position would be %s: %w", after, common.ErrRiskLimit)
	}
	if b.risk.MaxPositionSize.IsPos() && after.Abs().Gt(b.risk.MaxPositionSize) {
		return fmt.Errorf("position %s would exceed max position size %s: %w", after, b.risk.MaxPositionSize, common.ErrRiskLimit)
	}
	return nil
}

func (b *Broker) checkExecution(o common.Order, price, qty, fee fixed.Point) error {
	if err := b.checkQuantity(o, qty); err != nil {
		return err
	}

	notional := price.Mul(qty)
	if b.risk.MaxNotional.IsPos() && notional.Gt(b.risk.MaxNotional) {
		return fmt.Errorf("notional %s exceeds max notional %s: %w", notional, b.risk.MaxNotional, common.ErrRiskLimit)
	}
	if !b.portfolio.CanAfford(o.Side, price, qty, fee) {
		return fmt.Errorf("cash %s does not cover %s plus fee %s within margin allowance %s: %w",
			b.portfolio.Cash(), notional, fee, b.portfolio.MarginAllowance(), common.ErrInsufficientFunds)
	}

	if b.risk.MaxLeverage.IsPos() {
		equity := b.portfolio.Equity().Sub(fee)
		exposure := b.portfolio.GrossExposure()
		current := b.portfolio.PositionQuantity(o.Symbol)
		if pos, ok := b.portfolio.Position(o.Symbol); ok {
			exposure = exposure.Sub(pos.MarketValue().Abs())
		}
		signed := qty
		if o.Side == common.SideSell {
			signed = qty.Neg()
		}
		exposure = exposure.Add(current.Add(signed).Mul(price).Abs())

		if !equity.IsPos() || exposure.Gt(equity.Mul(b.risk.MaxLeverage)) {
			return fmt.Errorf("exposure %s would exceed %sx equity %s: %w", exposure, b.risk.MaxLeverage, equity, common.ErrRiskLimit)
		}
	}
	return nil
}

// fail ends an order that cannot be executed: a fresh order is rejected, a
// partially filled one has its residual canceled. Sizes are never clamped.
func (b *Broker) fail(p *pendingOrder, reason error) {
	if p.order.Status == common.OrderStatusNew {
		b.reject(p, reason)
		return
	}

	b.transition(p, common.OrderStatusCanceled, reason.Error())
	b.logger.Warn("order residual canceled",
		zap.Time("ts", b.now),
		zap.Uint64("order_id", p.order.Id),
		zap.String("symbol", p.order.Symbol),
		zap.String("remaining", p.order.Remaining().String()),
		zap.Error(reason))
}

func (b *Broker) reject(p *pendingOrder, reason error) {
	b.transition(p, common.OrderStatusRejected, reason.Error())
	b.logger.Warn("order rejected",
		zap.Time("ts", b.now),
		zap.Uint64("order_id", p.order.Id),
		zap.String("symbol", p.order.Symbol),
		zap.Stringer("side", p.order.Side),
		zap.String("quantity", p.order.Quantity.String()),
		zap.Error(reason))
}

func (b *Broker) transition(p *pendingOrder, to common.OrderStatus, reason string) {
	if err := p.order.Transition(to, b.now, reason); err != nil {
		// Only reachable through a bug in the broker itself.
		panic(err)
	}
	b.record(p.order)
}

func (b *Broker) record(o common.Order) {
	b.updates = append(b.updates, o)
}

func (b *Broker) compact() {
	active := b.open[:0]
	for _, p := range b.open {
		if p.order.IsActive() {
			active = append(active, p)
		}
	}
	clear(b.open[len(active):])
	b.open = active
}
