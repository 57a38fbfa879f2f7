package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const componentName = "exchange.live.broker"

// Gateway is the transport to a real venue. Calls must not block for long;
// the venue answers asynchronously through the broker's On* methods.
type Gateway interface {
	PlaceOrder(ctx context.Context, clientOrderId string, order common.Order) error
	CancelOrder(ctx context.Context, clientOrderId string) error
}

// Execution is a fill reported by the venue.
type Execution struct {
	ClientOrderId string
	Price         fixed.Point
	Quantity      fixed.Point
	Fee           fixed.Point
	TimeStamp     time.Time
}

type Option func(*Broker)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Broker forwards orders to a Gateway and books the executions the venue
// reports. It satisfies the same contract as the simulated broker, so a
// strategy runs unchanged against either.
type Broker struct {
	mu sync.Mutex

	ctx       context.Context
	gateway   Gateway
	logger    *zap.Logger
	portfolio *portfolio.Portfolio

	now         time.Time
	nextOrderId common.OrderId
	nextFillId  common.FillId
	orders      map[common.OrderId]*common.Order
	clientIds   map[common.OrderId]string
	byClientId  map[string]common.OrderId
	fills       []common.Fill
	updates     []common.Order
}

func NewBroker(ctx context.Context, gateway Gateway, p *portfolio.Portfolio, options ...Option) *Broker {
	b := &Broker{
		ctx:        ctx,
		gateway:    gateway,
		logger:     zap.NewNop(),
		portfolio:  p,
		orders:     make(map[common.OrderId]*common.Order),
		clientIds:  make(map[common.OrderId]string),
		byClientId: make(map[string]common.OrderId),
	}

	for _, option := range options {
		option(b)
	}

	b.logger = b.logger.With(zap.String("src", componentName))
	return b
}

func (b *Broker) Portfolio() *portfolio.Portfolio { return b.portfolio }

func (b *Broker) Submit(req common.OrderRequest) (common.OrderId, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextOrderId++
	order := common.NewOrder(b.nextOrderId, req, b.now)
	b.orders[order.Id] = &order
	b.record(order)

	if err := req.Validate(); err != nil {
		b.reject(&order, err.Error())
		return order.Id, err
	}

	clientId := uuid.NewString()
	b.clientIds[order.Id] = clientId
	b.byClientId[clientId] = order.Id

	if err := b.gateway.PlaceOrder(b.ctx, clientId, order); err != nil {
		b.reject(&order, err.Error())
		return order.Id, nil
	}
	return order.Id, nil
}

func (b *Broker) Cancel(id common.OrderId) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("unable to cancel order %d: %w", id, common.ErrOrderNotFound)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("unable to cancel order %d in status %s: %w", id, order.Status, common.ErrOrderTerminal)
	}

	if err := b.gateway.CancelOrder(b.ctx, b.clientIds[id]); err != nil {
		return fmt.Errorf("unable to cancel order %d: %w", id, err)
	}
	return nil
}

func (b *Broker) Order(id common.OrderId) (common.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

func (b *Broker) OpenOrders() []common.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]common.Order, 0)
	for id := common.OrderId(1); id <= b.nextOrderId; id++ {
		if order, ok := b.orders[id]; ok && order.IsActive() {
			out = append(out, *order)
		}
	}
	return out
}

// OnExecution books a venue fill. It may be called from the gateway's
// goroutine; the fill is handed to the engine with the next market event.
func (b *Broker) OnExecution(exec Execution) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, err := b.lookup(exec.ClientOrderId)
	if err != nil {
		return err
	}

	b.nextFillId++
	fill, err := b.portfolio.Apply(common.Fill{
		Id:        b.nextFillId,
		OrderId:   order.Id,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Price:     exec.Price,
		Quantity:  exec.Quantity,
		Fee:       exec.Fee,
		Slippage:  fixed.Zero,
		TimeStamp: exec.TimeStamp,
	})
	if err != nil {
		b.logger.Error("unable to book execution", zap.Uint64("order_id", order.Id), zap.Error(err))
		return fmt.Errorf("unable to book execution of order %d: %w", order.Id, err)
	}

	if err := order.ApplyExecution(exec.Price, exec.Quantity, exec.TimeStamp); err != nil {
		return err
	}
	b.fills = append(b.fills, fill)
	b.record(*order)
	return nil
}

// OnCanceled records a cancel confirmed by the venue.
func (b *Broker) OnCanceled(clientOrderId string, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, err := b.lookup(clientOrderId)
	if err != nil {
		return err
	}
	if err := order.Transition(common.OrderStatusCanceled, b.now, reason); err != nil {
		return err
	}
	b.record(*order)
	return nil
}

// OnRejected records an order the venue refused.
func (b *Broker) OnRejected(clientOrderId string, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, err := b.lookup(clientOrderId)
	if err != nil {
		return err
	}
	if order.Status != common.OrderStatusNew {
		return fmt.Errorf("order %d in status %s: %w", order.Id, order.Status, common.ErrIllegalTransition)
	}
	b.reject(order, reason)
	return nil
}

func (b *Broker) OnEvent(ev common.Event) ([]common.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	header := ev.Header()
	b.now = header.TimeStamp
	if mark, ok := common.MarkPrice(ev); ok {
		b.portfolio.Mark(header.Symbol, mark)
	}

	fills := b.fills
	b.fills = nil
	return fills, nil
}

func (b *Broker) DrainUpdates() []common.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.updates
	b.updates = nil
	return out
}

func (b *Broker) lookup(clientOrderId string) (*common.Order, error) {
	id, ok := b.byClientId[clientOrderId]
	if !ok {
		return nil, fmt.Errorf("client order %s: %w", clientOrderId, common.ErrOrderNotFound)
	}
	return b.orders[id], nil
}

func (b *Broker) reject(order *common.Order, reason string) {
	if err := order.Transition(common.OrderStatusRejected, b.now, reason); err != nil {
		panic(err)
	}
	b.record(*order)
	b.logger.Warn("order rejected",
		zap.Time("ts", b.now),
		zap.Uint64("order_id", order.Id),
		zap.String("symbol", order.Symbol),
		zap.String("reason", reason))
}

func (b *Broker) record(o common.Order) {
	b.updates = append(b.updates, o)
}
