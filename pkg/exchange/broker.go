package exchange

import (
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
)

// Broker is the command surface strategies trade through. The simulated and
// the live implementation are interchangeable behind it.
type Broker interface {
	// Submit registers a new order and returns its id. Malformed requests are
	// rejected and returned as configuration errors; orders that fail funds or
	// risk checks are rejected without an error and show up in the order log.
	Submit(req common.OrderRequest) (common.OrderId, error)
	Cancel(id common.OrderId) error
	Order(id common.OrderId) (common.Order, bool)
	OpenOrders() []common.Order
}

// Venue is a Broker the engine can drive with market events.
type Venue interface {
	Broker

	// OnEvent marks the portfolio and returns the fills the event produced,
	// already applied to the portfolio, in execution order.
	OnEvent(ev common.Event) ([]common.Fill, error)
	// DrainUpdates returns order snapshots taken at each status transition
	// since the previous call.
	DrainUpdates() []common.Order
	Portfolio() *portfolio.Portfolio
}

// CommandsOnly hides everything of b but the Broker methods, so the venue
// behind it cannot be recovered with a type assertion.
func CommandsOnly(b Broker) Broker {
	return commands{b: b}
}

type commands struct {
	b Broker
}

func (c commands) Submit(req common.OrderRequest) (common.OrderId, error) { return c.b.Submit(req) }
func (c commands) Cancel(id common.OrderId) error                        { return c.b.Cancel(id) }
func (c commands) Order(id common.OrderId) (common.Order, bool)          { return c.b.Order(id) }
func (c commands) OpenOrders() []common.Order                            { return c.b.OpenOrders() }
