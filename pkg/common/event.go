package common

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type EventKind uint8

const (
	EventKindBar EventKind = iota
	EventKindTick
	EventKindBook
)

func (k EventKind) String() string {
	switch k {
	case EventKindBar:
		return "bar"
	case EventKindTick:
		return "tick"
	case EventKindBook:
		return "book"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// EventHeader is shared by every market event. Sequence is the ingestion
// sequence number breaking ties between events with equal timestamps.
type EventHeader struct {
	Source    string    `json:"src,omitempty"`
	Symbol    string    `json:"symbol"`
	TimeStamp time.Time `json:"ts"`
	Sequence  uint64    `json:"seq"`
}

func (h EventHeader) Header() EventHeader { return h }

// Before orders headers by timestamp, then sequence.
func (h EventHeader) Before(o EventHeader) bool {
	if !h.TimeStamp.Equal(o.TimeStamp) {
		return h.TimeStamp.Before(o.TimeStamp)
	}
	return h.Sequence < o.Sequence
}

// Event is a Bar, Tick or OrderBookUpdate.
type Event interface {
	Header() EventHeader
	Kind() EventKind
	Validate() error
}

type Bar struct {
	EventHeader
	Period time.Duration `json:"period"`
	Open   fixed.Point   `json:"open"`
	High   fixed.Point   `json:"high"`
	Low    fixed.Point   `json:"low"`
	Close  fixed.Point   `json:"close"`
	Volume fixed.Point   `json:"volume"`
}

func (Bar) Kind() EventKind { return EventKindBar }

func (b Bar) Validate() error {
	switch {
	case !b.Open.IsPos() || !b.High.IsPos() || !b.Low.IsPos() || !b.Close.IsPos():
		return fmt.Errorf("bar prices must be positive: %w", ErrDataIntegrity)
	case b.High.Lt(b.Low):
		return fmt.Errorf("bar high %s below low %s: %w", b.High, b.Low, ErrDataIntegrity)
	case b.Open.Gt(b.High) || b.Open.Lt(b.Low) || b.Close.Gt(b.High) || b.Close.Lt(b.Low):
		return fmt.Errorf("bar open/close outside high-low range: %w", ErrDataIntegrity)
	case b.Volume.IsNeg():
		return fmt.Errorf("bar volume is negative: %w", ErrDataIntegrity)
	}
	return nil
}

// Tick is a trade print, optionally carrying the top of book at that moment.
type Tick struct {
	EventHeader
	Price     fixed.Point `json:"price"`
	Quantity  fixed.Point `json:"quantity"`
	Side      Side        `json:"side"`
	Bid       fixed.Point `json:"bid"`
	Ask       fixed.Point `json:"ask"`
	BidVolume fixed.Point `json:"bid_volume"`
	AskVolume fixed.Point `json:"ask_volume"`
}

func (Tick) Kind() EventKind { return EventKindTick }

func (t Tick) Validate() error {
	switch {
	case !t.Price.IsPos():
		return fmt.Errorf("tick price must be positive: %w", ErrDataIntegrity)
	case t.Quantity.IsNeg():
		return fmt.Errorf("tick quantity is negative: %w", ErrDataIntegrity)
	case t.Bid.IsNeg() || t.Ask.IsNeg():
		return fmt.Errorf("tick quote is negative: %w", ErrDataIntegrity)
	case t.Bid.IsPos() && t.Ask.IsPos() && t.Bid.Gt(t.Ask):
		return fmt.Errorf("tick bid %s above ask %s: %w", t.Bid, t.Ask, ErrDataIntegrity)
	}
	return nil
}

// BuyPrice is what a taker pays: the ask when quoted, else the trade price.
func (t Tick) BuyPrice() fixed.Point {
	if t.Ask.IsPos() {
		return t.Ask
	}
	return t.Price
}

// SellPrice is what a taker receives: the bid when quoted, else the trade price.
func (t Tick) SellPrice() fixed.Point {
	if t.Bid.IsPos() {
		return t.Bid
	}
	return t.Price
}

type Level struct {
	Price    fixed.Point `json:"price"`
	Quantity fixed.Point `json:"quantity"`
}

// OrderBookUpdate is a snapshot of the visible book, best levels first.
type OrderBookUpdate struct {
	EventHeader
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

func (OrderBookUpdate) Kind() EventKind { return EventKindBook }

func (u OrderBookUpdate) Validate() error {
	for i, l := range u.Bids {
		if !l.Price.IsPos() || l.Quantity.IsNeg() {
			return fmt.Errorf("invalid bid level %d: %w", i, ErrDataIntegrity)
		}
		if i > 0 && l.Price.Gt(u.Bids[i-1].Price) {
			return fmt.Errorf("bids not sorted at level %d: %w", i, ErrDataIntegrity)
		}
	}
	for i, l := range u.Asks {
		if !l.Price.IsPos() || l.Quantity.IsNeg() {
			return fmt.Errorf("invalid ask level %d: %w", i, ErrDataIntegrity)
		}
		if i > 0 && l.Price.Lt(u.Asks[i-1].Price) {
			return fmt.Errorf("asks not sorted at level %d: %w", i, ErrDataIntegrity)
		}
	}
	if len(u.Bids) > 0 && len(u.Asks) > 0 && u.Bids[0].Price.Gt(u.Asks[0].Price) {
		return fmt.Errorf("crossed book: %w", ErrDataIntegrity)
	}
	return nil
}

// Mid returns the mid price of the best levels, or the single available side.
func (u OrderBookUpdate) Mid() (fixed.Point, bool) {
	switch {
	case len(u.Bids) > 0 && len(u.Asks) > 0:
		return u.Bids[0].Price.Add(u.Asks[0].Price).DivInt(2), true
	case len(u.Bids) > 0:
		return u.Bids[0].Price, true
	case len(u.Asks) > 0:
		return u.Asks[0].Price, true
	}
	return fixed.Zero, false
}

// MarkPrice is the price an event marks open positions at.
func MarkPrice(ev Event) (fixed.Point, bool) {
	switch e := ev.(type) {
	case Bar:
		return e.Close, true
	case *Bar:
		return e.Close, true
	case Tick:
		return e.Price, true
	case *Tick:
		return e.Price, true
	case OrderBookUpdate:
		return e.Mid()
	case *OrderBookUpdate:
		return e.Mid()
	}
	return fixed.Zero, false
}
