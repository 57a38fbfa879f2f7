package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type Side int8
type OrderType int8
type TimeInForce int8
type OrderStatus int8

type OrderId = uint64

const (
	SideBuy Side = iota + 1
	SideSell
)

const (
	OrderTypeMarket OrderType = iota + 1
	OrderTypeLimit
)

const (
	TimeInForceGoodTillCancel TimeInForce = iota
	TimeInForceImmediateOrCancel
	TimeInForceFillOrKill
	TimeInForceGoodTillDate
)

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
)

var (
	sideNames   = map[Side]string{SideBuy: "buy", SideSell: "sell"}
	typeNames   = map[OrderType]string{OrderTypeMarket: "market", OrderTypeLimit: "limit"}
	tifNames    = map[TimeInForce]string{TimeInForceGoodTillCancel: "gtc", TimeInForceImmediateOrCancel: "ioc", TimeInForceFillOrKill: "fok", TimeInForceGoodTillDate: "gtd"}
	statusNames = map[OrderStatus]string{
		OrderStatusNew:             "new",
		OrderStatusPartiallyFilled: "partially_filled",
		OrderStatusFilled:          "filled",
		OrderStatusCanceled:        "canceled",
		OrderStatusRejected:        "rejected",
	}
)

func (s Side) String() string        { return nameOf(sideNames, s) }
func (t OrderType) String() string   { return nameOf(typeNames, t) }
func (t TimeInForce) String() string { return nameOf(tifNames, t) }
func (s OrderStatus) String() string { return nameOf(statusNames, s) }

func (s Side) MarshalText() ([]byte, error)        { return []byte(s.String()), nil }
func (t OrderType) MarshalText() ([]byte, error)   { return []byte(t.String()), nil }
func (t TimeInForce) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(text []byte) error        { return parseName(sideNames, text, s) }
func (t *OrderType) UnmarshalText(text []byte) error   { return parseName(typeNames, text, t) }
func (t *TimeInForce) UnmarshalText(text []byte) error { return parseName(tifNames, text, t) }
func (s *OrderStatus) UnmarshalText(text []byte) error { return parseName(statusNames, text, s) }

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusRejected
}

// CanTransition reports whether the order state machine allows s -> to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusNew:
		return to == OrderStatusPartiallyFilled || to == OrderStatusFilled ||
			to == OrderStatusCanceled || to == OrderStatusRejected
	case OrderStatusPartiallyFilled:
		return to == OrderStatusPartiallyFilled || to == OrderStatusFilled || to == OrderStatusCanceled
	default:
		return false
	}
}

// OrderRequest is what a strategy hands to a broker.
type OrderRequest struct {
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    fixed.Point `json:"quantity"`
	LimitPrice  fixed.Point `json:"limit_price,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force"`
	ExpireTime  time.Time   `json:"expire_time,omitempty"`
	Comment     string      `json:"comment,omitempty"`
}

func MarketOrder(symbol string, side Side, quantity fixed.Point) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: side, Type: OrderTypeMarket, Quantity: quantity}
}

func LimitOrder(symbol string, side Side, quantity, limit fixed.Point) OrderRequest {
	return OrderRequest{Symbol: symbol, Side: side, Type: OrderTypeLimit, Quantity: quantity, LimitPrice: limit}
}

// Validate checks the request is well formed; it does not check funds or risk.
func (r OrderRequest) Validate() error {
	switch {
	case r.Symbol == "":
		return fmt.Errorf("order symbol is empty: %w", ErrConfiguration)
	case r.Side != SideBuy && r.Side != SideSell:
		return fmt.Errorf("order side %d is invalid: %w", r.Side, ErrConfiguration)
	case !r.Quantity.IsPos():
		return fmt.Errorf("order quantity %s must be positive: %w", r.Quantity, ErrConfiguration)
	}

	switch r.Type {
	case OrderTypeMarket:
		if !r.LimitPrice.IsZero() {
			return fmt.Errorf("market order must not carry a limit price: %w", ErrConfiguration)
		}
	case OrderTypeLimit:
		if !r.LimitPrice.IsPos() {
			return fmt.Errorf("limit order requires a positive limit price: %w", ErrConfiguration)
		}
	default:
		return fmt.Errorf("order type %d is invalid: %w", r.Type, ErrConfiguration)
	}

	if r.TimeInForce == TimeInForceGoodTillDate && r.ExpireTime.IsZero() {
		return fmt.Errorf("gtd order requires an expire time: %w", ErrConfiguration)
	}
	return nil
}

// Order is owned by the broker; strategies only ever see copies.
type Order struct {
	Id             OrderId     `json:"id" csv:"id"`
	Symbol         string      `json:"symbol" csv:"symbol"`
	Side           Side        `json:"side" csv:"side"`
	Type           OrderType   `json:"type" csv:"type"`
	Quantity       fixed.Point `json:"quantity" csv:"quantity"`
	FilledQuantity fixed.Point `json:"filled_quantity" csv:"filled_quantity"`
	LimitPrice     fixed.Point `json:"limit_price" csv:"limit_price"`
	AvgFillPrice   fixed.Point `json:"avg_fill_price" csv:"avg_fill_price"`
	TimeInForce    TimeInForce `json:"time_in_force" csv:"time_in_force"`
	ExpireTime     time.Time   `json:"expire_time,omitempty" csv:"-"`
	Status         OrderStatus `json:"status" csv:"status"`
	SubmitTime     time.Time   `json:"submit_time" csv:"submit_time"`
	UpdateTime     time.Time   `json:"update_time" csv:"update_time"`
	Reason         string      `json:"reason,omitempty" csv:"reason"`
	Comment        string      `json:"comment,omitempty" csv:"comment"`
}

func NewOrder(id OrderId, req OrderRequest, ts time.Time) Order {
	return Order{
		Id:             id,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Type:           req.Type,
		Quantity:       req.Quantity,
		FilledQuantity: fixed.Zero,
		LimitPrice:     req.LimitPrice,
		AvgFillPrice:   fixed.Zero,
		TimeInForce:    req.TimeInForce,
		ExpireTime:     req.ExpireTime,
		Status:         OrderStatusNew,
		SubmitTime:     ts,
		UpdateTime:     ts,
		Comment:        req.Comment,
	}
}

func (o Order) Remaining() fixed.Point {
	return o.Quantity.Sub(o.FilledQuantity)
}

func (o Order) IsActive() bool {
	return !o.Status.IsTerminal()
}

// Transition moves the order along its state machine.
func (o *Order) Transition(to OrderStatus, ts time.Time, reason string) error {
	if !o.Status.CanTransition(to) {
		return fmt.Errorf("order %d: %s -> %s: %w", o.Id, o.Status, to, ErrIllegalTransition)
	}
	o.Status = to
	o.UpdateTime = ts
	if reason != "" {
		o.Reason = reason
	}
	return nil
}

// ApplyExecution records an execution of quantity at price and moves the
// order to partially_filled or filled.
func (o *Order) ApplyExecution(price, quantity fixed.Point, ts time.Time) error {
	filled := o.FilledQuantity.Add(quantity)
	if filled.Gt(o.Quantity) {
		return fmt.Errorf("order %d: fill %s exceeds remaining %s: %w", o.Id, quantity, o.Remaining(), ErrIllegalTransition)
	}

	o.AvgFillPrice = o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(quantity)).Div(filled)
	o.FilledQuantity = filled

	to := OrderStatusPartiallyFilled
	if filled.Eq(o.Quantity) {
		to = OrderStatusFilled
	}
	return o.Transition(to, ts, "")
}

type enum interface{ ~int8 }

func nameOf[K enum](names map[K]string, k K) string {
	if n, ok := names[k]; ok {
		return n
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

func parseName[K enum](names map[K]string, text []byte, out *K) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for k, n := range names {
		if n == s {
			*out = k
			return nil
		}
	}
	return fmt.Errorf("unknown value %q", s)
}
