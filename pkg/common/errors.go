package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrDataIntegrity     = errors.New("data integrity error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRiskLimit         = errors.New("risk limit exceeded")
	ErrStrategy          = errors.New("strategy error")

	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderTerminal     = errors.New("order is in a terminal state")
	ErrIllegalTransition = errors.New("illegal order transition")
)

// SimulationError carries the simulation context active when a fatal error
// occurred. It matches both its Kind and the wrapped cause with errors.Is.
type SimulationError struct {
	Kind       error
	TimeStamp  time.Time
	Symbol     string
	Sequence   uint64
	EventIndex int64
	OrderId    OrderId
	Err        error
}

func (e *SimulationError) Error() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}

	fmt.Fprintf(&b, " [event=%d", e.EventIndex)
	if !e.TimeStamp.IsZero() {
		fmt.Fprintf(&b, " ts=%s", e.TimeStamp.UTC().Format(time.RFC3339Nano))
	}
	if e.Symbol != "" {
		fmt.Fprintf(&b, " symbol=%s seq=%d", e.Symbol, e.Sequence)
	}
	if e.OrderId != 0 {
		fmt.Fprintf(&b, " order=%d", e.OrderId)
	}
	b.WriteString("]")
	return b.String()
}

func (e *SimulationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// OrderError ties a fatal venue failure to the order being processed.
type OrderError struct {
	OrderId OrderId
	Err     error
}

func (e *OrderError) Error() string { return fmt.Sprintf("order %d: %v", e.OrderId, e.Err) }
func (e *OrderError) Unwrap() error { return e.Err }
