package simulation

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
)

// Clock is the simulation time. It only moves forward, driven by event
// timestamps.
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time { return c.now }

func (c *Clock) Advance(ts time.Time) error {
	if ts.Before(c.now) {
		return fmt.Errorf("clock cannot move back from %s to %s: %w",
			c.now.Format(time.RFC3339Nano), ts.Format(time.RFC3339Nano), common.ErrDataIntegrity)
	}
	c.now = ts
	return nil
}
