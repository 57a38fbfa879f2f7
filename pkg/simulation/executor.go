package simulation

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
)

// sequencer rejects streams that are not chronologically ordered: timestamps
// never decrease and bars of one symbol and period strictly advance.
type sequencer struct {
	started bool
	last    time.Time
	lastBar map[barKey]time.Time
}

type barKey struct {
	symbol string
	period time.Duration
}

func newSequencer() *sequencer {
	return &sequencer{lastBar: make(map[barKey]time.Time)}
}

func (s *sequencer) check(ev common.Event) error {
	h := ev.Header()
	if s.started && h.TimeStamp.Before(s.last) {
		return fmt.Errorf("event at %s precedes %s: %w",
			h.TimeStamp.Format(time.RFC3339Nano), s.last.Format(time.RFC3339Nano), common.ErrDataIntegrity)
	}

	if bar, ok := asBar(ev); ok {
		key := barKey{symbol: h.Symbol, period: bar.Period}
		if prev, seen := s.lastBar[key]; seen && !h.TimeStamp.After(prev) {
			return fmt.Errorf("duplicate or out of order %s bar for %s at %s: %w",
				bar.Period, h.Symbol, h.TimeStamp.Format(time.RFC3339Nano), common.ErrDataIntegrity)
		}
		s.lastBar[key] = h.TimeStamp
	}

	s.started = true
	s.last = h.TimeStamp
	return nil
}

// window is the [from, to) range of simulated time; zero bounds are open.
type window struct {
	from time.Time
	to   time.Time
}

func (w window) contains(ts time.Time) bool {
	if !w.from.IsZero() && ts.Before(w.from) {
		return false
	}
	if !w.to.IsZero() && !ts.Before(w.to) {
		return false
	}
	return true
}

func asBar(ev common.Event) (common.Bar, bool) {
	switch e := ev.(type) {
	case common.Bar:
		return e, true
	case *common.Bar:
		return *e, true
	}
	return common.Bar{}, false
}
