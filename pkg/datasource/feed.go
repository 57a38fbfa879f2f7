package datasource

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/peter-kozarec/tessera/pkg/common"
)

var ErrEof = errors.New("EOF")

// Feed yields market events in non-decreasing timestamp order. It returns
// ErrEof once exhausted and is not rewindable.
type Feed interface {
	Next() (common.Event, error)
}

// Closer is implemented by feeds holding external resources.
type Closer interface {
	Close() error
}

// Close releases the resources of f, if it holds any.
func Close(f Feed) error {
	if c, ok := f.(Closer); ok {
		return c.Close()
	}
	return nil
}

type FeedFunc func() (common.Event, error)

func (f FeedFunc) Next() (common.Event, error) { return f() }

type SliceFeed struct {
	events []common.Event
	idx    int
}

func NewSliceFeed(events ...common.Event) *SliceFeed {
	return &SliceFeed{events: events}
}

func (f *SliceFeed) Next() (common.Event, error) {
	if f.idx >= len(f.events) {
		return nil, ErrEof
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, nil
}

func (f *SliceFeed) Remaining() int { return len(f.events) - f.idx }

// Collect drains f into a slice.
func Collect(f Feed) ([]common.Event, error) {
	var events []common.Event
	for {
		ev, err := f.Next()
		if errors.Is(err, ErrEof) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

// SequenceFeed stamps events with a monotonically increasing ingestion
// sequence number, starting at 1.
type SequenceFeed struct {
	feed Feed
	seq  uint64
}

func NewSequenceFeed(feed Feed) *SequenceFeed {
	return &SequenceFeed{feed: feed}
}

func (f *SequenceFeed) Next() (common.Event, error) {
	ev, err := f.feed.Next()
	if err != nil {
		return nil, err
	}
	f.seq++
	return withSequence(ev, f.seq), nil
}

func (f *SequenceFeed) Close() error { return Close(f.feed) }

func withSequence(ev common.Event, seq uint64) common.Event {
	switch e := ev.(type) {
	case common.Bar:
		e.Sequence = seq
		return e
	case *common.Bar:
		c := *e
		c.Sequence = seq
		return c
	case common.Tick:
		e.Sequence = seq
		return e
	case *common.Tick:
		c := *e
		c.Sequence = seq
		return c
	case common.OrderBookUpdate:
		e.Sequence = seq
		return e
	case *common.OrderBookUpdate:
		c := *e
		c.Sequence = seq
		return c
	}
	return ev
}

// Filter selects events by symbol, time range and kind. Zero values match
// everything; End is exclusive.
type Filter struct {
	Symbols []string
	Start   time.Time
	End     time.Time
	Kinds   []common.EventKind
}

func (flt Filter) Match(ev common.Event) bool {
	h := ev.Header()
	if len(flt.Symbols) > 0 && !slices.Contains(flt.Symbols, h.Symbol) {
		return false
	}
	if !flt.Start.IsZero() && h.TimeStamp.Before(flt.Start) {
		return false
	}
	if !flt.End.IsZero() && !h.TimeStamp.Before(flt.End) {
		return false
	}
	if len(flt.Kinds) > 0 && !slices.Contains(flt.Kinds, ev.Kind()) {
		return false
	}
	return true
}

type FilterFeed struct {
	feed   Feed
	filter Filter
}

func NewFilterFeed(feed Feed, filter Filter) *FilterFeed {
	return &FilterFeed{feed: feed, filter: filter}
}

func (f *FilterFeed) Next() (common.Event, error) {
	for {
		ev, err := f.feed.Next()
		if err != nil {
			return nil, err
		}
		if f.filter.Match(ev) {
			return ev, nil
		}
	}
}

func (f *FilterFeed) Close() error { return Close(f.feed) }

// MergeFeed interleaves already ordered feeds by (timestamp, sequence).
// Events with equal keys keep the order of the feeds passed in.
type MergeFeed struct {
	feeds  []Feed
	heads  mergeHeap
	primed bool
}

func NewMergeFeed(feeds ...Feed) *MergeFeed {
	return &MergeFeed{feeds: feeds}
}

func (f *MergeFeed) Next() (common.Event, error) {
	if !f.primed {
		f.primed = true
		for i := range f.feeds {
			if err := f.advance(i); err != nil {
				return nil, err
			}
		}
		heap.Init(&f.heads)
	}
	if f.heads.Len() == 0 {
		return nil, ErrEof
	}

	top := f.heads[0]
	ev := top.event

	next, err := f.feeds[top.feed].Next()
	switch {
	case errors.Is(err, ErrEof):
		heap.Pop(&f.heads)
	case err != nil:
		return nil, fmt.Errorf("feed %d: %w", top.feed, err)
	default:
		f.heads[0].event = next
		heap.Fix(&f.heads, 0)
	}
	return ev, nil
}

func (f *MergeFeed) Close() error {
	var err error
	for _, feed := range f.feeds {
		err = multierr.Append(err, Close(feed))
	}
	return err
}

func (f *MergeFeed) advance(i int) error {
	ev, err := f.feeds[i].Next()
	if errors.Is(err, ErrEof) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("feed %d: %w", i, err)
	}
	f.heads = append(f.heads, mergeHead{event: ev, feed: i})
	return nil
}

type mergeHead struct {
	event common.Event
	feed  int
}

type mergeHeap []mergeHead

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].event.Header(), h[j].event.Header()
	if a.Before(b) {
		return true
	}
	if b.Before(a) {
		return false
	}
	return h[i].feed < h[j].feed
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(mergeHead)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ChannelFeed adapts a channel of events, as delivered by a streaming
// source, to a Feed. A closed channel ends the feed.
type ChannelFeed struct {
	ctx    context.Context
	events <-chan common.Event
}

func NewChannelFeed(ctx context.Context, events <-chan common.Event) *ChannelFeed {
	return &ChannelFeed{ctx: ctx, events: events}
}

func (f *ChannelFeed) Next() (common.Event, error) {
	select {
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	case ev, ok := <-f.events:
		if !ok {
			return nil, ErrEof
		}
		return ev, nil
	}
}
