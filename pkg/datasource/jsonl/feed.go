package jsonl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const (
	componentName = "datasource.jsonl"

	RecordCandle    = "candle"
	RecordTrade     = "trade"
	RecordTick      = "tick"
	RecordOrderBook = "orderbook_snapshot"

	maxLineSize = 4 << 20
)

// Feed decodes a stream of JSON lines of the form
// {"type":"candle","data":{...}}. Records of other types are skipped.
type Feed struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

func NewFeed(r io.Reader) *Feed {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Feed{scanner: scanner}
}

func OpenFile(path string) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	feed := NewFeed(f)
	feed.closer = f
	return feed, nil
}

func (f *Feed) Next() (common.Event, error) {
	for f.scanner.Scan() {
		f.line++
		line := bytes.TrimSpace(f.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", f.line, err)
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}
	if err := f.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", f.line+1, err)
	}
	return nil, datasource.ErrEof
}

func (f *Feed) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// LoadFile reads every matching record of path and returns them ordered by
// timestamp. Records sharing a timestamp keep their file order.
func LoadFile(path string, filter datasource.Filter) (*datasource.SliceFeed, error) {
	feed, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = feed.Close() }()

	events, err := datasource.Collect(datasource.NewFilterFeed(feed, filter))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Header().TimeStamp.Before(events[j].Header().TimeStamp)
	})
	return datasource.NewSliceFeed(events...), nil
}

// Decode converts one record into an event. Unsupported record types yield
// a nil event and no error.
func Decode(line []byte) (common.Event, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("invalid json: %w", common.ErrDataIntegrity)
	}
	record := gjson.ParseBytes(line)
	data := record.Get("data")

	switch record.Get("type").String() {
	case RecordCandle:
		return decodeCandle(data)
	case RecordTrade:
		return decodeTrade(data)
	case RecordTick:
		return decodeTick(data)
	case RecordOrderBook:
		return decodeOrderBook(data)
	}
	return nil, nil
}

func decodeCandle(data gjson.Result) (common.Event, error) {
	var err error
	bar := common.Bar{EventHeader: header(data, "open_time_ms")}
	if bar.Symbol == "" {
		return nil, fmt.Errorf("candle without symbol: %w", common.ErrDataIntegrity)
	}
	if bar.Period, err = ParseInterval(data.Get("interval").String()); err != nil {
		return nil, err
	}
	fields := []struct {
		key string
		dst *fixed.Point
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = decimal(data.Get(f.key)); err != nil {
			return nil, fmt.Errorf("candle %s: %w", f.key, err)
		}
	}
	return bar, nil
}

func decodeTrade(data gjson.Result) (common.Event, error) {
	var err error
	tick := common.Tick{EventHeader: header(data, "timestamp_ms")}
	if tick.Symbol == "" {
		return nil, fmt.Errorf("trade without symbol: %w", common.ErrDataIntegrity)
	}
	if tick.Price, err = decimal(data.Get("price")); err != nil {
		return nil, fmt.Errorf("trade price: %w", err)
	}
	if tick.Quantity, err = decimal(data.Get("quantity")); err != nil {
		return nil, fmt.Errorf("trade quantity: %w", err)
	}
	if side := data.Get("side"); side.Exists() {
		if err := tick.Side.UnmarshalText([]byte(side.String())); err != nil {
			return nil, fmt.Errorf("trade side: %w", err)
		}
	}
	return tick, nil
}

func decodeTick(data gjson.Result) (common.Event, error) {
	var err error
	tick := common.Tick{EventHeader: header(data, "timestamp_ms")}
	if tick.Symbol == "" {
		return nil, fmt.Errorf("tick without symbol: %w", common.ErrDataIntegrity)
	}
	fields := []struct {
		key string
		dst *fixed.Point
	}{
		{"bid_price", &tick.Bid},
		{"bid_quantity", &tick.BidVolume},
		{"ask_price", &tick.Ask},
		{"ask_quantity", &tick.AskVolume},
		{"last_price", &tick.Price},
		{"last_quantity", &tick.Quantity},
	}
	for _, f := range fields {
		if *f.dst, err = decimal(data.Get(f.key)); err != nil {
			return nil, fmt.Errorf("tick %s: %w", f.key, err)
		}
	}
	if tick.Price.IsZero() && tick.Bid.IsPos() && tick.Ask.IsPos() {
		tick.Price = tick.Bid.Add(tick.Ask).DivInt(2)
	}
	return tick, nil
}

func decodeOrderBook(data gjson.Result) (common.Event, error) {
	var err error
	book := common.OrderBookUpdate{EventHeader: header(data, "timestamp_ms")}
	if book.Symbol == "" {
		return nil, fmt.Errorf("order book without symbol: %w", common.ErrDataIntegrity)
	}
	if book.Bids, err = levels(data.Get("bids")); err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	if book.Asks, err = levels(data.Get("asks")); err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return book, nil
}

func header(data gjson.Result, timeKey string) common.EventHeader {
	source := data.Get("provider").String()
	if source == "" {
		source = componentName
	}
	return common.EventHeader{
		Source:    source,
		Symbol:    data.Get("symbol").String(),
		TimeStamp: time.UnixMilli(data.Get(timeKey).Int()).UTC(),
	}
}

func levels(arr gjson.Result) ([]common.Level, error) {
	var out []common.Level
	var err error
	arr.ForEach(func(_, value gjson.Result) bool {
		var l common.Level
		price, quantity := value.Get("price"), value.Get("quantity")
		if value.IsArray() {
			price, quantity = value.Get("0"), value.Get("1")
		}
		if l.Price, err = decimal(price); err != nil {
			return false
		}
		if l.Quantity, err = decimal(quantity); err != nil {
			return false
		}
		out = append(out, l)
		return true
	})
	return out, err
}

func decimal(r gjson.Result) (fixed.Point, error) {
	switch r.Type {
	case gjson.String:
		p, err := fixed.Parse(r.Str)
		if err != nil {
			return fixed.Zero, fmt.Errorf("%w: %w", err, common.ErrDataIntegrity)
		}
		return p, nil
	case gjson.Number:
		if p, err := fixed.Parse(r.Raw); err == nil {
			return p, nil
		}
		return fixed.FromFloat64(r.Num), nil
	case gjson.Null:
		return fixed.Zero, nil
	}
	return fixed.Zero, fmt.Errorf("unexpected value %q: %w", r.Raw, common.ErrDataIntegrity)
}

// ParseInterval understands Go durations plus the exchange style d and w
// suffixes. An empty interval defaults to one minute.
func ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return time.Minute, nil
	}
	unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}
	if mult, ok := unit[s[len(s)-1]]; ok {
		n, err := time.ParseDuration(s[:len(s)-1] + "h")
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid interval %q: %w", s, common.ErrDataIntegrity)
		}
		return time.Duration(n.Hours() * float64(mult)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q: %w", s, common.ErrDataIntegrity)
	}
	return d, nil
}
