package jsonl

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type record struct {
	Type        string `json:"type"`
	TimeStampMs int64  `json:"timestamp_ms"`
	Data        any    `json:"data"`
}

type candleData struct {
	Provider   string      `json:"provider,omitempty"`
	Symbol     string      `json:"symbol"`
	Interval   string      `json:"interval,omitempty"`
	OpenTimeMs int64       `json:"open_time_ms"`
	Open       fixed.Point `json:"open"`
	High       fixed.Point `json:"high"`
	Low        fixed.Point `json:"low"`
	Close      fixed.Point `json:"close"`
	Volume     fixed.Point `json:"volume"`
}

type tickData struct {
	Provider     string      `json:"provider,omitempty"`
	Symbol       string      `json:"symbol"`
	TimeStampMs  int64       `json:"timestamp_ms"`
	BidPrice     fixed.Point `json:"bid_price"`
	BidQuantity  fixed.Point `json:"bid_quantity"`
	AskPrice     fixed.Point `json:"ask_price"`
	AskQuantity  fixed.Point `json:"ask_quantity"`
	LastPrice    fixed.Point `json:"last_price"`
	LastQuantity fixed.Point `json:"last_quantity"`
}

type tradeData struct {
	Provider    string      `json:"provider,omitempty"`
	Symbol      string      `json:"symbol"`
	TimeStampMs int64       `json:"timestamp_ms"`
	Price       fixed.Point `json:"price"`
	Quantity    fixed.Point `json:"quantity"`
	Side        common.Side `json:"side,omitempty"`
}

type bookData struct {
	Provider    string         `json:"provider,omitempty"`
	Symbol      string         `json:"symbol"`
	TimeStampMs int64          `json:"timestamp_ms"`
	Sequence    uint64         `json:"sequence"`
	Bids        []common.Level `json:"bids"`
	Asks        []common.Level `json:"asks"`
}

// Writer encodes events as JSON lines readable by Feed. Ticks carrying a
// quote are written as tick records, bare prints as trade records.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{w: bw, enc: json.NewEncoder(bw)}
}

func (w *Writer) Write(ev common.Event) error {
	h := ev.Header()
	rec := record{TimeStampMs: h.TimeStamp.UnixMilli()}

	switch e := ev.(type) {
	case common.Bar:
		rec.Type = RecordCandle
		rec.Data = candleData{
			Provider: h.Source, Symbol: h.Symbol, Interval: FormatInterval(e.Period), OpenTimeMs: rec.TimeStampMs,
			Open: e.Open, High: e.High, Low: e.Low, Close: e.Close, Volume: e.Volume,
		}
	case common.Tick:
		if e.Bid.IsZero() && e.Ask.IsZero() {
			rec.Type = RecordTrade
			rec.Data = tradeData{
				Provider: h.Source, Symbol: h.Symbol, TimeStampMs: rec.TimeStampMs,
				Price: e.Price, Quantity: e.Quantity, Side: e.Side,
			}
			break
		}
		rec.Type = RecordTick
		rec.Data = tickData{
			Provider: h.Source, Symbol: h.Symbol, TimeStampMs: rec.TimeStampMs,
			BidPrice: e.Bid, BidQuantity: e.BidVolume, AskPrice: e.Ask, AskQuantity: e.AskVolume,
			LastPrice: e.Price, LastQuantity: e.Quantity,
		}
	case common.OrderBookUpdate:
		rec.Type = RecordOrderBook
		rec.Data = bookData{
			Provider: h.Source, Symbol: h.Symbol, TimeStampMs: rec.TimeStampMs, Sequence: h.Sequence,
			Bids: e.Bids, Asks: e.Asks,
		}
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}

	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("unable to encode %s record: %w", rec.Type, err)
	}
	return nil
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// FormatInterval is the inverse of ParseInterval for whole days, hours and
// minutes. A non-positive interval formats as empty.
func FormatInterval(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d <= 0:
		return ""
	case d%(7*day) == 0:
		return fmt.Sprintf("%dw", int64(d/(7*day)))
	case d%day == 0:
		return fmt.Sprintf("%dd", int64(d/day))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", int64(d/time.Minute))
	}
	return d.String()
}
