package historical

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const (
	invalidIndex           = -1
	barReaderComponentName = "datasource.historical.reader"
)

// BinaryBar is the on-disk record of a bar archive: open time in unix
// nanoseconds followed by prices and volume, little endian.
type BinaryBar struct {
	TimeStamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (b BinaryBar) ToBar(symbol string, period time.Duration, bar *common.Bar) {
	bar.Source = barReaderComponentName
	bar.Symbol = symbol
	bar.TimeStamp = time.Unix(0, b.TimeStamp).UTC()
	bar.Period = period
	bar.Open = fixed.FromFloat64(b.Open)
	bar.High = fixed.FromFloat64(b.High)
	bar.Low = fixed.FromFloat64(b.Low)
	bar.Close = fixed.FromFloat64(b.Close)
	bar.Volume = fixed.FromFloat64(b.Volume)
}

func FromBar(bar common.Bar) BinaryBar {
	return BinaryBar{
		TimeStamp: bar.TimeStamp.UnixNano(),
		Open:      bar.Open.F64(),
		High:      bar.High.F64(),
		Low:       bar.Low.F64(),
		Close:     bar.Close.F64(),
		Volume:    bar.Volume.F64(),
	}
}

// BarReader streams the bars of one symbol within [from, to) out of a bar
// archive. A zero to reads until the end of the archive.
type BarReader struct {
	source *Source[BinaryBar]

	symbol string
	period time.Duration
	from   int64
	to     int64
	idx    int64
}

func NewBarReader(source *Source[BinaryBar], symbol string, period time.Duration, from, to time.Time) *BarReader {
	r := &BarReader{
		source: source,
		symbol: symbol,
		period: period,
		from:   from.UnixNano(),
		idx:    invalidIndex,
	}
	if !to.IsZero() {
		r.to = to.UnixNano()
	}
	if from.IsZero() {
		r.from = 0
	}
	return r
}

// Open maps path and returns a reader over it. Closing the reader unmaps
// the file.
func Open(path, symbol string, period time.Duration, from, to time.Time) (*BarReader, error) {
	source := NewSource[BinaryBar](path)
	if err := source.Open(); err != nil {
		return nil, err
	}
	return NewBarReader(source, symbol, period, from, to), nil
}

func (r *BarReader) Next() (common.Event, error) {
	var bar common.Bar
	var binBar BinaryBar

	if r.idx == invalidIndex {
		if err := r.lookupStartIndex(); err != nil {
			return nil, err
		}
	}

	if err := r.source.Read(r.idx, &binBar); err != nil {
		if errors.Is(err, errEndOfSource) {
			return nil, datasource.ErrEof
		}
		return nil, fmt.Errorf("error reading entry at index %d: %w", r.idx, err)
	}
	r.idx++

	if binBar.TimeStamp < r.from {
		return nil, fmt.Errorf("bar at index %d precedes range start: %w", r.idx-1, common.ErrDataIntegrity)
	}
	if r.to != 0 && binBar.TimeStamp >= r.to {
		return nil, datasource.ErrEof
	}

	binBar.ToBar(r.symbol, r.period, &bar)
	return bar, nil
}

func (r *BarReader) Close() error {
	return r.source.Close()
}

func (r *BarReader) lookupStartIndex() error {
	entryCount, err := r.source.Len()
	if err != nil {
		return err
	}

	var entry BinaryBar

	low := int64(0)
	high := entryCount - 1

	for low <= high {
		mid := (low + high) / 2

		if err := r.source.Read(mid, &entry); err != nil {
			return fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.TimeStamp < r.from {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	r.idx = low
	return nil
}

// WriteBars encodes bars in the archive format read by BarReader.
func WriteBars(w io.Writer, bars ...common.Bar) error {
	for i, bar := range bars {
		if err := binary.Write(w, binary.LittleEndian, FromBar(bar)); err != nil {
			return fmt.Errorf("unable to write bar %d: %w", i, err)
		}
	}
	return nil
}
