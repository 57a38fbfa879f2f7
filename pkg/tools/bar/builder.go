package bar

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const componentName = "tools.bar.builder"

type PriceMode int

const (
	PriceModeLast PriceMode = iota
	PriceModeAsk
	PriceModeBid
	PriceModeMid
)

// Builder aggregates ticks of any number of symbols into bars aligned to
// multiples of the period. A bar is complete once a tick of a later period
// arrives for the same symbol.
type Builder struct {
	period time.Duration
	mode   PriceMode

	inConstruction map[string]*common.Bar
}

func NewBuilder(period time.Duration, mode PriceMode) *Builder {
	if period <= 0 {
		panic(fmt.Sprintf("invalid bar period %s", period))
	}
	return &Builder{
		period:         period,
		mode:           mode,
		inConstruction: make(map[string]*common.Bar),
	}
}

// OnTick folds tick into the bar under construction and returns the bar it
// completed, if any.
func (b *Builder) OnTick(tick common.Tick) (common.Bar, bool) {
	var completed common.Bar
	var done bool

	openTime := tick.TimeStamp.Truncate(b.period)
	price := b.price(tick)
	volume := tick.Quantity
	if volume.IsZero() {
		volume = tick.AskVolume.Add(tick.BidVolume)
	}

	bar, ok := b.inConstruction[tick.Symbol]
	if ok && !openTime.Equal(bar.TimeStamp) {
		completed, done = *bar, true
		ok = false
	}

	if !ok {
		b.inConstruction[tick.Symbol] = &common.Bar{
			EventHeader: common.EventHeader{
				Source:    componentName,
				Symbol:    tick.Symbol,
				TimeStamp: openTime,
			},
			Period: b.period,
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
		return completed, done
	}

	bar.High = bar.High.Max(price)
	bar.Low = bar.Low.Min(price)
	bar.Close = price
	bar.Volume = bar.Volume.Add(volume)

	return completed, done
}

// Flush returns the bar under construction for symbol and forgets it.
func (b *Builder) Flush(symbol string) (common.Bar, bool) {
	bar, ok := b.inConstruction[symbol]
	if !ok {
		return common.Bar{}, false
	}
	delete(b.inConstruction, symbol)
	return *bar, true
}

func (b *Builder) price(tick common.Tick) fixed.Point {
	switch b.mode {
	case PriceModeAsk:
		return tick.BuyPrice()
	case PriceModeBid:
		return tick.SellPrice()
	case PriceModeMid:
		if tick.Bid.IsPos() && tick.Ask.IsPos() {
			return tick.Bid.Add(tick.Ask).DivInt(2)
		}
		return tick.Price
	default:
		return tick.Price
	}
}
