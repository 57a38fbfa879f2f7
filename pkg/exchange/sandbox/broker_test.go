package sandbox

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/exchange"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

var _ exchange.Venue = (*Broker)(nil)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) fixed.Point { return fixed.MustParse(s) }

func header(i int) common.EventHeader {
	return common.EventHeader{Symbol: "BTC", TimeStamp: t0.Add(time.Duration(i) * time.Minute), Sequence: uint64(i)}
}

func newBar(i int, o, h, l, c string) common.Bar {
	return common.Bar{
		EventHeader: header(i),
		Period:      time.Minute,
		Open:        d(o),
		High:        d(h),
		Low:         d(l),
		Close:       d(c),
		Volume:      d("100"),
	}
}

func flatBar(i int, price string) common.Bar {
	return newBar(i, price, price, price, price)
}

func newTestBroker(cash string, options ...Option) *Broker {
	return NewBroker(portfolio.New(d(cash), fixed.Zero), rand.New(rand.NewSource(7)), options...)
}

func onEvent(t *testing.T, b *Broker, ev common.Event) []common.Fill {
	t.Helper()
	fills, err := b.OnEvent(ev)
	require.NoError(t, err)
	return fills
}

func submit(t *testing.T, b *Broker, req common.OrderRequest) common.OrderId {
	t.Helper()
	id, err := b.Submit(req)
	require.NoError(t, err)
	return id
}

func status(t *testing.T, b *Broker, id common.OrderId) common.OrderStatus {
	t.Helper()
	o, ok := b.Order(id)
	require.True(t, ok)
	return o.Status
}

func TestSandboxBroker_MarketOrderFillsOnNextEvent(t *testing.T) {
	b := newTestBroker("1000")

	assert.Empty(t, onEvent(t, b, newBar(0, "10", "11", "9", "10")))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))

	fills := onEvent(t, b, newBar(1, "12", "13", "11", "12"))
	require.Len(t, fills, 1)
	assert.Equal(t, id, fills[0].OrderId)
	assert.True(t, fills[0].Price.Eq(d("12")))
	assert.True(t, fills[0].Slippage.IsZero())
	assert.Equal(t, header(1).TimeStamp, fills[0].TimeStamp)
	assert.Equal(t, common.OrderStatusFilled, status(t, b, id))
	assert.True(t, b.Portfolio().Cash().Eq(d("988")))
	assert.Empty(t, b.OpenOrders())
}

func TestSandboxBroker_NoFillAgainstCreatingEvent(t *testing.T) {
	b := newTestBroker("1000")

	onEvent(t, b, flatBar(0, "10"))
	submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))

	// an event for another symbol consumes the eligibility slot without a match
	other := common.Bar{EventHeader: common.EventHeader{Symbol: "ETH", TimeStamp: t0.Add(time.Minute)}, Open: d("5"), High: d("5"), Low: d("5"), Close: d("5"), Volume: d("1")}
	assert.Empty(t, onEvent(t, b, other))

	fills := onEvent(t, b, flatBar(2, "11"))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Eq(d("11")))
}

func TestSandboxBroker_Latency(t *testing.T) {
	tests := []struct {
		name      string
		events    int
		delay     time.Duration
		fillOnBar int
	}{
		{"none", 0, 0, 1},
		{"two events", 2, 0, 3},
		{"ninety seconds", 0, 90 * time.Second, 2},
		{"events and delay", 1, 150 * time.Second, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker("1000", WithLatency(tt.events, tt.delay))
			onEvent(t, b, flatBar(0, "10"))
			submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))

			filledOn := -1
			for i := 1; i <= 5; i++ {
				if fills := onEvent(t, b, flatBar(i, "10")); len(fills) > 0 && filledOn < 0 {
					filledOn = i
				}
			}
			assert.Equal(t, tt.fillOnBar, filledOn)
		})
	}
}

func TestSandboxBroker_LimitBarMatching(t *testing.T) {
	tests := []struct {
		name      string
		side      common.Side
		limit     string
		bar       common.Bar
		wantFill  bool
		wantPrice string
	}{
		{"buy dips through limit", common.SideBuy, "95", newBar(1, "98", "99", "94", "96"), true, "95"},
		{"buy gaps below limit", common.SideBuy, "95", newBar(1, "93", "94", "92", "93"), true, "93"},
		{"buy touches limit", common.SideBuy, "95", newBar(1, "97", "98", "95", "96"), true, "95"},
		{"buy stays above", common.SideBuy, "95", newBar(1, "98", "99", "96", "97"), false, ""},
		{"sell rallies through limit", common.SideSell, "105", newBar(1, "104", "106", "103", "105"), true, "105"},
		{"sell gaps above limit", common.SideSell, "105", newBar(1, "107", "108", "106", "107"), true, "107"},
		{"sell stays below", common.SideSell, "105", newBar(1, "101", "104", "100", "102"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker("100000")
			onEvent(t, b, flatBar(0, "100"))
			id := submit(t, b, common.LimitOrder("BTC", tt.side, fixed.One, d(tt.limit)))

			fills := onEvent(t, b, tt.bar)
			if !tt.wantFill {
				assert.Empty(t, fills)
				assert.Equal(t, common.OrderStatusNew, status(t, b, id))
				assert.Len(t, b.OpenOrders(), 1)
				return
			}
			require.Len(t, fills, 1)
			assert.True(t, fills[0].Price.Eq(d(tt.wantPrice)), "price %s", fills[0].Price)
			assert.Equal(t, common.OrderStatusFilled, status(t, b, id))
		})
	}
}

func TestSandboxBroker_LimitOrderIgnoresSlippage(t *testing.T) {
	b := newTestBroker("100000", WithSlippage(FixedBpsSlippage{Bps: d("100")}))
	onEvent(t, b, flatBar(0, "100"))
	submit(t, b, common.LimitOrder("BTC", common.SideBuy, fixed.One, d("95")))

	fills := onEvent(t, b, newBar(1, "98", "99", "94", "96"))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Eq(d("95")))
}

func TestSandboxBroker_InsufficientFundsRejected(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := newTestBroker("100", WithLogger(zap.New(core)))

	onEvent(t, b, flatBar(0, "100"))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Two))

	o, ok := b.Order(id)
	require.True(t, ok)
	assert.Equal(t, common.OrderStatusRejected, o.Status)
	assert.Contains(t, o.Reason, common.ErrInsufficientFunds.Error())
	assert.True(t, b.Portfolio().Cash().Eq(d("100")))
	assert.Empty(t, b.OpenOrders())

	rejected := logs.FilterMessage("order rejected").All()
	require.Len(t, rejected, 1)
	ts, ok := rejected[0].ContextMap()["ts"].(time.Time)
	require.True(t, ok)
	assert.True(t, t0.Equal(ts))
	assert.Equal(t, uint64(id), rejected[0].ContextMap()["order_id"])

	assert.Empty(t, onEvent(t, b, flatBar(1, "100")))
	assert.True(t, b.Portfolio().Cash().Eq(d("100")))
}

func TestSandboxBroker_InsufficientFundsAtFillTime(t *testing.T) {
	b := newTestBroker("100")

	// no mark yet, the order passes submission and fails when priced
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Two))
	assert.Equal(t, common.OrderStatusNew, status(t, b, id))

	assert.Empty(t, onEvent(t, b, flatBar(0, "100")))
	assert.Equal(t, common.OrderStatusRejected, status(t, b, id))
	assert.True(t, b.Portfolio().Cash().Eq(d("100")))
}

func TestSandboxBroker_ResidualCanceledWhenFundsRunOut(t *testing.T) {
	b := newTestBroker("150", WithMaxFillRatio(fixed.PointFive))

	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Two))
	require.Len(t, onEvent(t, b, flatBar(0, "100")), 1)
	assert.Equal(t, common.OrderStatusPartiallyFilled, status(t, b, id))

	assert.Empty(t, onEvent(t, b, flatBar(1, "100")))
	o, _ := b.Order(id)
	assert.Equal(t, common.OrderStatusCanceled, o.Status)
	assert.True(t, o.FilledQuantity.Eq(fixed.One))
	assert.True(t, b.Portfolio().Cash().Eq(d("50")))
}

func TestSandboxBroker_MaxFillRatioPartialFills(t *testing.T) {
	b := newTestBroker("100000", WithMaxFillRatio(d("0.3")))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))

	var quantities []string
	for i := 0; i < 6; i++ {
		for _, f := range onEvent(t, b, flatBar(i, "10")) {
			quantities = append(quantities, f.Quantity.String())
		}
	}

	assert.Equal(t, []string{"0.3", "0.3", "0.3", "0.1"}, quantities)
	o, _ := b.Order(id)
	assert.Equal(t, common.OrderStatusFilled, o.Status)
	assert.True(t, o.FilledQuantity.Eq(o.Quantity))
}

func TestSandboxBroker_LiquidityCap(t *testing.T) {
	b := newTestBroker("100000", WithLiquidity(d("0.1")))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, d("25")))

	total := fixed.Zero
	var count int
	for i := 0; i < 4; i++ {
		for _, f := range onEvent(t, b, flatBar(i, "10")) {
			assert.True(t, f.Quantity.Lte(d("10")))
			total = total.Add(f.Quantity)
			count++
		}
	}

	assert.Equal(t, 3, count)
	assert.True(t, total.Eq(d("25")))
	assert.Equal(t, common.OrderStatusFilled, status(t, b, id))
}

func TestSandboxBroker_TimeInForce(t *testing.T) {
	t.Run("ioc not crossed", func(t *testing.T) {
		b := newTestBroker("100000")
		req := common.LimitOrder("BTC", common.SideBuy, fixed.One, d("90"))
		req.TimeInForce = common.TimeInForceImmediateOrCancel
		id := submit(t, b, req)

		assert.Empty(t, onEvent(t, b, flatBar(0, "100")))
		assert.Equal(t, common.OrderStatusCanceled, status(t, b, id))
	})

	t.Run("ioc residual", func(t *testing.T) {
		b := newTestBroker("100000", WithMaxFillRatio(fixed.PointFive))
		req := common.MarketOrder("BTC", common.SideBuy, fixed.Two)
		req.TimeInForce = common.TimeInForceImmediateOrCancel
		id := submit(t, b, req)

		require.Len(t, onEvent(t, b, flatBar(0, "100")), 1)
		o, _ := b.Order(id)
		assert.Equal(t, common.OrderStatusCanceled, o.Status)
		assert.True(t, o.FilledQuantity.Eq(fixed.One))
	})

	t.Run("fok partial kills", func(t *testing.T) {
		b := newTestBroker("100000", WithMaxFillRatio(fixed.PointFive))
		req := common.MarketOrder("BTC", common.SideBuy, fixed.Two)
		req.TimeInForce = common.TimeInForceFillOrKill
		id := submit(t, b, req)

		assert.Empty(t, onEvent(t, b, flatBar(0, "100")))
		assert.Equal(t, common.OrderStatusCanceled, status(t, b, id))
		assert.False(t, b.Portfolio().HasPosition("BTC"))
	})

	t.Run("fok complete", func(t *testing.T) {
		b := newTestBroker("100000")
		req := common.MarketOrder("BTC", common.SideBuy, fixed.Two)
		req.TimeInForce = common.TimeInForceFillOrKill
		id := submit(t, b, req)

		require.Len(t, onEvent(t, b, flatBar(0, "100")), 1)
		assert.Equal(t, common.OrderStatusFilled, status(t, b, id))
	})

	t.Run("gtd expires", func(t *testing.T) {
		b := newTestBroker("100000")
		req := common.LimitOrder("BTC", common.SideBuy, fixed.One, d("90"))
		req.TimeInForce = common.TimeInForceGoodTillDate
		req.ExpireTime = t0.Add(90 * time.Second)
		id := submit(t, b, req)

		onEvent(t, b, flatBar(0, "100"))
		onEvent(t, b, flatBar(1, "100"))
		assert.Equal(t, common.OrderStatusNew, status(t, b, id))

		onEvent(t, b, flatBar(2, "100"))
		o, _ := b.Order(id)
		assert.Equal(t, common.OrderStatusCanceled, o.Status)
		assert.Equal(t, "expired", o.Reason)
	})
}

func TestSandboxBroker_Cancel(t *testing.T) {
	b := newTestBroker("100000")
	onEvent(t, b, flatBar(0, "100"))
	id := submit(t, b, common.LimitOrder("BTC", common.SideBuy, fixed.One, d("90")))

	require.NoError(t, b.Cancel(id))
	assert.Equal(t, common.OrderStatusCanceled, status(t, b, id))
	assert.Empty(t, b.OpenOrders())
	assert.ErrorIs(t, b.Cancel(id), common.ErrOrderTerminal)
	assert.ErrorIs(t, b.Cancel(999), common.ErrOrderNotFound)

	assert.Empty(t, onEvent(t, b, newBar(1, "85", "86", "80", "85")))
}

func TestSandboxBroker_TickMatching(t *testing.T) {
	tick := func(i int, bid, ask string) common.Tick {
		return common.Tick{EventHeader: header(i), Price: d("100"), Quantity: fixed.One, Bid: d(bid), Ask: d(ask)}
	}

	b := newTestBroker("100000")
	buy := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))
	sell := submit(t, b, common.MarketOrder("BTC", common.SideSell, fixed.One))
	limit := submit(t, b, common.LimitOrder("BTC", common.SideBuy, fixed.One, d("100")))

	fills := onEvent(t, b, tick(0, "99", "101"))
	require.Len(t, fills, 2)
	assert.Equal(t, buy, fills[0].OrderId)
	assert.True(t, fills[0].Price.Eq(d("101")))
	assert.Equal(t, sell, fills[1].OrderId)
	assert.True(t, fills[1].Price.Eq(d("99")))
	assert.Equal(t, common.OrderStatusNew, status(t, b, limit))

	fills = onEvent(t, b, tick(1, "99", "100"))
	require.Len(t, fills, 1)
	assert.Equal(t, limit, fills[0].OrderId)
	assert.True(t, fills[0].Price.Eq(d("100")))
}

func TestSandboxBroker_BookMatching(t *testing.T) {
	b := newTestBroker("100000", WithLiquidity(fixed.One))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Five))

	book := common.OrderBookUpdate{
		EventHeader: header(0),
		Bids:        []common.Level{{Price: d("99"), Quantity: d("3")}},
		Asks:        []common.Level{{Price: d("101"), Quantity: d("2")}},
	}
	fills := onEvent(t, b, book)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Eq(d("101")))
	assert.True(t, fills[0].Quantity.Eq(fixed.Two))
	assert.Equal(t, common.OrderStatusPartiallyFilled, status(t, b, id))

	mark, ok := b.Portfolio().MarkPrice("BTC")
	require.True(t, ok)
	assert.True(t, mark.Eq(d("100")))
}

func TestSandboxBroker_Commission(t *testing.T) {
	b := newTestBroker("1000", WithCommission(PercentageCommission{Rate: d("0.001")}))
	submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))

	fills := onEvent(t, b, flatBar(0, "12"))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Fee.Eq(d("0.012")))
	assert.True(t, b.Portfolio().Cash().Eq(d("987.988")))
	assert.True(t, b.Portfolio().Fees().Eq(d("0.012")))
}

func TestSandboxBroker_RandomSlippageIsSeeded(t *testing.T) {
	run := func() []string {
		b := NewBroker(portfolio.New(d("1000000"), fixed.Zero), rand.New(rand.NewSource(7)),
			WithSlippage(RandomBpsSlippage{MaxBps: d("50")}))

		var prices []string
		for i := 0; i < 10; i++ {
			submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))
			for _, f := range onEvent(t, b, flatBar(i, "100")) {
				assert.True(t, f.Price.Gte(d("100")))
				assert.True(t, f.Price.Lte(d("100.5")))
				assert.True(t, f.Slippage.Eq(f.Price.Sub(d("100"))))
				prices = append(prices, f.Price.String())
			}
		}
		return prices
	}

	first := run()
	require.Len(t, first, 10)
	assert.Equal(t, first, run())
}

func TestSandboxBroker_RiskChecks(t *testing.T) {
	tests := []struct {
		name string
		risk cfg.Risk
		req  common.OrderRequest
	}{
		{"short disabled", cfg.Risk{AllowShort: false}, common.MarketOrder("BTC", common.SideSell, fixed.One)},
		{"max position size", cfg.Risk{AllowShort: true, MaxPositionSize: fixed.One}, common.MarketOrder("BTC", common.SideBuy, fixed.Two)},
		{"max notional", cfg.Risk{AllowShort: true, MaxNotional: d("50")}, common.LimitOrder("BTC", common.SideBuy, fixed.One, d("100"))},
		{"max leverage", cfg.Risk{AllowShort: true, MaxLeverage: fixed.One}, common.MarketOrder("BTC", common.SideSell, d("11"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker("1000", WithRisk(tt.risk))
			onEvent(t, b, flatBar(0, "100"))

			id := submit(t, b, tt.req)
			o, _ := b.Order(id)
			assert.Equal(t, common.OrderStatusRejected, o.Status)
			assert.Contains(t, o.Reason, common.ErrRiskLimit.Error())
		})
	}
}

func TestSandboxBroker_LeverageWithinLimit(t *testing.T) {
	b := newTestBroker("1000", WithRisk(cfg.Risk{AllowShort: true, MaxLeverage: fixed.One}))
	onEvent(t, b, flatBar(0, "100"))

	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Ten))
	require.Len(t, onEvent(t, b, flatBar(1, "100")), 1)
	assert.Equal(t, common.OrderStatusFilled, status(t, b, id))
}

func TestSandboxBroker_MalformedRequests(t *testing.T) {
	b := newTestBroker("1000", WithSymbols("BTC"))

	id, err := b.Submit(common.OrderRequest{Symbol: "BTC", Side: common.SideBuy, Type: common.OrderTypeLimit, Quantity: fixed.One})
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, common.OrderStatusRejected, status(t, b, id))

	id, err = b.Submit(common.MarketOrder("ETH", common.SideBuy, fixed.One))
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.Equal(t, common.OrderStatusRejected, status(t, b, id))

	assert.Equal(t, common.OrderId(2), id)
}

func TestSandboxBroker_DrainUpdates(t *testing.T) {
	b := newTestBroker("1000", WithMaxFillRatio(fixed.PointFive))
	id := submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.Two))
	onEvent(t, b, flatBar(0, "10"))
	onEvent(t, b, flatBar(1, "10"))

	var statuses []common.OrderStatus
	for _, o := range b.DrainUpdates() {
		assert.Equal(t, id, o.Id)
		statuses = append(statuses, o.Status)
	}
	assert.Equal(t, []common.OrderStatus{
		common.OrderStatusNew,
		common.OrderStatusPartiallyFilled,
		common.OrderStatusFilled,
	}, statuses)
	assert.Empty(t, b.DrainUpdates())
}

func TestSandboxBroker_FromConfig(t *testing.T) {
	c := cfg.Default()
	c.Slippage = cfg.ModelSpec{Name: "fixed_bps", Value: d("10")}
	c.Commission = cfg.ModelSpec{Name: "fixed", Value: fixed.One}
	c.Symbols = []string{"BTC"}

	options, err := FromConfig(c)
	require.NoError(t, err)

	b := newTestBroker("1000", options...)
	submit(t, b, common.MarketOrder("BTC", common.SideBuy, fixed.One))
	fills := onEvent(t, b, flatBar(0, "100"))
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Eq(d("100.1")))
	assert.True(t, fills[0].Fee.Eq(fixed.One))

	c.Slippage.Name = "magic"
	_, err = FromConfig(c)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
