package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/exchange"
	"github.com/peter-kozarec/tessera/pkg/exchange/sandbox"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// harness drives a strategy the way the engine does: broker first, then the
// fill, order and market callbacks.
type harness struct {
	t        *testing.T
	clock    *fixedClock
	p        *portfolio.Portfolio
	broker   *sandbox.Broker
	ctx      *Context
	handlers Handlers
	fills    []common.Fill
}

func newHarness(t *testing.T, s Strategy) *harness {
	p := portfolio.New(fixed.FromInt(100000, 0), fixed.Zero)
	broker := sandbox.NewBroker(p, nil)
	clock := &fixedClock{now: t0}
	h := &harness{
		t:        t,
		clock:    clock,
		p:        p,
		broker:   broker,
		ctx:      NewContext(broker, portfolio.ReadOnly(p), clock, cfg.Default(), zaptest.NewLogger(t)),
		handlers: Resolve(s),
	}
	if h.handlers.Start != nil {
		require.NoError(t, h.handlers.Start.OnStart(h.ctx))
	}
	return h
}

func (h *harness) bar(symbol string, minute int, o, hi, lo, c int) {
	b := common.Bar{
		EventHeader: common.EventHeader{Symbol: symbol, TimeStamp: t0.Add(time.Duration(minute) * time.Minute)},
		Period:      time.Minute,
		Open:        fixed.FromInt(o, 0),
		High:        fixed.FromInt(hi, 0),
		Low:         fixed.FromInt(lo, 0),
		Close:       fixed.FromInt(c, 0),
		Volume:      fixed.Hundred,
	}
	h.clock.now = b.TimeStamp

	fills, err := h.broker.OnEvent(b)
	require.NoError(h.t, err)
	h.fills = append(h.fills, fills...)
	for _, f := range fills {
		if h.handlers.Fill != nil {
			require.NoError(h.t, h.handlers.Fill.OnFill(h.ctx, f))
		}
	}
	h.orderUpdates()
	if h.handlers.Bar != nil {
		require.NoError(h.t, h.handlers.Bar.OnBar(h.ctx, b))
	}
	h.orderUpdates()
}

func (h *harness) flat(symbol string, minute, price int) {
	h.bar(symbol, minute, price, price, price, price)
}

func (h *harness) orderUpdates() {
	for _, o := range h.broker.DrainUpdates() {
		if h.handlers.Order != nil {
			require.NoError(h.t, h.handlers.Order.OnOrderUpdate(h.ctx, o))
		}
	}
}

func TestResolve_DiscoversHandlers(t *testing.T) {
	h := Resolve(NewBuyHold("", fixed.One))
	assert.NotNil(t, h.Bar)
	assert.NotNil(t, h.Tick)
	assert.Nil(t, h.Fill)
	assert.Nil(t, h.Start)

	h = Resolve(&Funcs{})
	assert.NotNil(t, h.Start)
	assert.NotNil(t, h.End)
	assert.NotNil(t, h.Book)
	assert.NotNil(t, h.Order)
}

func TestFuncs_CallsOnlyProvided(t *testing.T) {
	boom := errors.New("boom")
	var bars int
	f := &Funcs{
		Bar:  func(*Context, common.Bar) error { bars++; return nil },
		Tick: func(*Context, common.Tick) error { return boom },
	}

	assert.Equal(t, "funcs", f.Name())
	assert.NoError(t, f.OnStart(nil))
	assert.NoError(t, f.OnFill(nil, common.Fill{}))
	assert.NoError(t, f.OnBar(nil, common.Bar{}))
	assert.ErrorIs(t, f.OnTick(nil, common.Tick{}), boom)
	assert.Equal(t, 1, bars)
}

func TestRegistry_BuiltIns(t *testing.T) {
	assert.Subset(t, Names(), []string{"buyhold", "limitladder", "meanreversion", "smacross"})

	s, err := New("smacross", map[string]string{"fast": "2", "slow": "4"})
	require.NoError(t, err)
	assert.Equal(t, "smacross", s.Name())

	_, err = New("nope", nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = New("smacross", map[string]string{"fast": "x"})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = New("smacross", map[string]string{"fast": "5", "slow": "3"})
	assert.ErrorIs(t, err, common.ErrConfiguration)

	assert.Panics(t, func() { Register("buyhold", nil) })
}

func TestParams_Getters(t *testing.T) {
	p := Params{"n": "3", "b": "true", "d": "5s", "x": "1.25", "bad": "?"}

	n, err := p.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	b, err := p.Bool("b", false)
	require.NoError(t, err)
	assert.True(t, b)

	d, err := p.Duration("d", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	x, err := p.Point("x", fixed.Zero)
	require.NoError(t, err)
	assert.True(t, x.Eq(fixed.MustParse("1.25")))

	def, err := p.Int("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)
	assert.Equal(t, "dflt", p.String("missing", "dflt"))

	_, err = p.Int("bad", 0)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	_, err = p.Point("bad", fixed.Zero)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestContext_ConfigIsCopy(t *testing.T) {
	c := cfg.Default()
	c.Strategy.Params = map[string]string{"k": "v"}
	ctx := NewContext(nil, nil, &fixedClock{now: t0}, c, nil)

	got := ctx.Config()
	got.Strategy.Params["k"] = "changed"
	assert.Equal(t, "v", ctx.Params()["k"])
	assert.True(t, ctx.Now().Equal(t0))
	assert.NotNil(t, ctx.Logger())
}

func TestContext_HidesVenue(t *testing.T) {
	h := newHarness(t, &Funcs{StrategyName: "noop"})

	_, isVenue := h.ctx.Broker().(exchange.Venue)
	assert.False(t, isVenue)
	_, isBroker := h.ctx.Broker().(*sandbox.Broker)
	assert.False(t, isBroker)
	_, isClock := h.ctx.Clock().(*fixedClock)
	assert.False(t, isClock)

	id, err := h.ctx.Buy("BTC", fixed.One)
	require.NoError(t, err)
	order, ok := h.ctx.Broker().Order(id)
	require.True(t, ok)
	assert.Equal(t, common.OrderStatusNew, order.Status)
	assert.Len(t, h.ctx.Broker().OpenOrders(), 1)
	require.NoError(t, h.ctx.Broker().Cancel(id))
	assert.False(t, h.ctx.HasOpenOrders("BTC"))
}

func TestBuyHold_BuysOnceAndHolds(t *testing.T) {
	h := newHarness(t, NewBuyHold("BTC", fixed.Two))

	h.flat("ETH", 0, 50)
	h.flat("BTC", 1, 100)
	h.flat("BTC", 2, 110)
	h.flat("BTC", 3, 120)

	require.Len(t, h.fills, 1)
	assert.True(t, h.fills[0].Price.Eq(fixed.FromInt(110, 0)))
	assert.True(t, h.p.PositionQuantity("BTC").Eq(fixed.Two))
	assert.False(t, h.p.HasPosition("ETH"))
}

func TestSMACross_EntersAndExits(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{Fast: 2, Slow: 3, Quantity: fixed.One})
	require.NoError(t, err)
	h := newHarness(t, s)

	closes := []int{10, 10, 10, 9, 12, 14, 14, 8, 6, 6}
	for i, c := range closes {
		h.flat("X", i, c)
	}

	require.Len(t, h.fills, 2)
	assert.Equal(t, common.SideBuy, h.fills[0].Side)
	assert.Equal(t, common.SideSell, h.fills[1].Side)
	assert.True(t, h.p.PositionQuantity("X").IsZero())
}

func TestSMACross_ReversesWhenShortAllowed(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{Fast: 2, Slow: 3, Quantity: fixed.One, AllowShort: true})
	require.NoError(t, err)
	h := newHarness(t, s)

	for i, c := range []int{10, 10, 10, 9, 12, 14, 14, 8, 6, 6} {
		h.flat("X", i, c)
	}

	require.Len(t, h.fills, 2)
	assert.True(t, h.fills[1].Quantity.Eq(fixed.Two), "reversal sells the long and opens a short")
	assert.True(t, h.p.PositionQuantity("X").Eq(fixed.NegOne))
}

func TestSMACross_AggregatesTicks(t *testing.T) {
	s, err := NewSMACross(SMACrossConfig{Fast: 1, Slow: 2, Quantity: fixed.One, TickPeriod: time.Minute})
	require.NoError(t, err)
	ctx := NewContext(nil, nil, &fixedClock{now: t0}, cfg.Default(), nil)

	for i := 0; i < 3; i++ {
		tick := common.Tick{
			EventHeader: common.EventHeader{Symbol: "X", TimeStamp: t0.Add(time.Duration(i) * time.Minute)},
			Price:       fixed.FromInt(10, 0),
		}
		require.NoError(t, s.OnTick(ctx, tick))
	}

	st, ok := s.symbols["X"]
	require.True(t, ok)
	assert.True(t, st.slow.IsReady())
}

func TestLimitLadder_PlacesLevelsAndTakesProfit(t *testing.T) {
	l, err := NewLimitLadder(LimitLadderConfig{Levels: 3, Step: fixed.MustParse("0.1"), Quantity: fixed.One, TakeProfit: fixed.MustParse("0.5")})
	require.NoError(t, err)
	h := newHarness(t, l)

	h.flat("X", 0, 100)
	open := h.broker.OpenOrders()
	require.Len(t, open, 3)
	assert.True(t, open[0].LimitPrice.Eq(fixed.FromInt(90, 0)))
	assert.True(t, open[2].LimitPrice.Eq(fixed.FromInt(70, 0)))

	h.bar("X", 1, 100, 100, 85, 95)
	require.Len(t, h.fills, 1)
	assert.True(t, h.fills[0].Price.Eq(fixed.FromInt(90, 0)))

	open = h.broker.OpenOrders()
	require.Len(t, open, 3)
	assert.Equal(t, common.SideSell, open[2].Side)
	assert.True(t, open[2].LimitPrice.Eq(fixed.FromInt(135, 0)))
}

func TestLimitLadder_InvalidConfig(t *testing.T) {
	_, err := NewLimitLadder(LimitLadderConfig{Levels: 10, Step: fixed.MustParse("0.1"), Quantity: fixed.One})
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestMeanReversion_FadesExtremes(t *testing.T) {
	m, err := NewMeanReversion(MeanReversionConfig{Window: 4, Threshold: fixed.One, Quantity: fixed.One})
	require.NoError(t, err)
	h := newHarness(t, m)

	for i, c := range []int{100, 100, 101, 90, 90, 100, 105} {
		h.flat("X", i, c)
	}

	require.Len(t, h.fills, 2)
	assert.Equal(t, common.SideBuy, h.fills[0].Side)
	assert.Equal(t, common.SideSell, h.fills[1].Side)
	assert.True(t, h.p.PositionQuantity("X").IsZero())
}

func TestMeanReversion_AtrStop(t *testing.T) {
	m, err := NewMeanReversion(MeanReversionConfig{
		Window:    4,
		Threshold: fixed.One,
		Quantity:  fixed.One,
		StopATR:   fixed.One,
		ATRWindow: 2,
	})
	require.NoError(t, err)
	h := newHarness(t, m)

	for i, c := range []int{100, 100, 101, 90, 80, 70, 70} {
		h.flat("X", i, c)
	}

	require.Len(t, h.fills, 2)
	assert.Equal(t, common.SideBuy, h.fills[0].Side)
	assert.True(t, h.fills[0].Price.Eq(fixed.FromInt(80, 0)))
	assert.Equal(t, common.SideSell, h.fills[1].Side)
	assert.True(t, h.fills[1].Price.Eq(fixed.FromInt(70, 0)))
	assert.True(t, h.p.PositionQuantity("X").IsZero())
}

func TestMeanReversion_InvalidConfig(t *testing.T) {
	tests := []MeanReversionConfig{
		{Window: 1, Threshold: fixed.One, Quantity: fixed.One},
		{Window: 4, Threshold: fixed.Zero, Quantity: fixed.One},
		{Window: 4, Threshold: fixed.One, Quantity: fixed.One, StopATR: fixed.One},
	}
	for _, c := range tests {
		_, err := NewMeanReversion(c)
		assert.ErrorIs(t, err, common.ErrConfiguration)
	}
}
