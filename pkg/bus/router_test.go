package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/peter-kozarec/tessera/pkg/common"
)

func TestBusRouter_Post(t *testing.T) {
	r := NewRouter(10, nil)

	require.NoError(t, r.Post(FillEvent, common.Fill{}))
	assert.Equal(t, uint64(1), r.postCount.Load())
}

func TestBusRouter_PostCapacityReached(t *testing.T) {
	r := NewRouter(1, nil)

	require.NoError(t, r.Post(FillEvent, common.Fill{}))
	err := r.Post(FillEvent, common.Fill{})
	assert.ErrorIs(t, err, ErrCapacityReached)
	assert.Equal(t, uint64(1), r.postFails.Load())
}

func TestBusRouter_PostAfterClose(t *testing.T) {
	r := NewRouter(1, nil)
	r.Close()
	r.Close()

	assert.ErrorIs(t, r.Post(FillEvent, common.Fill{}), ErrRouterClosed)
}

func TestBusRouter_PostWait(t *testing.T) {
	r := NewRouter(1, nil)
	var fills []common.FillId
	r.OnFill = func(_ context.Context, fill common.Fill) {
		fills = append(fills, fill.Id)
	}

	done := make(chan error, 1)
	go func() { done <- r.Exec(context.Background()) }()

	for id := common.FillId(1); id <= 50; id++ {
		require.NoError(t, r.PostWait(context.Background(), FillEvent, common.Fill{Id: id}))
	}
	r.Close()
	require.NoError(t, <-done)

	assert.Len(t, fills, 50)
	assert.Zero(t, r.Statistics().PostFails)
}

func TestBusRouter_PostWaitCanceled(t *testing.T) {
	r := NewRouter(1, nil)
	require.NoError(t, r.Post(FillEvent, common.Fill{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.PostWait(ctx, FillEvent, common.Fill{}), context.DeadlineExceeded)
	assert.Equal(t, uint64(1), r.Statistics().PostFails)

	r.Close()
	assert.ErrorIs(t, r.PostWait(context.Background(), FillEvent, common.Fill{}), ErrRouterClosed)
}

func TestBusRouter_ExecDrainsAfterClose(t *testing.T) {
	r := NewRouter(10, zaptest.NewLogger(t))

	var fills []common.FillId
	r.OnFill = func(_ context.Context, fill common.Fill) {
		fills = append(fills, fill.Id)
	}

	for id := common.FillId(1); id <= 3; id++ {
		require.NoError(t, r.Post(FillEvent, common.Fill{Id: id}))
	}
	r.Close()

	require.NoError(t, r.Exec(context.Background()))
	assert.Equal(t, []common.FillId{1, 2, 3}, fills)

	stats := r.Statistics()
	assert.Equal(t, uint64(3), stats.PostCount)
	assert.Equal(t, uint64(3), stats.DispatchCount)
	assert.Zero(t, stats.DispatchFails)
}

func TestBusRouter_AllEventTypes(t *testing.T) {
	r := NewRouter(10, nil)

	handled := map[EventId]bool{}
	r.OnMarket = func(context.Context, common.Event) { handled[MarketEvent] = true }
	r.OnFill = func(context.Context, common.Fill) { handled[FillEvent] = true }
	r.OnOrder = func(context.Context, common.Order) { handled[OrderEvent] = true }
	r.OnEquity = func(context.Context, common.EquityPoint) { handled[EquityEvent] = true }
	r.OnPosition = func(context.Context, common.PositionSnapshot) { handled[PositionEvent] = true }

	require.NoError(t, r.Post(MarketEvent, common.Bar{}))
	require.NoError(t, r.Post(FillEvent, common.Fill{}))
	require.NoError(t, r.Post(OrderEvent, common.Order{}))
	require.NoError(t, r.Post(EquityEvent, common.EquityPoint{}))
	require.NoError(t, r.Post(PositionEvent, common.PositionSnapshot{}))
	r.Close()

	require.NoError(t, r.Exec(context.Background()))
	assert.Len(t, handled, 5)
	assert.Equal(t, uint64(5), r.dispatchCount.Load())
}

func TestBusRouter_DispatchFailures(t *testing.T) {
	r := NewRouter(10, nil)
	r.OnFill = func(context.Context, common.Fill) { t.Error("handler must not be called") }
	r.OnOrder = func(context.Context, common.Order) { panic("boom") }

	require.NoError(t, r.Post(FillEvent, "invalid data type"))
	require.NoError(t, r.Post(EventId(99), struct{}{}))
	require.NoError(t, r.Post(OrderEvent, common.Order{}))
	r.Close()

	require.NoError(t, r.Exec(context.Background()))
	assert.Equal(t, uint64(3), r.dispatchFails.Load())
}

func TestBusRouter_NilHandlers(t *testing.T) {
	r := NewRouter(10, nil)

	require.NoError(t, r.Post(MarketEvent, common.Tick{}))
	require.NoError(t, r.Post(EquityEvent, common.EquityPoint{}))
	r.Close()

	require.NoError(t, r.Exec(context.Background()))
	assert.Equal(t, uint64(2), r.dispatchCount.Load())
	assert.Zero(t, r.dispatchFails.Load())
}

func TestBusRouter_ContextCancellation(t *testing.T) {
	r := NewRouter(10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Exec(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("exec did not return after cancellation")
	}
}

func TestBusEventId_String(t *testing.T) {
	assert.Equal(t, "fill", FillEvent.String())
	assert.Equal(t, "event(42)", EventId(42).String())
}

func BenchmarkBusRouter_Post(b *testing.B) {
	r := NewRouter(b.N, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := r.Post(FillEvent, common.Fill{}); err != nil {
			b.Errorf("Post failed: %v", err)
		}
	}
}
