package sqlsource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestBarFeed_ReadsSymbolInOrder(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverDuckDB, "")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, CreateBarTable(ctx, db, "bars"))

	var bars []common.Bar
	for i := 5; i >= 0; i-- {
		symbol := "BTCUSDT"
		if i%2 == 1 {
			symbol = "ETHUSDT"
		}
		price := fixed.MustParse("100.25").Add(fixed.FromInt(i, 0))
		bars = append(bars, common.Bar{
			EventHeader: common.EventHeader{Symbol: symbol, TimeStamp: t0.Add(time.Duration(i) * time.Hour)},
			Open:        price, High: price, Low: price, Close: price, Volume: fixed.One,
		})
	}
	require.NoError(t, InsertBars(ctx, db, "bars", bars...))

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all", Query{Table: "bars", Symbol: "BTCUSDT"}, []string{"100.25", "102.25", "104.25"}},
		{"from", Query{Table: "bars", Symbol: "BTCUSDT", From: t0.Add(time.Hour)}, []string{"102.25", "104.25"}},
		{"to exclusive", Query{Table: "bars", Symbol: "ETHUSDT", To: t0.Add(5 * time.Hour)}, []string{"101.25", "103.25"}},
		{"unknown symbol", Query{Table: "bars", Symbol: "XRPUSDT"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Period = time.Hour
			feed, err := NewBarFeed(ctx, db, tt.query)
			require.NoError(t, err)
			defer func() { _ = feed.Close() }()

			events, err := datasource.Collect(feed)
			require.NoError(t, err)
			require.Len(t, events, len(tt.want))
			for i, ev := range events {
				bar := ev.(common.Bar)
				assert.Equal(t, tt.query.Symbol, bar.Symbol)
				assert.Equal(t, time.Hour, bar.Period)
				assert.True(t, bar.Close.Eq(fixed.MustParse(tt.want[i])), "got %s", bar.Close)
			}
		})
	}
}

func TestQuery_RejectsInvalidTable(t *testing.T) {
	_, _, err := Query{Table: "bars; DROP TABLE bars"}.statement()
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestPostgresDSN(t *testing.T) {
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", PostgresDSN("h", "5432", "u", "p", "d"))
}
