package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

func d(s string) fixed.Point { return fixed.MustParse(s) }

func fill(side common.Side, price, qty, fee string) common.Fill {
	return common.Fill{Symbol: "BTC", Side: side, Price: d(price), Quantity: d(qty), Fee: d(fee)}
}

func assertConserved(t *testing.T, p *Portfolio) {
	t.Helper()
	sum := p.Cash()
	for _, pos := range p.Positions() {
		sum = sum.Add(pos.Quantity.Mul(pos.MarkPrice))
	}
	assert.True(t, sum.Eq(p.Equity()), "cash + market value %s != equity %s", sum, p.Equity())
}

func TestPortfolio_ApplyBuyAndSell(t *testing.T) {
	p := New(d("1000"), fixed.Zero)

	_, err := p.Apply(fill(common.SideBuy, "100", "2", "1"))
	require.NoError(t, err)
	assert.True(t, p.Cash().Eq(d("799")))
	assert.True(t, p.Fees().Eq(fixed.One))

	pos, ok := p.Position("BTC")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Eq(fixed.Two))
	assert.True(t, pos.AvgEntryPrice.Eq(d("100")))

	_, err = p.Apply(fill(common.SideBuy, "130", "1", "0"))
	require.NoError(t, err)
	pos, _ = p.Position("BTC")
	assert.True(t, pos.AvgEntryPrice.Eq(d("110")))

	f, err := p.Apply(fill(common.SideSell, "120", "1", "0"))
	require.NoError(t, err)
	assert.True(t, f.RealizedPnL.Eq(d("10")))
	assert.True(t, f.ClosedQuantity.Eq(fixed.One))
	assert.True(t, p.RealizedPnL().Eq(d("10")))
	assert.True(t, p.PositionQuantity("BTC").Eq(fixed.Two))

	p.Mark("BTC", d("125"))
	assert.True(t, p.UnrealizedPnL().Eq(d("30")))
	assertConserved(t, p)
}

func TestPortfolio_CloseRemovesPosition(t *testing.T) {
	p := New(d("1000"), fixed.Zero)

	_, err := p.Apply(fill(common.SideBuy, "100", "1", "0"))
	require.NoError(t, err)
	f, err := p.Apply(fill(common.SideSell, "90", "1", "0"))
	require.NoError(t, err)

	assert.True(t, f.RealizedPnL.Eq(d("-10")))
	assert.False(t, p.HasPosition("BTC"))
	assert.True(t, p.PositionQuantity("BTC").IsZero())
	assert.True(t, p.Cash().Eq(d("990")))
	assert.True(t, p.Equity().Eq(d("990")))

	// per-symbol realized survives a reopen
	_, err = p.Apply(fill(common.SideBuy, "95", "1", "0"))
	require.NoError(t, err)
	pos, _ := p.Position("BTC")
	assert.True(t, pos.RealizedPnL.Eq(d("-10")))
}

func TestPortfolio_FlipLongToShort(t *testing.T) {
	p := New(d("1000"), fixed.Zero)

	_, err := p.Apply(fill(common.SideBuy, "100", "1", "0"))
	require.NoError(t, err)
	f, err := p.Apply(fill(common.SideSell, "110", "3", "0"))
	require.NoError(t, err)

	assert.True(t, f.RealizedPnL.Eq(d("10")))
	assert.True(t, f.ClosedQuantity.Eq(fixed.One))

	pos, ok := p.Position("BTC")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Eq(d("-2")))
	assert.True(t, pos.AvgEntryPrice.Eq(d("110")))
	assert.True(t, p.Cash().Eq(d("1230")))

	p.Mark("BTC", d("100"))
	assert.True(t, p.UnrealizedPnL().Eq(d("20")))
	assert.True(t, p.GrossExposure().Eq(d("200")))
	assertConserved(t, p)
}

func TestPortfolio_ShortCover(t *testing.T) {
	p := New(d("1000"), fixed.Zero)

	_, err := p.Apply(fill(common.SideSell, "50", "4", "0"))
	require.NoError(t, err)
	f, err := p.Apply(fill(common.SideBuy, "40", "4", "0"))
	require.NoError(t, err)

	assert.True(t, f.RealizedPnL.Eq(d("40")))
	assert.False(t, p.HasPosition("BTC"))
	assert.True(t, p.Cash().Eq(d("1040")))
}

func TestPortfolio_InsufficientFunds(t *testing.T) {
	tests := []struct {
		name      string
		allowance string
		qty       string
		wantErr   bool
	}{
		{"within cash", "0", "10", false},
		{"above cash", "0", "11", true},
		{"within margin", "100", "11", false},
		{"above margin", "100", "12", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(d("1000"), d(tt.allowance))
			_, err := p.Apply(fill(common.SideBuy, "100", tt.qty, "0"))
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInsufficientFunds)
				assert.True(t, p.Cash().Eq(d("1000")))
				assert.False(t, p.HasPosition("BTC"))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPortfolio_ReadOnlyView(t *testing.T) {
	p := New(d("1000"), fixed.Zero)
	p.Mark("BTC", d("100"))
	_, err := p.Apply(fill(common.SideBuy, "100", "1", "0"))
	require.NoError(t, err)

	v := ReadOnly(p)
	_, isPortfolio := v.(*Portfolio)
	assert.False(t, isPortfolio)
	assert.True(t, v.Cash().Eq(d("900")))
	assert.True(t, v.Equity().Eq(d("1000")))
	assert.True(t, v.HasPosition("BTC"))
	assert.Len(t, v.Positions(), 1)

	mark, ok := v.MarkPrice("BTC")
	assert.True(t, ok)
	assert.True(t, mark.Eq(d("100")))
}

func TestPortfolio_PositionsSorted(t *testing.T) {
	p := New(d("100000"), fixed.Zero)
	for _, s := range []string{"ETH", "ADA", "BTC"} {
		_, err := p.Apply(common.Fill{Symbol: s, Side: common.SideBuy, Price: fixed.One, Quantity: fixed.One, Fee: fixed.Zero})
		require.NoError(t, err)
	}

	var symbols []string
	for _, pos := range p.Positions() {
		symbols = append(symbols, pos.Symbol)
	}
	assert.Equal(t, []string{"ADA", "BTC", "ETH"}, symbols)
}
