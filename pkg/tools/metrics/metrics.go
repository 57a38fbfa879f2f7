package metrics

import (
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const year = 365 * 24 * time.Hour

// Input is everything Compute needs. The equity curve holds one point every
// SnapshotEvery steps of Timeframe, which sets the annualization factor.
// RiskFreeRate is annual.
type Input struct {
	EquityCurve   []common.EquityPoint
	Trades        []common.Fill
	InitialCash   fixed.Point
	Timeframe     time.Duration
	SnapshotEvery int
	RiskFreeRate  fixed.Point
}

// Compute derives the performance report of a run. It is a pure function of
// its input.
func Compute(in Input) Report {
	var r Report
	r.InitialEquity = in.InitialCash
	r.FinalEquity = in.InitialCash
	r.PeriodsPerYear = periodsPerYear(in.Timeframe * time.Duration(max(in.SnapshotEvery, 1)))

	computeTrades(&r, in.Trades)

	curve := in.EquityCurve
	if len(curve) == 0 {
		return r
	}

	r.StartDate = curve[0].TimeStamp
	r.EndDate = curve[len(curve)-1].TimeStamp
	r.FinalEquity = curve[len(curve)-1].Equity

	if !in.InitialCash.IsZero() {
		r.TotalReturn = r.FinalEquity.Sub(in.InitialCash).Div(in.InitialCash)
	}
	r.AnnualizedReturn = annualize(r.TotalReturn, r.EndDate.Sub(r.StartDate))

	computeRisk(&r, curve, in.RiskFreeRate)
	computeDrawdown(&r, curve)
	computeExposure(&r, curve)

	avgEquity := averageEquity(curve)
	if !avgEquity.IsZero() {
		r.Turnover = r.TradedNotional.Div(avgEquity)
	}

	return r
}

func computeTrades(r *Report, trades []common.Fill) {
	var grossProfit, grossLoss fixed.Point

	for _, f := range trades {
		r.TotalFills++
		r.TotalFees = r.TotalFees.Add(f.Fee)
		r.TradedNotional = r.TradedNotional.Add(f.Notional())

		if !f.IsClosing() {
			continue
		}
		r.ClosingTrades++

		switch {
		case f.RealizedPnL.IsPos():
			r.WinningTrades++
			grossProfit = grossProfit.Add(f.RealizedPnL)
		case f.RealizedPnL.IsNeg():
			r.LosingTrades++
			grossLoss = grossLoss.Add(f.RealizedPnL.Abs())
		}
	}

	r.GrossProfit = grossProfit
	r.GrossLoss = grossLoss

	if r.ClosingTrades > 0 {
		r.WinRate = fixed.FromInt(r.WinningTrades, 0).DivInt(r.ClosingTrades)
		r.Expectancy = grossProfit.Sub(grossLoss).DivInt(r.ClosingTrades)
	}
	if r.WinningTrades > 0 {
		r.AverageWin = grossProfit.DivInt(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = grossLoss.DivInt(r.LosingTrades)
	}

	switch {
	case grossLoss.IsPos():
		r.ProfitFactor = Ratio{Value: grossProfit.Div(grossLoss)}
	case grossProfit.IsPos():
		r.ProfitFactor = Ratio{Infinite: true}
	}
}

func computeRisk(r *Report, curve []common.EquityPoint, riskFreeRate fixed.Point) {
	returns := periodicReturns(curve)
	if len(returns) < 2 {
		return
	}

	mean := fixed.Mean(returns)
	r.Volatility = fixed.SampleStdDev(returns, mean)

	scale := r.PeriodsPerYear.Sqrt()
	r.AnnualizedVolatility = r.Volatility.Mul(scale)

	periodRiskFree := riskFreeRate.Div(r.PeriodsPerYear)
	r.SharpeRatio = fixed.SharpeRatio(returns, periodRiskFree).Mul(scale)
	r.SortinoRatio = fixed.SortinoRatio(returns, periodRiskFree).Mul(scale)
}

// computeDrawdown finds the deepest peak to trough decline, the time from
// that peak to its trough, and the longest stretch spent below a prior peak.
func computeDrawdown(r *Report, curve []common.EquityPoint) {
	peak := curve[0].Equity
	peakTime := curve[0].TimeStamp
	under := false

	for _, p := range curve[1:] {
		if p.Equity.Gte(peak) {
			if under {
				r.LongestUnderwater = max(r.LongestUnderwater, p.TimeStamp.Sub(peakTime))
				under = false
			}
			peak, peakTime = p.Equity, p.TimeStamp
			continue
		}

		under = true
		r.LongestUnderwater = max(r.LongestUnderwater, p.TimeStamp.Sub(peakTime))
		if !peak.IsPos() {
			continue
		}
		if dd := peak.Sub(p.Equity).Div(peak); dd.Gt(r.MaxDrawdown) {
			r.MaxDrawdown = dd
			r.MaxDrawdownDuration = p.TimeStamp.Sub(peakTime)
		}
	}
}

func computeExposure(r *Report, curve []common.EquityPoint) {
	exposed := 0
	for _, p := range curve {
		if !p.GrossExposure.IsZero() {
			exposed++
		}
	}
	r.Exposure = fixed.FromInt(exposed, 0).DivInt(len(curve))
}

func periodicReturns(curve []common.EquityPoint) []fixed.Point {
	returns := make([]fixed.Point, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		returns = append(returns, curve[i].Equity.Sub(prev).Div(prev))
	}
	return returns
}

func averageEquity(curve []common.EquityPoint) fixed.Point {
	sum := fixed.Zero
	for _, p := range curve {
		sum = sum.Add(p.Equity)
	}
	return sum.DivInt(len(curve))
}

func periodsPerYear(timeframe time.Duration) fixed.Point {
	if timeframe <= 0 {
		return fixed.One
	}
	return fixed.FromInt64(int64(year), 0).DivInt64(int64(timeframe))
}

// annualize compounds total over the elapsed time to a yearly rate. It
// returns zero when the result does not fit a decimal.
func annualize(total fixed.Point, elapsed time.Duration) fixed.Point {
	if elapsed <= 0 {
		return fixed.Zero
	}
	growth := fixed.One.Add(total)
	if !growth.IsPos() {
		return fixed.NegOne
	}

	exponent := fixed.FromInt64(int64(year), 0).DivInt64(int64(elapsed))
	logGrowth, err := growth.TryLog()
	if err != nil {
		return fixed.Zero
	}
	scaled, err := logGrowth.TryMul(exponent)
	if err != nil {
		return fixed.Zero
	}
	compounded, err := scaled.TryExp()
	if err != nil {
		return fixed.Zero
	}
	return compounded.Sub(fixed.One)
}
