package metrics

import (
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// Ratio is a quotient that may be unbounded, such as a profit factor with
// no losing trades.
type Ratio struct {
	Value    fixed.Point `json:"value"`
	Infinite bool        `json:"infinite,omitempty"`
}

func (r Ratio) String() string {
	if r.Infinite {
		return "+Inf"
	}
	return r.Value.String()
}

func (r Ratio) Float64() float64 {
	if r.Infinite {
		return math.Inf(1)
	}
	return r.Value.F64()
}

// Report holds the performance metrics of a run. Returns, volatility,
// drawdown, win rate and exposure are fractions, not percentages.
type Report struct {
	StartDate     time.Time   `json:"start_date"`
	EndDate       time.Time   `json:"end_date"`
	InitialEquity fixed.Point `json:"initial_equity"`
	FinalEquity   fixed.Point `json:"final_equity"`

	TotalReturn          fixed.Point `json:"total_return"`
	AnnualizedReturn     fixed.Point `json:"annualized_return"`
	Volatility           fixed.Point `json:"volatility"`
	AnnualizedVolatility fixed.Point `json:"annualized_volatility"`
	SharpeRatio          fixed.Point `json:"sharpe_ratio"`
	SortinoRatio         fixed.Point `json:"sortino_ratio"`
	PeriodsPerYear       fixed.Point `json:"periods_per_year"`

	MaxDrawdown         fixed.Point   `json:"max_drawdown"`
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`
	LongestUnderwater   time.Duration `json:"longest_underwater"`

	TotalFills     int         `json:"total_fills"`
	ClosingTrades  int         `json:"closing_trades"`
	WinningTrades  int         `json:"winning_trades"`
	LosingTrades   int         `json:"losing_trades"`
	WinRate        fixed.Point `json:"win_rate"`
	AverageWin     fixed.Point `json:"average_win"`
	AverageLoss    fixed.Point `json:"average_loss"`
	GrossProfit    fixed.Point `json:"gross_profit"`
	GrossLoss      fixed.Point `json:"gross_loss"`
	ProfitFactor   Ratio       `json:"profit_factor"`
	Expectancy     fixed.Point `json:"expectancy"`
	TotalFees      fixed.Point `json:"total_fees"`
	TradedNotional fixed.Point `json:"traded_notional"`
	Exposure       fixed.Point `json:"exposure"`
	Turnover       fixed.Point `json:"turnover"`
}

// Float64s converts the decimal metrics for presentation.
func (r Report) Float64s() map[string]float64 {
	return map[string]float64{
		"initial_equity":        r.InitialEquity.F64(),
		"final_equity":          r.FinalEquity.F64(),
		"total_return":          r.TotalReturn.F64(),
		"annualized_return":     r.AnnualizedReturn.F64(),
		"volatility":            r.Volatility.F64(),
		"annualized_volatility": r.AnnualizedVolatility.F64(),
		"sharpe_ratio":          r.SharpeRatio.F64(),
		"sortino_ratio":         r.SortinoRatio.F64(),
		"max_drawdown":          r.MaxDrawdown.F64(),
		"win_rate":              r.WinRate.F64(),
		"average_win":           r.AverageWin.F64(),
		"average_loss":          r.AverageLoss.F64(),
		"profit_factor":         r.ProfitFactor.Float64(),
		"expectancy":            r.Expectancy.F64(),
		"total_fees":            r.TotalFees.F64(),
		"exposure":              r.Exposure.F64(),
		"turnover":              r.Turnover.F64(),
	}
}

// Rows lists the report as label and value pairs in display order.
func (r Report) Rows() [][2]string {
	pct := func(p fixed.Point) string { return p.Mul(fixed.Hundred).Rescale(2).String() + "%" }
	num := func(p fixed.Point) string { return p.Rescale(4).String() }
	return [][2]string{
		{"Initial equity", r.InitialEquity.Rescale(2).String()},
		{"Final equity", r.FinalEquity.Rescale(2).String()},
		{"Total return", pct(r.TotalReturn)},
		{"Annualized return", pct(r.AnnualizedReturn)},
		{"Volatility", pct(r.Volatility)},
		{"Annualized volatility", pct(r.AnnualizedVolatility)},
		{"Sharpe ratio", num(r.SharpeRatio)},
		{"Sortino ratio", num(r.SortinoRatio)},
		{"Max drawdown", pct(r.MaxDrawdown)},
		{"Max drawdown duration", r.MaxDrawdownDuration.String()},
		{"Longest underwater", r.LongestUnderwater.String()},
		{"Fills", strconv.Itoa(r.TotalFills)},
		{"Closing trades", strconv.Itoa(r.ClosingTrades)},
		{"Win rate", pct(r.WinRate)},
		{"Average win", num(r.AverageWin)},
		{"Average loss", num(r.AverageLoss)},
		{"Profit factor", r.ProfitFactor.String()},
		{"Expectancy", num(r.Expectancy)},
		{"Total fees", num(r.TotalFees)},
		{"Exposure", pct(r.Exposure)},
		{"Turnover", num(r.Turnover)},
	}
}

func (r Report) Print(logger *zap.Logger) {
	logger.Info("performance report",
		zap.Stringer("initial_equity", r.InitialEquity),
		zap.Stringer("final_equity", r.FinalEquity),
		zap.Stringer("total_return", r.TotalReturn),
		zap.Stringer("annualized_return", r.AnnualizedReturn),
		zap.Stringer("max_drawdown", r.MaxDrawdown),
		zap.Duration("max_drawdown_duration", r.MaxDrawdownDuration),
		zap.Duration("longest_underwater", r.LongestUnderwater))

	logger.Info("trade statistics",
		zap.Int("total_fills", r.TotalFills),
		zap.Int("closing_trades", r.ClosingTrades),
		zap.Int("winning_trades", r.WinningTrades),
		zap.Int("losing_trades", r.LosingTrades),
		zap.Stringer("win_rate", r.WinRate),
		zap.Stringer("average_win", r.AverageWin),
		zap.Stringer("average_loss", r.AverageLoss),
		zap.Stringer("profit_factor", r.ProfitFactor),
		zap.Stringer("expectancy", r.Expectancy),
		zap.Stringer("total_fees", r.TotalFees),
		zap.Stringer("exposure", r.Exposure),
		zap.Stringer("turnover", r.Turnover))

	logger.Info("risk metrics",
		zap.Stringer("volatility", r.Volatility),
		zap.Stringer("annualized_volatility", r.AnnualizedVolatility),
		zap.Stringer("sharpe_ratio", r.SharpeRatio),
		zap.Stringer("sortino_ratio", r.SortinoRatio))
}
