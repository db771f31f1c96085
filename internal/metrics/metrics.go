// Package metrics 从净值曲线与成交记录计算绩效指标。
// 全部为纯函数，与曲线的产生方式无关；数值边界情形收敛为明确的
// 零值或缺失值，绝不向外传播 NaN 或无穷。
package metrics

import (
	"math"
	"sort"
	"time"

	"quantlab/internal/portfolio"
)

// PerformanceMetrics 是一次回测的全部绩效指标。
// 指针字段表示该指标可能无定义（如无亏损交易时的盈亏比），
// 序列化后为 null 而非哨兵数值。
type PerformanceMetrics struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	CalmarRatio          float64 `json:"calmar_ratio"`

	MaxDrawdown         float64 `json:"max_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	ValueAtRisk95       float64 `json:"value_at_risk_95"`
	ConditionalVaR95    float64 `json:"conditional_var_95"`

	TotalTrades  int      `json:"total_trades"`
	WinRate      float64  `json:"win_rate"`
	ProfitFactor *float64 `json:"profit_factor"`
	AvgWin       float64  `json:"avg_win"`
	AvgLoss      float64  `json:"avg_loss"`

	BenchmarkReturn  *float64 `json:"benchmark_return"`
	Alpha            *float64 `json:"alpha"`
	Beta             *float64 `json:"beta"`
	TrackingError    *float64 `json:"tracking_error"`
	InformationRatio *float64 `json:"information_ratio"`

	Periods int `json:"periods"`
}

// Options 控制年化与无风险利率口径。
type Options struct {
	// PeriodsPerYear 为年化因子，日线默认 252。
	PeriodsPerYear float64
	// RiskFreeRate 为年化无风险利率。
	RiskFreeRate float64
}

func (o Options) normalize() Options {
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = 252
	}
	return o
}

// Compute 计算全部指标。benchmark 可为 nil；不足两个重叠周期时
// alpha/beta/信息比率保持缺失。
func Compute(equity []portfolio.EquityPoint, trades []portfolio.Trade, benchmark []portfolio.EquityPoint, opts Options) PerformanceMetrics {
	opts = opts.normalize()

	var m PerformanceMetrics
	if len(equity) < 2 {
		m.Periods = len(equity)
		return m
	}

	returns := periodReturns(equity)
	m.Periods = len(returns)

	first := equity[0].Equity
	last := equity[len(equity)-1].Equity
	if first > 0 {
		m.TotalReturn = last/first - 1
	}

	n := float64(len(returns))
	m.AnnualizedReturn = annualize(m.TotalReturn, opts.PeriodsPerYear, n)

	mean, std := meanStd(returns)
	m.AnnualizedVolatility = std * math.Sqrt(opts.PeriodsPerYear)

	rfPerPeriod := opts.RiskFreeRate / opts.PeriodsPerYear
	if std > 0 {
		m.SharpeRatio = (mean - rfPerPeriod) / std * math.Sqrt(opts.PeriodsPerYear)
	}

	if downside := downsideDeviation(returns); downside > 0 {
		m.SortinoRatio = (mean - rfPerPeriod) / downside * math.Sqrt(opts.PeriodsPerYear)
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = drawdown(equity)
	if m.MaxDrawdown != 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	m.ValueAtRisk95 = percentile(returns, 0.05)
	m.ConditionalVaR95 = tailMean(returns, m.ValueAtRisk95)

	computeTradeMetrics(&m, trades)
	computeBenchmarkMetrics(&m, equity, benchmark, opts)

	return m
}

// annualize 将总收益折算为 n 期对应的年化收益。做空亏穿后总收益
// 可能低于 −100%，此时分数次幂无定义，年化收益收敛为 −1（全额亏损）。
func annualize(total, periodsPerYear, n float64) float64 {
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, periodsPerYear/n) - 1
}

// periodReturns 计算逐期简单收益率 r_t = e_t/e_{t-1} − 1。
func periodReturns(equity []portfolio.EquityPoint) []float64 {
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	return returns
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// downsideDeviation 只统计负收益期的标准差，无负收益期时返回 0。
func downsideDeviation(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}
	_, std := meanStd(negatives)
	return std
}

// drawdown 返回最大回撤及最长回撤持续期（曲线处于前高之下的最长连续周期数）。
func drawdown(equity []portfolio.EquityPoint) (float64, int) {
	var maxDD float64
	var maxDuration, current int
	peak := equity[0].Equity

	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 && point.Equity < peak {
			current++
			if current > maxDuration {
				maxDuration = current
			}
			if dd := point.Equity/peak - 1; dd < maxDD {
				maxDD = dd
			}
		} else {
			current = 0
		}
	}
	return maxDD, maxDuration
}

// percentile 按线性插值计算分位数（历史模拟法）。
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := q * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func tailMean(values []float64, cutoff float64) float64 {
	var sum float64
	var count int
	for _, v := range values {
		if v <= cutoff {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// computeTradeMetrics 从平仓成交统计胜率与盈亏比。
// 无亏损交易时盈亏比无定义，保持缺失而非无穷。
func computeTradeMetrics(m *PerformanceMetrics, trades []portfolio.Trade) {
	m.TotalTrades = len(trades)

	var closing, wins, losses int
	var grossProfit, grossLoss float64
	for _, trade := range trades {
		if !trade.Closing {
			continue
		}
		closing++
		if trade.RealizedPnl > 0 {
			wins++
			grossProfit += trade.RealizedPnl
		} else if trade.RealizedPnl < 0 {
			losses++
			grossLoss += -trade.RealizedPnl
		}
	}

	// 胜率分母为全部平仓成交，持平的平仓同样计入。
	if closing > 0 {
		m.WinRate = float64(wins) / float64(closing)
	}
	if wins > 0 {
		m.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = -grossLoss / float64(losses)
		pf := grossProfit / grossLoss
		m.ProfitFactor = &pf
	}
}

// computeBenchmarkMetrics 在重叠时间段上做最小二乘回归求 alpha/beta。
// 重叠周期不足两个时全部保持缺失。
func computeBenchmarkMetrics(m *PerformanceMetrics, equity, benchmark []portfolio.EquityPoint, opts Options) {
	if len(benchmark) < 2 {
		return
	}

	strategyReturns, benchReturns := alignedReturns(equity, benchmark)
	if len(strategyReturns) < 2 {
		return
	}

	benchTotal := 1.0
	for _, r := range benchReturns {
		benchTotal *= 1 + r
	}
	benchTotal--
	m.BenchmarkReturn = &benchTotal

	meanS, _ := meanStd(strategyReturns)
	meanB, stdB := meanStd(benchReturns)
	if stdB == 0 {
		return
	}

	var covariance float64
	for i := range strategyReturns {
		covariance += (strategyReturns[i] - meanS) * (benchReturns[i] - meanB)
	}
	covariance /= float64(len(strategyReturns) - 1)

	beta := covariance / (stdB * stdB)
	m.Beta = &beta

	// CAPM 形式的年化 alpha。
	benchAnnualized := annualize(benchTotal, opts.PeriodsPerYear, float64(len(benchReturns)))
	alpha := m.AnnualizedReturn - (opts.RiskFreeRate + beta*(benchAnnualized-opts.RiskFreeRate))
	m.Alpha = &alpha

	excess := make([]float64, len(strategyReturns))
	for i := range excess {
		excess[i] = strategyReturns[i] - benchReturns[i]
	}
	meanE, stdE := meanStd(excess)
	trackingError := stdE * math.Sqrt(opts.PeriodsPerYear)
	m.TrackingError = &trackingError
	if stdE > 0 {
		ir := meanE / stdE * math.Sqrt(opts.PeriodsPerYear)
		m.InformationRatio = &ir
	}
}

// alignedReturns 按时间戳求两条净值曲线的交集并计算逐期收益。
func alignedReturns(equity, benchmark []portfolio.EquityPoint) ([]float64, []float64) {
	benchByTime := make(map[time.Time]float64, len(benchmark))
	for _, point := range benchmark {
		benchByTime[point.Timestamp] = point.Equity
	}

	var strategyValues, benchValues []float64
	for _, point := range equity {
		if benchValue, ok := benchByTime[point.Timestamp]; ok {
			strategyValues = append(strategyValues, point.Equity)
			benchValues = append(benchValues, benchValue)
		}
	}
	if len(strategyValues) < 3 {
		return nil, nil
	}

	toReturns := func(values []float64) []float64 {
		returns := make([]float64, 0, len(values)-1)
		for i := 1; i < len(values); i++ {
			if values[i-1] == 0 {
				returns = append(returns, 0)
				continue
			}
			returns = append(returns, values[i]/values[i-1]-1)
		}
		return returns
	}
	return toReturns(strategyValues), toReturns(benchValues)
}
