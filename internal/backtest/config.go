package backtest

import (
	"quantlab/internal/metrics"
	"quantlab/internal/portfolio"
)

// Config 聚合一次回测所需的全部参数。
type Config struct {
	Portfolio portfolio.Config `mapstructure:"portfolio" json:"portfolio"`
	// PeriodsPerYear 为年化因子，日线默认 252。
	PeriodsPerYear float64 `mapstructure:"periods_per_year" json:"periods_per_year"`
	// RiskFreeRate 为年化无风险利率。
	RiskFreeRate float64 `mapstructure:"risk_free_rate" json:"risk_free_rate"`
	// BenchmarkSymbol 为基准标的，空则跳过基准对比。
	BenchmarkSymbol string `mapstructure:"benchmark_symbol" json:"benchmark_symbol"`
}

func (c Config) normalize() Config {
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = 252
	}
	return c
}

func (c Config) metricsOptions() metrics.Options {
	return metrics.Options{
		PeriodsPerYear: c.PeriodsPerYear,
		RiskFreeRate:   c.RiskFreeRate,
	}
}
