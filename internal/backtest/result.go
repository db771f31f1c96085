package backtest

import (
	"time"

	"quantlab/internal/metrics"
	"quantlab/internal/portfolio"
)

// Status 标识一次回测的生命周期阶段。
type Status string

const (
	StatusConfigured Status = "CONFIGURED"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Diagnostics 记录回测过程中被静默跳过的事件。
type Diagnostics struct {
	// DroppedDecisions 为因资金不足等原因被丢弃的非零决策数。
	DroppedDecisions int `json:"dropped_decisions"`
	// StopLossExits 为止损触发的平仓次数。
	StopLossExits int `json:"stop_loss_exits"`
	// VetoedBars 为被过滤器否决的 K 线数。
	VetoedBars int `json:"vetoed_bars"`
}

// Result 汇总一次完整回测的产出，可直接 JSON 序列化入库。
type Result struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`

	Config      Config                     `json:"config"`
	Metrics     metrics.PerformanceMetrics `json:"metrics"`
	Trades      []portfolio.Trade          `json:"trades"`
	EquityCurve []portfolio.EquityPoint    `json:"equity_curve"`
	Benchmark   []portfolio.EquityPoint    `json:"benchmark,omitempty"`
	Diagnostics Diagnostics                `json:"diagnostics"`
}

// FinalEquity 返回曲线末端的净值，曲线为空时返回 0。
func (r *Result) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return 0
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Equity
}
