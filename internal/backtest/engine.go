// Package backtest 串联数据、策略组合、组合账户与绩效计算，
// 驱动逐 K 线的事件回放。
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quantlab/internal/composer"
	"quantlab/internal/indicator"
	"quantlab/internal/market"
	"quantlab/internal/metrics"
	"quantlab/internal/portfolio"
	"quantlab/internal/strategy"
)

// Engine 将一份组合配置在一段行情上回放为完整的回测结果。
// 引擎本身不持有行情与账户状态，可安全地并发执行多次 Run。
type Engine struct {
	cfg      Config
	registry *strategy.Registry
	logger   *zap.Logger
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, registry *strategy.Registry, logger *zap.Logger) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("backtest: strategy registry 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.normalize(), registry: registry, logger: logger}, nil
}

// Run 执行单个组合的完整回测。benchmark 可为 nil。
// 任一阶段失败即整体失败，不返回部分净值曲线。
func (e *Engine) Run(ctx context.Context, combo composer.Combination, frame, benchmark *market.PriceFrame) (*Result, error) {
	started := time.Now()
	e.logger.Info("回测开始",
		zap.String("combination", combo.Name),
		zap.String("symbol", frame.Symbol),
		zap.String("status", string(StatusRunning)))

	var result *Result
	err := prepareFrame(frame)
	if err == nil {
		result, err = e.run(ctx, combo, frame, benchmark)
	}
	if err != nil {
		e.logger.Error("回测失败",
			zap.String("combination", combo.Name),
			zap.String("status", string(StatusFailed)),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("回测完成",
		zap.String("combination", combo.Name),
		zap.String("status", string(StatusCompleted)),
		zap.Float64("final_equity", result.FinalEquity()),
		zap.Int("trades", len(result.Trades)),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// RunSingle 回测单个策略，等价于 single 融合方式的组合。
func (e *Engine) RunSingle(ctx context.Context, spec composer.GeneratorSpec, frame, benchmark *market.PriceFrame) (*Result, error) {
	combo := composer.Combination{
		Name:       spec.Name,
		Method:     composer.MethodSingle,
		Generators: []composer.GeneratorSpec{spec},
	}
	if combo.Name == "" {
		combo.Name = spec.Kind
	}
	return e.Run(ctx, combo, frame, benchmark)
}

// prepareFrame 校验价格并计算指标列。并发扫描前只准备一次，
// 之后各组合对 frame 只读。
func prepareFrame(frame *market.PriceFrame) error {
	if frame == nil || frame.Len() == 0 {
		return fmt.Errorf("backtest: 行情数据为空")
	}
	if err := frame.CheckPrices(); err != nil {
		return err
	}
	if err := indicator.Enrich(frame); err != nil {
		return fmt.Errorf("backtest: 计算指标失败: %w", err)
	}
	return nil
}

// run 在已准备好的行情上回放单个组合。
func (e *Engine) run(ctx context.Context, combo composer.Combination, frame, benchmark *market.PriceFrame) (*Result, error) {
	comp, err := composer.New(combo, e.registry, e.logger)
	if err != nil {
		return nil, err
	}
	decisions, err := comp.Fuse(frame)
	if err != nil {
		return nil, err
	}

	port := portfolio.New(e.cfg.Portfolio)
	atr, err := frame.Column(indicator.ColATR14)
	if err != nil {
		return nil, err
	}

	for i := 0; i < frame.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		relVolatility := 0.0
		if !math.IsNaN(atr[i]) && frame.Close[i] > 0 {
			relVolatility = atr[i] / frame.Close[i]
		}
		if err := port.Step(frame.Timestamps[i], frame.Symbol, decisions[i], frame.Close[i], relVolatility); err != nil {
			return nil, err
		}
	}

	benchCurve, err := benchmarkCurve(benchmark, e.cfg.Portfolio.InitialCapital)
	if err != nil {
		return nil, err
	}

	equity := port.EquityCurve()
	trades := port.Trades()
	perf := metrics.Compute(equity, trades, benchCurve, e.cfg.metricsOptions())

	return &Result{
		ID:          uuid.NewString(),
		Strategy:    combo.Name,
		Symbol:      frame.Symbol,
		CreatedAt:   time.Now().UTC(),
		Config:      e.cfg,
		Metrics:     perf,
		Trades:      trades,
		EquityCurve: equity,
		Benchmark:   benchCurve,
		Diagnostics: Diagnostics{
			DroppedDecisions: port.DroppedDecisions(),
			StopLossExits:    port.StopLossExits(),
			VetoedBars:       comp.VetoedBars(),
		},
	}, nil
}

// RunSweep 并发回测多个组合，任一失败则整体失败。
// 指标列在扫描前统一计算，各组合共享只读行情。
func (e *Engine) RunSweep(ctx context.Context, combos []composer.Combination, frame, benchmark *market.PriceFrame) ([]*Result, error) {
	if len(combos) == 0 {
		return nil, fmt.Errorf("backtest: 组合列表为空")
	}
	if err := prepareFrame(frame); err != nil {
		return nil, err
	}

	results := make([]*Result, len(combos))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, combo := range combos {
		group.Go(func() error {
			result, err := e.run(groupCtx, combo, frame, benchmark)
			if err != nil {
				return fmt.Errorf("backtest: 组合 %q 回测失败: %w", combo.Name, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// benchmarkCurve 将基准行情折算为同等初始资金的买入持有净值曲线。
func benchmarkCurve(benchmark *market.PriceFrame, initialCapital float64) ([]portfolio.EquityPoint, error) {
	if benchmark == nil || benchmark.Len() == 0 {
		return nil, nil
	}
	if err := benchmark.CheckPrices(); err != nil {
		return nil, err
	}
	if initialCapital <= 0 {
		initialCapital = 100000
	}

	base := benchmark.Close[0]
	if base <= 0 {
		return nil, fmt.Errorf("backtest: 基准 %q 首期收盘价为 %v，无法折算买入持有净值", benchmark.Symbol, base)
	}
	curve := make([]portfolio.EquityPoint, benchmark.Len())
	for i := range curve {
		curve[i] = portfolio.EquityPoint{
			Timestamp: benchmark.Timestamps[i],
			Equity:    initialCapital * benchmark.Close[i] / base,
		}
	}
	return curve, nil
}
