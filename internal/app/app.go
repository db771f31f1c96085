// Package app 聚合核心依赖并驱动一次完整的回测流程。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"quantlab/internal/backtest"
	"quantlab/internal/composer"
	"quantlab/internal/config"
	"quantlab/internal/dataload"
	"quantlab/internal/filter"
	"quantlab/internal/market"
	"quantlab/internal/sentiment"
	"quantlab/internal/store"
	"quantlab/internal/strategy"
)

// Options 承载命令行层面的运行选项。
type Options struct {
	// Combination 指定只回测某个组合，空则回测全部。
	Combination string
	// CSVPath 指定本地行情文件，空则从交易所拉取。
	CSVPath string
	// OutPath 指定结果 JSON 输出文件，空则不落盘。
	OutPath string
}

// App 聚合核心依赖并驱动回测生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行完整流程：载入行情、解析组合、回测并持久化结果。
func (a *App) Run(ctx context.Context, opts Options) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("market", a.cfg.Exchange.Market),
		zap.Int("combinations", len(a.cfg.Combinations)),
	)

	combos, err := a.resolveCombinations(opts.Combination)
	if err != nil {
		return err
	}

	frame, benchmark, err := a.loadFrames(ctx, opts.CSVPath)
	if err != nil {
		return err
	}

	if a.cfg.Sentiment.Enabled {
		if err := a.annotateSentiment(ctx, frame); err != nil {
			return err
		}
	}

	if a.cfg.Politician.Enabled {
		if err := a.annotateDisclosures(frame); err != nil {
			return err
		}
	}

	registry := strategy.NewRegistry()
	engine, err := backtest.NewEngine(backtest.Config{
		Portfolio:       a.cfg.Backtest.Portfolio,
		PeriodsPerYear:  a.cfg.Backtest.PeriodsPerYear,
		RiskFreeRate:    a.cfg.Backtest.RiskFreeRate,
		BenchmarkSymbol: a.cfg.Backtest.BenchmarkSymbol,
	}, registry, a.logger)
	if err != nil {
		return err
	}

	var results []*backtest.Result
	if len(combos) == 1 {
		result, err := engine.Run(ctx, combos[0], frame, benchmark)
		if err != nil {
			return err
		}
		results = []*backtest.Result{result}
	} else {
		results, err = engine.RunSweep(ctx, combos, frame, benchmark)
		if err != nil {
			return err
		}
	}

	for _, result := range results {
		if err := a.store.SaveResult(ctx, result); err != nil {
			return err
		}
		a.logger.Info("回测结果已入库",
			zap.String("id", result.ID),
			zap.String("combination", result.Strategy),
			zap.Float64("total_return", result.Metrics.TotalReturn),
			zap.Float64("sharpe", result.Metrics.SharpeRatio),
			zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
		)
	}

	if opts.OutPath != "" {
		if err := writeResults(opts.OutPath, results); err != nil {
			return err
		}
		a.logger.Info("回测结果已导出", zap.String("path", opts.OutPath))
	}

	return nil
}

// resolveCombinations 将配置中的组合解析为可执行形式。
func (a *App) resolveCombinations(only string) ([]composer.Combination, error) {
	selected := a.cfg.Combinations
	if only != "" {
		combo, ok := a.cfg.Combination(only)
		if !ok {
			return nil, fmt.Errorf("app: 配置中不存在组合 %q", only)
		}
		selected = []config.CombinationConfig{combo}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("app: 配置中没有任何组合")
	}

	combos := make([]composer.Combination, 0, len(selected))
	for _, cfg := range selected {
		combo, err := buildCombination(cfg)
		if err != nil {
			return nil, err
		}
		combos = append(combos, combo)
	}
	return combos, nil
}

func buildCombination(cfg config.CombinationConfig) (composer.Combination, error) {
	generators := make([]composer.GeneratorSpec, 0, len(cfg.Generators))
	for _, gen := range cfg.Generators {
		generators = append(generators, composer.GeneratorSpec{
			Name:   gen.Name,
			Kind:   gen.Kind,
			Params: gen.Params,
			Weight: gen.Weight,
		})
	}

	combinationFilter, err := buildFilter(cfg.Filters)
	if err != nil {
		return composer.Combination{}, fmt.Errorf("组合 %q 过滤器配置错误: %w", cfg.Name, err)
	}

	return composer.Combination{
		Name:       cfg.Name,
		Method:     composer.Method(cfg.Method),
		Generators: generators,
		Threshold:  cfg.Threshold,
		Filter:     combinationFilter,
	}, nil
}

func buildFilter(cfg config.FiltersConfig) (filter.Filter, error) {
	var filters []filter.Filter
	if cfg.Stock != nil {
		filters = append(filters, filter.NewStockFilter(*cfg.Stock))
	}
	if cfg.Time != nil {
		timeFilter, err := filter.NewTimeFilter(*cfg.Time)
		if err != nil {
			return nil, err
		}
		filters = append(filters, timeFilter)
	}
	if cfg.Liquidity != nil {
		liquidityFilter, err := filter.NewLiquidityFilter(*cfg.Liquidity)
		if err != nil {
			return nil, err
		}
		filters = append(filters, liquidityFilter)
	}
	if len(filters) == 0 {
		return nil, nil
	}

	logic := filter.Logic(cfg.Logic)
	if cfg.Logic == "" {
		logic = filter.LogicAnd
	}
	return filter.NewComposite(filters, logic)
}

// loadFrames 载入策略行情与基准行情并裁剪到配置的时间范围。
// CSV 模式下跳过基准。
func (a *App) loadFrames(ctx context.Context, csvPath string) (*market.PriceFrame, *market.PriceFrame, error) {
	start, end, err := a.cfg.Backtest.DateRange()
	if err != nil {
		return nil, nil, err
	}

	if csvPath != "" {
		frame, err := dataload.LoadCSV(csvPath, a.cfg.Exchange.Market)
		if err != nil {
			return nil, nil, err
		}
		frame = frame.Slice(start, end)
		if frame.Len() == 0 {
			return nil, nil, fmt.Errorf("app: 时间范围内没有行情数据")
		}
		a.logger.Info("已从 CSV 载入行情",
			zap.String("path", csvPath),
			zap.Int("bars", frame.Len()),
		)
		return frame, nil, nil
	}

	loader, err := dataload.NewLoader(a.cfg.Exchange, a.logger)
	if err != nil {
		return nil, nil, err
	}

	frame, err := loader.FetchFrame(ctx, a.cfg.Exchange.Market)
	if err != nil {
		return nil, nil, err
	}
	frame = frame.Slice(start, end)
	if frame.Len() == 0 {
		return nil, nil, fmt.Errorf("app: 时间范围内没有行情数据")
	}
	a.logger.Info("已从交易所载入行情",
		zap.String("market", a.cfg.Exchange.Market),
		zap.Int("bars", frame.Len()),
	)

	var benchmark *market.PriceFrame
	if symbol := a.cfg.Backtest.BenchmarkSymbol; symbol != "" {
		benchmark, err = loader.FetchFrame(ctx, symbol)
		if err != nil {
			a.logger.Warn("基准行情拉取失败，跳过基准对比",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			benchmark = nil
		}
		if benchmark != nil {
			benchmark = benchmark.Slice(start, end)
		}
	}
	return frame, benchmark, nil
}

func (a *App) annotateSentiment(ctx context.Context, frame *market.PriceFrame) error {
	raw, err := os.ReadFile(a.cfg.Sentiment.HeadlinesPath)
	if err != nil {
		return fmt.Errorf("读取新闻标题文件失败: %w", err)
	}

	var headlinesByDate map[string][]string
	if err := json.Unmarshal(raw, &headlinesByDate); err != nil {
		return fmt.Errorf("解析新闻标题文件失败: %w", err)
	}

	scorer, err := sentiment.NewScorer(a.cfg.OpenAI, a.logger)
	if err != nil {
		return err
	}
	return scorer.Annotate(ctx, frame, headlinesByDate, a.cfg.Sentiment.Column)
}

func (a *App) annotateDisclosures(frame *market.PriceFrame) error {
	disclosures, err := dataload.LoadDisclosures(a.cfg.Politician.DisclosuresPath)
	if err != nil {
		return err
	}

	cfg := a.cfg.Politician
	if err := dataload.AnnotateDisclosures(frame, disclosures, cfg.Column, cfg.SignalDelayDays, cfg.Follow); err != nil {
		return err
	}
	a.logger.Info("已标注政客披露信号列",
		zap.String("column", cfg.Column),
		zap.Int("disclosures", len(disclosures)),
	)
	return nil
}

func writeResults(path string, results []*backtest.Result) error {
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("写入结果文件失败: %w", err)
	}
	return nil
}
