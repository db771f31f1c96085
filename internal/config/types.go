package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"quantlab/internal/filter"
	"quantlab/internal/portfolio"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App          AppConfig           `mapstructure:"app"`
	Backtest     BacktestConfig      `mapstructure:"backtest"`
	Combinations []CombinationConfig `mapstructure:"combinations"`
	Exchange     ExchangeConfig      `mapstructure:"exchange"`
	OpenAI       OpenAIConfig        `mapstructure:"openai"`
	Sentiment    SentimentConfig     `mapstructure:"sentiment"`
	Politician   PoliticianConfig    `mapstructure:"politician"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Logging      LoggingConfig       `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 描述回测账户、时间范围与年化口径。
type BacktestConfig struct {
	Portfolio       portfolio.Config `mapstructure:",squash"`
	PeriodsPerYear  float64          `mapstructure:"periods_per_year"`
	RiskFreeRate    float64          `mapstructure:"risk_free_rate"`
	BenchmarkSymbol string           `mapstructure:"benchmark_symbol"`
	StartDate       string           `mapstructure:"start_date"`
	EndDate         string           `mapstructure:"end_date"`
}

// DateRange 解析回测时间范围，空串表示不限。
func (c BacktestConfig) DateRange() (start, end time.Time, err error) {
	if c.StartDate != "" {
		start, err = time.Parse("2006-01-02", c.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("backtest.start_date 格式应为 YYYY-MM-DD: %w", err)
		}
	}
	if c.EndDate != "" {
		end, err = time.Parse("2006-01-02", c.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("backtest.end_date 格式应为 YYYY-MM-DD: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return time.Time{}, time.Time{}, errors.New("backtest.start_date 不能晚于 end_date")
	}
	return start, end, nil
}

// CombinationConfig 描述一个策略组合。
type CombinationConfig struct {
	Name       string            `mapstructure:"name"`
	Method     string            `mapstructure:"method"`
	Threshold  float64           `mapstructure:"threshold"`
	Generators []GeneratorConfig `mapstructure:"generators"`
	Filters    FiltersConfig     `mapstructure:"filters"`
}

// GeneratorConfig 描述组合内的单个策略实例。
type GeneratorConfig struct {
	Name   string                 `mapstructure:"name"`
	Kind   string                 `mapstructure:"kind"`
	Weight float64                `mapstructure:"weight"`
	Params map[string]interface{} `mapstructure:"params"`
}

// FiltersConfig 描述组合使用的过滤器，未配置的过滤器为 nil。
type FiltersConfig struct {
	Logic     string                        `mapstructure:"logic"`
	Stock     *filter.StockFilterConfig     `mapstructure:"stock"`
	Time      *filter.TimeFilterConfig      `mapstructure:"time"`
	Liquidity *filter.LiquidityFilterConfig `mapstructure:"liquidity"`
}

// ExchangeConfig 描述行情数据源连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	Timeframe  string      `mapstructure:"timeframe"`
	Limit      int         `mapstructure:"limit"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SentimentConfig 控制情绪列的生成。
// HeadlinesPath 指向按日期分组的新闻标题 JSON 文件。
type SentimentConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Column        string `mapstructure:"column"`
	HeadlinesPath string `mapstructure:"headlines_path"`
}

// PoliticianConfig 控制政客披露信号列的生成。
// DisclosuresPath 指向披露记录 JSON 文件，SignalDelayDays 为
// 披露日到跟单信号之间的延迟天数。
type PoliticianConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Column          string   `mapstructure:"column"`
	DisclosuresPath string   `mapstructure:"disclosures_path"`
	SignalDelayDays int      `mapstructure:"signal_delay_days"`
	Follow          []string `mapstructure:"follow"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。组合内部的融合方式与策略参数
// 由 composer 在实例化时做最终校验，这里只拦截结构性错误。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Backtest.Portfolio.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if c.Backtest.Portfolio.CommissionRate < 0 || c.Backtest.Portfolio.CommissionRate > 0.2 {
		err = multierr.Append(err, errors.New("backtest.commission_rate 应位于[0,0.2]"))
	}
	if c.Backtest.Portfolio.MaxPositionSize <= 0 || c.Backtest.Portfolio.MaxPositionSize > 1 {
		err = multierr.Append(err, errors.New("backtest.max_position_size 必须位于(0,1]"))
	}
	if c.Backtest.Portfolio.StopLoss < 0 || c.Backtest.Portfolio.StopLoss >= 1 {
		err = multierr.Append(err, errors.New("backtest.stop_loss 必须位于[0,1)"))
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		err = multierr.Append(err, errors.New("backtest.periods_per_year 必须大于0"))
	}
	if c.Backtest.RiskFreeRate < 0 || c.Backtest.RiskFreeRate > 0.5 {
		err = multierr.Append(err, errors.New("backtest.risk_free_rate 应位于[0,0.5]"))
	}
	if _, _, rangeErr := c.Backtest.DateRange(); rangeErr != nil {
		err = multierr.Append(err, rangeErr)
	}

	seen := make(map[string]bool, len(c.Combinations))
	for i, combo := range c.Combinations {
		if combo.Name == "" {
			err = multierr.Append(err, fmt.Errorf("combinations[%d].name 不能为空", i))
			continue
		}
		if seen[combo.Name] {
			err = multierr.Append(err, fmt.Errorf("组合名称 %q 重复", combo.Name))
		}
		seen[combo.Name] = true
		if combo.Method == "" {
			err = multierr.Append(err, fmt.Errorf("组合 %q 缺少 method", combo.Name))
		}
		if len(combo.Generators) == 0 {
			err = multierr.Append(err, fmt.Errorf("组合 %q 至少需要一个策略", combo.Name))
		}
		for j, gen := range combo.Generators {
			if gen.Kind == "" {
				err = multierr.Append(err, fmt.Errorf("组合 %q generators[%d].kind 不能为空", combo.Name, j))
			}
		}
	}

	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.Timeframe == "" {
		err = multierr.Append(err, errors.New("exchange.timeframe 不能为空"))
	}
	if c.Exchange.Limit <= 0 {
		err = multierr.Append(err, errors.New("exchange.limit 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}

	if c.Sentiment.Enabled {
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("启用情绪列时 openai.api_key 不能为空"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
		if c.Sentiment.Column == "" {
			err = multierr.Append(err, errors.New("sentiment.column 不能为空"))
		}
		if c.Sentiment.HeadlinesPath == "" {
			err = multierr.Append(err, errors.New("启用情绪列时 sentiment.headlines_path 不能为空"))
		}
	}

	if c.Politician.Enabled {
		if c.Politician.Column == "" {
			err = multierr.Append(err, errors.New("politician.column 不能为空"))
		}
		if c.Politician.DisclosuresPath == "" {
			err = multierr.Append(err, errors.New("启用政客跟单时 politician.disclosures_path 不能为空"))
		}
		if c.Politician.SignalDelayDays < 0 {
			err = multierr.Append(err, errors.New("politician.signal_delay_days 不能为负"))
		}
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// Combination 按名称查找组合配置。
func (c *Config) Combination(name string) (CombinationConfig, bool) {
	for _, combo := range c.Combinations {
		if combo.Name == name {
			return combo, true
		}
	}
	return CombinationConfig{}, false
}
