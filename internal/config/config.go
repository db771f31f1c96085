// Package config 读取并校验 YAML 配置，环境变量可覆盖任意键。
package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "quantlab"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.commission_rate", 0.0005)
	v.SetDefault("backtest.slippage.model", "fixed_bps")
	v.SetDefault("backtest.slippage.bps", 1.0)
	v.SetDefault("backtest.sizing.method", "fixed_fraction")
	v.SetDefault("backtest.sizing.fraction", 0.25)
	v.SetDefault("backtest.sizing.max_positions", 10)
	v.SetDefault("backtest.max_position_size", 0.25)
	v.SetDefault("backtest.allow_short", false)
	v.SetDefault("backtest.allow_pyramiding", false)
	v.SetDefault("backtest.stop_loss", 0.0)
	v.SetDefault("backtest.periods_per_year", 252.0)
	v.SetDefault("backtest.risk_free_rate", 0.02)
	v.SetDefault("backtest.benchmark_symbol", "SPY")
	v.SetDefault("backtest.start_date", "")
	v.SetDefault("backtest.end_date", "")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.market", "BTC/USDT")
	v.SetDefault("exchange.timeframe", "1d")
	v.SetDefault("exchange.limit", 500)
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.timeout", "15s")

	v.SetDefault("sentiment.enabled", false)
	v.SetDefault("sentiment.column", "sentiment")
	v.SetDefault("sentiment.headlines_path", "")

	v.SetDefault("politician.enabled", false)
	v.SetDefault("politician.column", "politician_signal")
	v.SetDefault("politician.disclosures_path", "")
	v.SetDefault("politician.signal_delay_days", 1)

	v.SetDefault("database.path", "data/quantlab.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
