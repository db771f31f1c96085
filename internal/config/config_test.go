package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config fixture failed: %v", err)
	}
	return path
}

const minimalConfig = `
combinations:
  - name: trend_vote
    method: majority_vote
    generators:
      - name: sma
        kind: sma_crossover
        params:
          fast: 10
          slow: 30
      - name: rsi
        kind: rsi_reversion
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Backtest.Portfolio.InitialCapital != 100000 {
		t.Errorf("expected default initial capital 100000, got %v", cfg.Backtest.Portfolio.InitialCapital)
	}
	if cfg.Backtest.Portfolio.CommissionRate != 0.0005 {
		t.Errorf("expected default commission 0.0005, got %v", cfg.Backtest.Portfolio.CommissionRate)
	}
	if cfg.Backtest.PeriodsPerYear != 252 {
		t.Errorf("expected default periods_per_year 252, got %v", cfg.Backtest.PeriodsPerYear)
	}
	if cfg.Exchange.Name != "binance" || cfg.Exchange.Timeframe != "1d" {
		t.Errorf("unexpected exchange defaults: %+v", cfg.Exchange)
	}
	if cfg.Exchange.Retry.MinDelay != 500*time.Millisecond || cfg.Exchange.Retry.MaxDelay != 5*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Exchange.Retry)
	}
	if cfg.Database.Path != "data/quantlab.db" {
		t.Errorf("unexpected database default: %q", cfg.Database.Path)
	}
	if cfg.Sentiment.Enabled {
		t.Errorf("expected sentiment disabled by default")
	}
}

func TestLoad_ParsesCombinations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	combo, ok := cfg.Combination("trend_vote")
	if !ok {
		t.Fatalf("expected combination trend_vote to exist")
	}
	if combo.Method != "majority_vote" || len(combo.Generators) != 2 {
		t.Fatalf("unexpected combination: %+v", combo)
	}
	if combo.Generators[0].Kind != "sma_crossover" {
		t.Errorf("unexpected generator kind %q", combo.Generators[0].Kind)
	}
	if combo.Generators[0].Params["fast"] != 10 {
		t.Errorf("expected params to survive decoding, got %v", combo.Generators[0].Params)
	}

	if _, ok := cfg.Combination("missing"); ok {
		t.Errorf("expected lookup miss for unknown combination")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
backtest:
  initial_capital: 50000
  stop_loss: 0.08
  benchmark_symbol: QQQ
exchange:
  market: ETH-USDT
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Backtest.Portfolio.InitialCapital != 50000 {
		t.Errorf("expected overridden capital 50000, got %v", cfg.Backtest.Portfolio.InitialCapital)
	}
	if cfg.Backtest.Portfolio.StopLoss != 0.08 {
		t.Errorf("expected stop loss 0.08, got %v", cfg.Backtest.Portfolio.StopLoss)
	}
	if cfg.Backtest.BenchmarkSymbol != "QQQ" {
		t.Errorf("expected benchmark QQQ, got %q", cfg.Backtest.BenchmarkSymbol)
	}
	if cfg.Exchange.Market != "ETH-USDT" {
		t.Errorf("expected market ETH-USDT, got %q", cfg.Exchange.Market)
	}
}

func TestDateRange_ParsesBounds(t *testing.T) {
	cfg := BacktestConfig{StartDate: "2024-01-01", EndDate: "2024-06-30"}
	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange returned error: %v", err)
	}
	if start != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected start %v", start)
	}
	if end != time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected end %v", end)
	}

	open := BacktestConfig{}
	start, end, err = open.DateRange()
	if err != nil {
		t.Fatalf("DateRange returned error: %v", err)
	}
	if !start.IsZero() || !end.IsZero() {
		t.Errorf("expected zero bounds for open range, got %v..%v", start, end)
	}

	if _, _, err := (BacktestConfig{StartDate: "01/02/2024"}).DateRange(); err == nil {
		t.Errorf("expected error for malformed start_date")
	}
	if _, _, err := (BacktestConfig{StartDate: "2024-06-30", EndDate: "2024-01-01"}).DateRange(); err == nil {
		t.Errorf("expected error for inverted range")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file, got nil")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "negative capital",
			yaml:    minimalConfig + "backtest:\n  initial_capital: -1\n",
			wantMsg: "initial_capital",
		},
		{
			name:    "stop loss out of range",
			yaml:    minimalConfig + "backtest:\n  stop_loss: 1.5\n",
			wantMsg: "stop_loss",
		},
		{
			name: "duplicate combination names",
			yaml: `
combinations:
  - name: dup
    method: single
    generators:
      - name: rsi
        kind: rsi_reversion
  - name: dup
    method: single
    generators:
      - name: macd
        kind: macd_cross
`,
			wantMsg: "dup",
		},
		{
			name: "generator without kind",
			yaml: `
combinations:
  - name: broken
    method: single
    generators:
      - name: rsi
`,
			wantMsg: "kind",
		},
		{
			name:    "politician enabled without disclosures path",
			yaml:    minimalConfig + "politician:\n  enabled: true\n",
			wantMsg: "disclosures_path",
		},
		{
			name:    "sentiment enabled without api key",
			yaml:    minimalConfig + "sentiment:\n  enabled: true\n  headlines_path: data/headlines.json\n",
			wantMsg: "api_key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatalf("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantMsg, err)
			}
		})
	}
}
