package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/metrics"
	"quantlab/internal/portfolio"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(id, strategy string, createdAt time.Time) *backtest.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		ID:        id,
		Strategy:  strategy,
		Symbol:    "BTC-USDT",
		CreatedAt: createdAt,
		Metrics: metrics.PerformanceMetrics{
			TotalReturn: 0.25,
			SharpeRatio: 1.4,
			MaxDrawdown: -0.1,
			TotalTrades: 2,
		},
		Trades: []portfolio.Trade{
			{Timestamp: start, Symbol: "BTC-USDT", Side: portfolio.SideBuy, Quantity: 1, Price: 40000},
		},
		EquityCurve: []portfolio.EquityPoint{
			{Timestamp: start, Equity: 100000},
			{Timestamp: start.AddDate(0, 0, 1), Equity: 125000},
		},
	}
}

func TestSaveAndGetResult_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := sampleResult("r-1", "trend_vote", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := s.SaveResult(ctx, original); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}

	loaded, err := s.GetResult(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	if loaded.ID != original.ID || loaded.Strategy != original.Strategy || loaded.Symbol != original.Symbol {
		t.Errorf("identity mismatch: %+v", loaded)
	}
	if loaded.Metrics.TotalReturn != 0.25 || loaded.Metrics.SharpeRatio != 1.4 {
		t.Errorf("metrics not preserved: %+v", loaded.Metrics)
	}
	if len(loaded.Trades) != 1 || len(loaded.EquityCurve) != 2 {
		t.Errorf("expected 1 trade and 2 equity points, got %d/%d", len(loaded.Trades), len(loaded.EquityCurve))
	}
}

func TestSaveResult_RejectsNil(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveResult(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil result, got nil")
	}
}

func TestGetResult_UnknownID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetResult(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListResults_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	results := []*backtest.Result{
		sampleResult("r-1", "trend_vote", base),
		sampleResult("r-2", "rsi_only", base.Add(time.Hour)),
		sampleResult("r-3", "trend_vote", base.Add(2*time.Hour)),
	}
	for _, result := range results {
		if err := s.SaveResult(ctx, result); err != nil {
			t.Fatalf("SaveResult(%s) returned error: %v", result.ID, err)
		}
	}

	all, err := s.ListResults(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListResults returned error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(all))
	}
	if all[0].ID != "r-3" || all[1].ID != "r-2" || all[2].ID != "r-1" {
		t.Errorf("expected newest first, got %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}

	trend, err := s.ListResults(ctx, "trend_vote", 0)
	if err != nil {
		t.Fatalf("ListResults(trend_vote) returned error: %v", err)
	}
	if len(trend) != 2 {
		t.Fatalf("expected 2 trend_vote summaries, got %d", len(trend))
	}
	for _, summary := range trend {
		if summary.Strategy != "trend_vote" {
			t.Errorf("unexpected strategy %q in filtered list", summary.Strategy)
		}
	}

	limited, err := s.ListResults(ctx, "", 1)
	if err != nil {
		t.Fatalf("ListResults(limit=1) returned error: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "r-3" {
		t.Errorf("expected single newest summary, got %+v", limited)
	}
}
