package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/market"
	"quantlab/internal/strategy"
)

func ts(step int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, step)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStep_BuyThenSellAccountsCash(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.5},
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 10, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	pos := p.Position("TEST")
	if pos == nil {
		t.Fatalf("expected open position")
	}
	if !almostEqual(pos.Quantity, 50) {
		t.Errorf("expected quantity 50, got %v", pos.Quantity)
	}
	if !almostEqual(p.Cash(), 500) {
		t.Errorf("expected cash 500, got %v", p.Cash())
	}

	if err := p.Step(ts(1), "TEST", strategy.Sell, 12, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if p.Position("TEST") != nil {
		t.Errorf("expected flat position after sell")
	}
	if !almostEqual(p.Cash(), 1100) {
		t.Errorf("expected cash 1100, got %v", p.Cash())
	}

	trades := p.Trades()
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	closing := trades[1]
	if !closing.Closing {
		t.Errorf("expected second trade to be closing")
	}
	if !almostEqual(closing.RealizedPnl, 100) {
		t.Errorf("expected realized pnl 100, got %v", closing.RealizedPnl)
	}
}

func TestStep_SlippageAppliedBeforeCommission(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		CommissionRate: 0.01,
		Slippage:       SlippageConfig{Model: SlippageFixedBps, Bps: 100},
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 1},
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	trades := p.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	trade := trades[0]

	// 100bps 滑点：成交价 101；佣金按滑点后的名义额计。
	if !almostEqual(trade.Price, 101) {
		t.Errorf("expected exec price 101, got %v", trade.Price)
	}
	if !almostEqual(trade.Commission, trade.Quantity*101*0.01) {
		t.Errorf("commission %v not on slipped notional", trade.Commission)
	}
	// 数量被裁剪到含佣金成本不超过现金。
	if p.Cash() < 0 {
		t.Errorf("cash went negative: %v", p.Cash())
	}
	if !almostEqual(trade.Quantity, 1000/(101*1.01)) {
		t.Errorf("expected clipped quantity, got %v", trade.Quantity)
	}
}

func TestStep_InsufficientCashDropsSilently(t *testing.T) {
	p := New(Config{
		InitialCapital:  1000,
		Sizing:          SizingConfig{Method: SizingFixedFraction, Fraction: 1},
		AllowPyramiding: true,
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if !almostEqual(p.Cash(), 0) {
		t.Fatalf("expected cash exhausted, got %v", p.Cash())
	}

	// 再次买入时现金为零，决策被静默丢弃。
	if err := p.Step(ts(1), "TEST", strategy.Buy, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if p.DroppedDecisions() != 1 {
		t.Errorf("expected 1 dropped decision, got %d", p.DroppedDecisions())
	}
	if len(p.Trades()) != 1 {
		t.Errorf("expected no additional trade, got %d", len(p.Trades()))
	}
}

func TestStep_NoPyramidingByDefault(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.25},
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 10, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if err := p.Step(ts(1), "TEST", strategy.Buy, 10, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if len(p.Trades()) != 1 {
		t.Errorf("expected repeated Buy to be a no-op, got %d trades", len(p.Trades()))
	}
	if p.DroppedDecisions() != 0 {
		t.Errorf("no-op Buy should not count as dropped, got %d", p.DroppedDecisions())
	}
}

func TestStep_PyramidingMergesAveragePrice(t *testing.T) {
	p := New(Config{
		InitialCapital:  10000,
		Sizing:          SizingConfig{Method: SizingFixedNotional, Notional: 1000},
		AllowPyramiding: true,
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 10, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if err := p.Step(ts(1), "TEST", strategy.Buy, 20, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	pos := p.Position("TEST")
	if pos == nil {
		t.Fatalf("expected open position")
	}
	// 100 股 @10 加 50 股 @20 → 150 股，均价 13.33。
	if !almostEqual(pos.Quantity, 150) {
		t.Errorf("expected quantity 150, got %v", pos.Quantity)
	}
	if !almostEqual(pos.AvgPrice, 2000.0/150) {
		t.Errorf("expected avg price %v, got %v", 2000.0/150, pos.AvgPrice)
	}
}

func TestStep_StopLossClosesBeforeDecision(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.5},
		StopLoss:       0.1,
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	// 跌破止损线 10%，即使当期决策是 Hold 也应平仓。
	if err := p.Step(ts(1), "TEST", strategy.Hold, 89, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if p.Position("TEST") != nil {
		t.Errorf("expected stop loss to flatten position")
	}
	if p.StopLossExits() != 1 {
		t.Errorf("expected 1 stop loss exit, got %d", p.StopLossExits())
	}
	trades := p.Trades()
	if len(trades) != 2 || !trades[1].Closing {
		t.Errorf("expected closing trade from stop loss")
	}
}

func TestStep_ShortRequiresPermission(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.5},
	})
	if err := p.Step(ts(0), "TEST", strategy.Sell, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if len(p.Trades()) != 0 {
		t.Errorf("expected Sell while flat to be a no-op without AllowShort")
	}

	short := New(Config{
		InitialCapital: 1000,
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.5},
		AllowShort:     true,
	})
	if err := short.Step(ts(0), "TEST", strategy.Sell, 100, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	pos := short.Position("TEST")
	if pos == nil || pos.Quantity >= 0 {
		t.Fatalf("expected short position, got %+v", pos)
	}
	// 卖出净收入入账。
	if short.Cash() <= 1000 {
		t.Errorf("expected proceeds credited, cash %v", short.Cash())
	}

	// 反向买入回补。
	if err := short.Step(ts(1), "TEST", strategy.Buy, 90, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if short.Position("TEST") != nil {
		t.Errorf("expected cover to flatten short")
	}
	if short.Cash() <= 1000 {
		t.Errorf("expected profitable cover, cash %v", short.Cash())
	}
}

func TestStep_AppendsExactlyOneEquityPoint(t *testing.T) {
	p := New(Config{InitialCapital: 1000})

	decisions := []strategy.Decision{strategy.Hold, strategy.Buy, strategy.Hold, strategy.Sell}
	for i, d := range decisions {
		if err := p.Step(ts(i), "TEST", d, 100, 0); err != nil {
			t.Fatalf("Step returned error: %v", err)
		}
	}

	curve := p.EquityCurve()
	if len(curve) != len(decisions) {
		t.Fatalf("expected %d equity points, got %d", len(decisions), len(curve))
	}
	for i := range curve {
		if !curve[i].Timestamp.Equal(ts(i)) {
			t.Errorf("point %d: unexpected timestamp %v", i, curve[i].Timestamp)
		}
		if curve[i].Equity < 0 {
			t.Errorf("point %d: negative equity %v", i, curve[i].Equity)
		}
	}
}

func TestStep_RejectsInvalidPrice(t *testing.T) {
	p := New(Config{InitialCapital: 1000})

	err := p.Step(ts(0), "TEST", strategy.Buy, math.NaN(), 0)
	if err == nil {
		t.Fatalf("expected error for NaN price, got nil")
	}
	var integrity *market.DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected DataIntegrityError, got %T", err)
	}
	if len(p.EquityCurve()) != 0 {
		t.Errorf("expected no equity point on failed step")
	}
}

func TestSlippage_VolProportionalGuardsNaN(t *testing.T) {
	p := New(Config{
		InitialCapital: 1000,
		Slippage:       SlippageConfig{Model: SlippageVolProportional, VolCoeff: 0.5},
		Sizing:         SizingConfig{Method: SizingFixedFraction, Fraction: 0.5},
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 100, math.NaN()); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	trades := p.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	// NaN 波动率按零滑点处理。
	if !almostEqual(trades[0].Price, 100) {
		t.Errorf("expected exec price 100, got %v", trades[0].Price)
	}

	if err := p.Step(ts(1), "TEST", strategy.Sell, 100, 0.02); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	closing := p.Trades()[1]
	if !almostEqual(closing.Price, 100*(1-0.5*0.02)) {
		t.Errorf("expected vol-proportional slippage on close, got %v", closing.Price)
	}
}

func TestTargetValue_CappedByMaxPositionSize(t *testing.T) {
	p := New(Config{
		InitialCapital:  1000,
		Sizing:          SizingConfig{Method: SizingFixedFraction, Fraction: 1},
		MaxPositionSize: 0.25,
	})

	if err := p.Step(ts(0), "TEST", strategy.Buy, 10, 0); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	pos := p.Position("TEST")
	if pos == nil {
		t.Fatalf("expected open position")
	}
	if !almostEqual(pos.Quantity, 25) {
		t.Errorf("expected cap at 25%% of equity (25 shares), got %v", pos.Quantity)
	}
}
