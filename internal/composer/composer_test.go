package composer

import (
	"errors"
	"testing"
	"time"

	"quantlab/internal/market"
	"quantlab/internal/strategy"
)

// stubGenerator 返回固定决策序列，便于验证融合语义。
type stubGenerator struct {
	name      string
	decisions []strategy.Decision
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Warmup() int { return 0 }

func (s *stubGenerator) Generate(frame *market.PriceFrame) ([]strategy.Decision, error) {
	out := make([]strategy.Decision, frame.Len())
	copy(out, s.decisions)
	return out, nil
}

// maskFilter 返回固定掩码。
type maskFilter struct {
	mask []bool
}

func (f *maskFilter) Apply(frame *market.PriceFrame) ([]bool, error) {
	return f.mask, nil
}

func makeFrame(t *testing.T, n int) *market.PriceFrame {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1000,
		}
	}
	frame, err := market.NewFrame("TEST", bars)
	if err != nil {
		t.Fatalf("NewFrame returned error: %v", err)
	}
	return frame
}

// stubRegistry 注册以序列内容命名的桩策略。
func stubRegistry(series map[string][]strategy.Decision) *strategy.Registry {
	registry := strategy.NewRegistry()
	for kind, decisions := range series {
		decisions := decisions
		name := kind
		registry.Register(kind, func(params map[string]interface{}) (strategy.Generator, error) {
			return &stubGenerator{name: name, decisions: decisions}, nil
		})
	}
	return registry
}

func newTestComposer(t *testing.T, method Method, threshold float64, combinationFilter *maskFilter, weights map[string]float64, series map[string][]strategy.Decision) *Composer {
	t.Helper()
	specs := make([]GeneratorSpec, 0, len(series))
	for kind := range series {
		specs = append(specs, GeneratorSpec{Name: kind, Kind: kind, Weight: weights[kind]})
	}

	combo := Combination{
		Name:       "test",
		Method:     method,
		Generators: specs,
		Threshold:  threshold,
	}
	if combinationFilter != nil {
		combo.Filter = combinationFilter
	}

	comp, err := New(combo, stubRegistry(series), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return comp
}

func TestNew_RejectsInvalidConfiguration(t *testing.T) {
	registry := strategy.NewRegistry()
	gen := []GeneratorSpec{{Name: "a", Kind: "rsi_reversion"}}

	cases := []struct {
		name  string
		combo Combination
	}{
		{"unknown method", Combination{Name: "c", Method: "median", Generators: gen}},
		{"no generators", Combination{Name: "c", Method: MethodMajorityVote}},
		{"single with two", Combination{Name: "c", Method: MethodSingle, Generators: append(gen, gen...)}},
		{"threshold out of range", Combination{Name: "c", Method: MethodWeightedAverage, Generators: gen, Threshold: 1.5}},
		{"negative weight", Combination{Name: "c", Method: MethodMajorityVote, Generators: []GeneratorSpec{{Name: "a", Kind: "rsi_reversion", Weight: -1}}}},
		{"unknown kind", Combination{Name: "c", Method: MethodMajorityVote, Generators: []GeneratorSpec{{Name: "a", Kind: "no_such"}}}},
	}

	for _, tc := range cases {
		_, err := New(tc.combo, registry, nil)
		if err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
			continue
		}
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigurationError, got %T", tc.name, err)
		}
	}
}

func TestFuse_MajorityVoteCountsAndTies(t *testing.T) {
	frame := makeFrame(t, 4)
	comp := newTestComposer(t, MethodMajorityVote, 0, nil, nil, map[string][]strategy.Decision{
		"stub_a": {strategy.Buy, strategy.Buy, strategy.Sell, strategy.Hold},
		"stub_b": {strategy.Buy, strategy.Sell, strategy.Sell, strategy.Hold},
		"stub_c": {strategy.Hold, strategy.Hold, strategy.Buy, strategy.Hold},
	})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}

	// 行 0: 2 买 0 卖；行 1: 1:1 平票；行 2: 1 买 2 卖；行 3: 0:0 平票。
	expected := []strategy.Decision{strategy.Buy, strategy.Hold, strategy.Sell, strategy.Hold}
	for i, want := range expected {
		if fused[i] != want {
			t.Errorf("row %d: expected %s, got %s", i, want, fused[i])
		}
	}
}

func TestFuse_WeightedAverageThresholdBoundary(t *testing.T) {
	frame := makeFrame(t, 3)
	comp := newTestComposer(t, MethodWeightedAverage, 0, nil,
		map[string]float64{"stub_a": 1, "stub_b": 1},
		map[string][]strategy.Decision{
			"stub_a": {strategy.Buy, strategy.Sell, strategy.Buy},
			"stub_b": {strategy.Hold, strategy.Hold, strategy.Sell},
		})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}

	// 得分依次为 0.5、-0.5、0；阈值 0.5 取等号。
	expected := []strategy.Decision{strategy.Buy, strategy.Sell, strategy.Hold}
	for i, want := range expected {
		if fused[i] != want {
			t.Errorf("row %d: expected %s, got %s", i, want, fused[i])
		}
	}
}

func TestFuse_WeightedAverageRespectsWeights(t *testing.T) {
	frame := makeFrame(t, 1)
	comp := newTestComposer(t, MethodWeightedAverage, 0.5, nil,
		map[string]float64{"stub_a": 3, "stub_b": 1},
		map[string][]strategy.Decision{
			"stub_a": {strategy.Buy},
			"stub_b": {strategy.Sell},
		})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}
	// 得分 (3-1)/4 = 0.5 → 买入。
	if fused[0] != strategy.Buy {
		t.Errorf("expected Buy, got %s", fused[0])
	}
}

func TestFuse_UnanimousRequiresFullAgreement(t *testing.T) {
	frame := makeFrame(t, 3)
	comp := newTestComposer(t, MethodUnanimous, 0, nil, nil, map[string][]strategy.Decision{
		"stub_a": {strategy.Buy, strategy.Buy, strategy.Sell},
		"stub_b": {strategy.Buy, strategy.Hold, strategy.Sell},
	})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}

	expected := []strategy.Decision{strategy.Buy, strategy.Hold, strategy.Sell}
	for i, want := range expected {
		if fused[i] != want {
			t.Errorf("row %d: expected %s, got %s", i, want, fused[i])
		}
	}
}

func TestFuse_SinglePassesThrough(t *testing.T) {
	frame := makeFrame(t, 3)
	comp := newTestComposer(t, MethodSingle, 0, nil, nil, map[string][]strategy.Decision{
		"stub_a": {strategy.Buy, strategy.Hold, strategy.Sell},
	})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}

	expected := []strategy.Decision{strategy.Buy, strategy.Hold, strategy.Sell}
	for i, want := range expected {
		if fused[i] != want {
			t.Errorf("row %d: expected %s, got %s", i, want, fused[i])
		}
	}
}

func TestFuse_FilterVetoesToHold(t *testing.T) {
	frame := makeFrame(t, 3)
	comp := newTestComposer(t, MethodSingle, 0,
		&maskFilter{mask: []bool{true, false, false}},
		nil,
		map[string][]strategy.Decision{
			"stub_a": {strategy.Buy, strategy.Sell, strategy.Hold},
		})

	fused, err := comp.Fuse(frame)
	if err != nil {
		t.Fatalf("Fuse returned error: %v", err)
	}

	expected := []strategy.Decision{strategy.Buy, strategy.Hold, strategy.Hold}
	for i, want := range expected {
		if fused[i] != want {
			t.Errorf("row %d: expected %s, got %s", i, want, fused[i])
		}
	}
	// 第 2 行本就是 Hold，不计入否决数。
	if comp.VetoedBars() != 1 {
		t.Errorf("expected 1 vetoed bar, got %d", comp.VetoedBars())
	}
}
