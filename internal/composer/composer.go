// Package composer 把多个策略的决策序列融合为单一决策序列。
package composer

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quantlab/internal/filter"
	"quantlab/internal/market"
	"quantlab/internal/strategy"
)

// Method 表示融合方式。
type Method string

const (
	MethodMajorityVote    Method = "majority_vote"
	MethodWeightedAverage Method = "weighted_average"
	MethodUnanimous       Method = "unanimous"
	MethodSingle          Method = "single"
)

// DefaultThreshold 为加权平均的默认判定阈值。
const DefaultThreshold = 0.5

// ConfigurationError 表示组合配置非法，在构造期抛出，回测不会启动。
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "composer: " + e.Reason
}

// GeneratorSpec 描述组合中的一个策略：种类、参数与权重。
type GeneratorSpec struct {
	Name   string
	Kind   string
	Params map[string]interface{}
	Weight float64
}

// Combination 是一次融合的完整声明式配置。
type Combination struct {
	Name       string
	Method     Method
	Generators []GeneratorSpec
	Threshold  float64
	Filter     filter.Filter
}

// Composer 持有已实例化的策略并执行融合。
type Composer struct {
	combo      Combination
	generators []strategy.Generator
	weights    []float64
	logger     *zap.Logger
	vetoed     int
}

// New 校验组合配置并实例化全部策略。
// 未知融合方式、空策略集合或非正权重均返回 ConfigurationError。
func New(combo Combination, registry *strategy.Registry, logger *zap.Logger) (*Composer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch combo.Method {
	case MethodMajorityVote, MethodWeightedAverage, MethodUnanimous, MethodSingle:
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("未知融合方式 %q", combo.Method)}
	}

	if len(combo.Generators) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("组合 %q 未配置任何策略", combo.Name)}
	}
	if combo.Method == MethodSingle && len(combo.Generators) != 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("single 方式要求恰好一个策略，当前为 %d 个", len(combo.Generators))}
	}
	if combo.Threshold == 0 {
		combo.Threshold = DefaultThreshold
	}
	if combo.Threshold < 0 || combo.Threshold > 1 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("阈值必须位于 (0,1]，当前为 %v", combo.Threshold)}
	}

	generators := make([]strategy.Generator, len(combo.Generators))
	weights := make([]float64, len(combo.Generators))
	for i, spec := range combo.Generators {
		if spec.Weight == 0 {
			spec.Weight = 1
		}
		if spec.Weight < 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("策略 %q 的权重必须为正，当前为 %v", spec.Name, spec.Weight)}
		}
		gen, err := registry.New(spec.Kind, spec.Params)
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("实例化策略 %q 失败: %v", spec.Name, err)}
		}
		generators[i] = gen
		weights[i] = spec.Weight
	}

	return &Composer{
		combo:      combo,
		generators: generators,
		weights:    weights,
		logger:     logger,
	}, nil
}

// Name 返回组合名称。
func (c *Composer) Name() string {
	return c.combo.Name
}

// Method 返回融合方式。
func (c *Composer) Method() Method {
	return c.combo.Method
}

// Fuse 并发执行全部策略后按配置方式融合，并应用过滤器否决。
func (c *Composer) Fuse(frame *market.PriceFrame) ([]strategy.Decision, error) {
	series := make([][]strategy.Decision, len(c.generators))

	// 策略只读 frame，可安全并行；融合与持仓回放保持串行。
	var group errgroup.Group
	for i, gen := range c.generators {
		group.Go(func() error {
			decisions, err := gen.Generate(frame)
			if err != nil {
				return err
			}
			if len(decisions) != frame.Len() {
				return fmt.Errorf("composer: 策略 %q 输出长度 %d 与数据行数 %d 不一致",
					gen.Name(), len(decisions), frame.Len())
			}
			series[i] = decisions
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := make([]strategy.Decision, frame.Len())
	switch c.combo.Method {
	case MethodSingle:
		copy(fused, series[0])
	case MethodMajorityVote:
		c.fuseMajority(series, fused)
	case MethodWeightedAverage:
		c.fuseWeighted(series, fused)
	case MethodUnanimous:
		c.fuseUnanimous(series, fused)
	}

	c.vetoed = 0
	if c.combo.Filter != nil {
		mask, err := c.combo.Filter.Apply(frame)
		if err != nil {
			return nil, err
		}
		vetoed := 0
		for i := range fused {
			if !mask[i] && fused[i] != strategy.Hold {
				fused[i] = strategy.Hold
				vetoed++
			}
		}
		if vetoed > 0 {
			c.logger.Debug("过滤器否决了部分决策",
				zap.String("combination", c.combo.Name),
				zap.Int("vetoed", vetoed))
		}
		c.vetoed = vetoed
	}

	return fused, nil
}

// VetoedBars 返回最近一次 Fuse 中被过滤器否决的决策数。
func (c *Composer) VetoedBars() int {
	return c.vetoed
}

// fuseMajority 统计多空票数，持平（含 0:0）输出 Hold，与策略顺序无关。
func (c *Composer) fuseMajority(series [][]strategy.Decision, fused []strategy.Decision) {
	for t := range fused {
		var buys, sells int
		for _, decisions := range series {
			switch decisions[t] {
			case strategy.Buy:
				buys++
			case strategy.Sell:
				sells++
			}
		}
		switch {
		case buys > sells:
			fused[t] = strategy.Buy
		case sells > buys:
			fused[t] = strategy.Sell
		}
	}
}

// fuseWeighted 计算加权均值并与阈值比较，边界取等号。
func (c *Composer) fuseWeighted(series [][]strategy.Decision, fused []strategy.Decision) {
	var totalWeight float64
	for _, w := range c.weights {
		totalWeight += w
	}

	for t := range fused {
		var weighted float64
		for i, decisions := range series {
			weighted += c.weights[i] * float64(decisions[t])
		}
		score := weighted / totalWeight
		switch {
		case score >= c.combo.Threshold:
			fused[t] = strategy.Buy
		case score <= -c.combo.Threshold:
			fused[t] = strategy.Sell
		}
	}
}

// fuseUnanimous 仅在所有策略方向一致且非观望时输出该方向。
func (c *Composer) fuseUnanimous(series [][]strategy.Decision, fused []strategy.Decision) {
	for t := range fused {
		first := series[0][t]
		if first == strategy.Hold {
			continue
		}
		unanimous := true
		for _, decisions := range series[1:] {
			if decisions[t] != first {
				unanimous = false
				break
			}
		}
		if unanimous {
			fused[t] = first
		}
	}
}
