package strategy

import (
	"quantlab/internal/market"
)

// Generator 把完整的 PriceFrame 映射为逐行决策序列。
// 实现必须是配置参数与输入数据的纯函数：第 i 行的决策只能使用
// 时间戳不晚于第 i 行的数据，预热期内必须输出 Hold。
type Generator interface {
	// Name 返回策略种类标识。
	Name() string

	// Warmup 返回产生有效决策前需要的最少行数。
	Warmup() int

	// Generate 返回与输入等长的决策序列。
	// 引用的列不存在时返回 market.MissingColumnError。
	Generate(frame *market.PriceFrame) ([]Decision, error)
}

// applyWarmup 将序列前 warmup 行强制置为 Hold。
func applyWarmup(decisions []Decision, warmup int) []Decision {
	if warmup > len(decisions) {
		warmup = len(decisions)
	}
	for i := 0; i < warmup; i++ {
		decisions[i] = Hold
	}
	return decisions
}
