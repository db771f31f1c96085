package filter

import (
	"fmt"

	"quantlab/internal/market"
)

// LiquidityFilterConfig 配置流动性阈值。
type LiquidityFilterConfig struct {
	MinAvgVolume    float64 `mapstructure:"min_avg_volume"`
	VolumeWindow    int     `mapstructure:"volume_window"`
	MinDollarVolume float64 `mapstructure:"min_dollar_volume"`
}

// LiquidityFilter 按滚动平均成交量与美元成交额筛选。
// 滚动窗口只向后看：第 i 行的均量由第 i 行及之前至多 window 行计算。
type LiquidityFilter struct {
	cfg LiquidityFilterConfig
}

// NewLiquidityFilter 创建流动性过滤器。
func NewLiquidityFilter(cfg LiquidityFilterConfig) (*LiquidityFilter, error) {
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = 20
	}
	if cfg.MinAvgVolume < 0 || cfg.MinDollarVolume < 0 {
		return nil, fmt.Errorf("filter: 流动性阈值不能为负")
	}
	return &LiquidityFilter{cfg: cfg}, nil
}

func (f *LiquidityFilter) Apply(frame *market.PriceFrame) ([]bool, error) {
	mask := allTrue(frame.Len())

	var rollingSum float64
	for i := range mask {
		rollingSum += frame.Volume[i]
		window := f.cfg.VolumeWindow
		if i+1 < window {
			window = i + 1
		} else if i >= f.cfg.VolumeWindow {
			rollingSum -= frame.Volume[i-f.cfg.VolumeWindow]
		}
		avgVolume := rollingSum / float64(window)

		if f.cfg.MinAvgVolume > 0 && avgVolume < f.cfg.MinAvgVolume {
			mask[i] = false
			continue
		}
		if f.cfg.MinDollarVolume > 0 && frame.Volume[i]*frame.Close[i] < f.cfg.MinDollarVolume {
			mask[i] = false
		}
	}

	return mask, nil
}
