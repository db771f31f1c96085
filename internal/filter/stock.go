package filter

import (
	"math"

	"quantlab/internal/market"
)

// StockFilterConfig 配置标的层面的筛选阈值。
type StockFilterConfig struct {
	MinPrice       float64  `mapstructure:"min_price"`
	MaxPrice       float64  `mapstructure:"max_price"`
	MinVolume      float64  `mapstructure:"min_volume"`
	MaxVolatility  float64  `mapstructure:"max_volatility"`
	IncludeSymbols []string `mapstructure:"include_symbols"`
	ExcludeSymbols []string `mapstructure:"exclude_symbols"`
}

// StockFilter 按价格、成交量、波动率及黑白名单筛选。
// 波动率以 atr_14 列为代理，列不存在且未设阈值时不参与判断。
type StockFilter struct {
	cfg     StockFilterConfig
	include map[string]struct{}
	exclude map[string]struct{}
}

// NewStockFilter 创建标的过滤器。
func NewStockFilter(cfg StockFilterConfig) *StockFilter {
	f := &StockFilter{cfg: cfg}
	if len(cfg.IncludeSymbols) > 0 {
		f.include = make(map[string]struct{}, len(cfg.IncludeSymbols))
		for _, sym := range cfg.IncludeSymbols {
			f.include[sym] = struct{}{}
		}
	}
	if len(cfg.ExcludeSymbols) > 0 {
		f.exclude = make(map[string]struct{}, len(cfg.ExcludeSymbols))
		for _, sym := range cfg.ExcludeSymbols {
			f.exclude[sym] = struct{}{}
		}
	}
	return f
}

func (f *StockFilter) Apply(frame *market.PriceFrame) ([]bool, error) {
	mask := allTrue(frame.Len())

	// 名单判断作用于整个标的。
	if _, excluded := f.exclude[frame.Symbol]; excluded {
		return make([]bool, frame.Len()), nil
	}
	if f.include != nil {
		if _, included := f.include[frame.Symbol]; !included {
			return make([]bool, frame.Len()), nil
		}
	}

	var atr []float64
	if f.cfg.MaxVolatility > 0 {
		values, err := frame.Column("atr_14")
		if err != nil {
			return nil, err
		}
		atr = values
	}

	for i := range mask {
		if f.cfg.MinPrice > 0 && frame.Close[i] < f.cfg.MinPrice {
			mask[i] = false
			continue
		}
		if f.cfg.MaxPrice > 0 && frame.Close[i] > f.cfg.MaxPrice {
			mask[i] = false
			continue
		}
		if f.cfg.MinVolume > 0 && frame.Volume[i] < f.cfg.MinVolume {
			mask[i] = false
			continue
		}
		if atr != nil && !math.IsNaN(atr[i]) && atr[i] > f.cfg.MaxVolatility {
			mask[i] = false
		}
	}

	return mask, nil
}
