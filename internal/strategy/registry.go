package strategy

import (
	"fmt"
	"sort"

	mapstructure "github.com/go-viper/mapstructure/v2"
)

// Builder 根据参数映射构造策略实例，参数在此一次性解码并校验。
type Builder func(params map[string]interface{}) (Generator, error)

// Registry 维护策略种类到构造函数的显式映射。
type Registry struct {
	builders map[string]Builder
}

// NewRegistry 创建仅含内置策略的注册表。
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]Builder)}

	r.Register("sma_crossover", func(params map[string]interface{}) (Generator, error) {
		var p SMACrossoverParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewSMACrossover(p)
	})
	r.Register("rsi_reversion", func(params map[string]interface{}) (Generator, error) {
		var p RSIReversionParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewRSIReversion(p)
	})
	r.Register("macd_cross", func(params map[string]interface{}) (Generator, error) {
		var p MACDCrossParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewMACDCross(p)
	})
	r.Register("bollinger_bounce", func(params map[string]interface{}) (Generator, error) {
		var p BollingerBounceParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewBollingerBounce(p)
	})
	r.Register("sentiment_threshold", func(params map[string]interface{}) (Generator, error) {
		var p SentimentThresholdParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewSentimentThreshold(p)
	})
	r.Register("politician_following", func(params map[string]interface{}) (Generator, error) {
		var p PoliticianFollowingParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewPoliticianFollowing(p)
	})

	return r
}

// Register 注册一个策略种类。
func (r *Registry) Register(kind string, builder Builder) {
	r.builders[kind] = builder
}

// New 按种类名构造策略实例。
func (r *Registry) New(kind string, params map[string]interface{}) (Generator, error) {
	builder, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("strategy: 未知策略种类 %q", kind)
	}
	return builder(params)
}

// Kinds 返回全部已注册的策略种类，按字典序排列。
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.builders))
	for kind := range r.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// decodeParams 将自由形式的参数映射解码为带标签的参数结构。
// 未知字段视为配置错误，避免拼写错误被悄悄忽略。
func decodeParams(params map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "mapstructure",
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return fmt.Errorf("strategy: 创建参数解码器失败: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("strategy: 解析策略参数失败: %w", err)
	}
	return nil
}
