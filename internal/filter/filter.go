// Package filter 提供作用于 PriceFrame 的纯谓词掩码。
// 掩码与行一一对应，false 表示该行不可交易；过滤器只否决信号，从不产生信号。
package filter

import (
	"fmt"

	"quantlab/internal/market"
)

// Filter 把 PriceFrame 映射为与行对齐的布尔掩码。
// 实现不得读取被掩码行之后的数据。
type Filter interface {
	Apply(frame *market.PriceFrame) ([]bool, error)
}

// allTrue 返回全 true 掩码。
func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

// Logic 表示组合过滤器的合并方式。
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// CompositeFilter 以 AND/OR 逻辑合并多个子过滤器。
type CompositeFilter struct {
	filters []Filter
	logic   Logic
}

// NewComposite 创建组合过滤器，logic 仅接受 AND 或 OR。
func NewComposite(filters []Filter, logic Logic) (*CompositeFilter, error) {
	if logic != LogicAnd && logic != LogicOr {
		return nil, fmt.Errorf("filter: 组合逻辑必须为 AND 或 OR，当前为 %q", logic)
	}
	return &CompositeFilter{filters: filters, logic: logic}, nil
}

func (f *CompositeFilter) Apply(frame *market.PriceFrame) ([]bool, error) {
	if len(f.filters) == 0 {
		return allTrue(frame.Len()), nil
	}

	combined, err := f.filters[0].Apply(frame)
	if err != nil {
		return nil, err
	}

	for _, sub := range f.filters[1:] {
		mask, err := sub.Apply(frame)
		if err != nil {
			return nil, err
		}
		for i := range combined {
			if f.logic == LogicAnd {
				combined[i] = combined[i] && mask[i]
			} else {
				combined[i] = combined[i] || mask[i]
			}
		}
	}

	return combined, nil
}
