package market

import (
	"fmt"
	"time"
)

// MissingColumnError 表示策略或过滤器引用了不存在的列，属于配置期错误。
type MissingColumnError struct {
	Column string
	Symbol string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("market: 标的 %s 缺少列 %q", e.Symbol, e.Column)
}

// DataIntegrityError 表示价格数据损坏（负值或非有限值），回测中途遇到时立即终止。
type DataIntegrityError struct {
	Symbol    string
	Timestamp time.Time
	Value     float64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("market: 标的 %s 在 %s 处价格非法: %v",
		e.Symbol, e.Timestamp.Format(time.RFC3339), e.Value)
}
