package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceFrame 以列式结构保存单一标的的K线及指标序列。
// 时间戳严格递增且唯一，引擎只读。
type PriceFrame struct {
	Symbol     string
	Timestamps []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64

	columns map[string][]float64
}

// Bar 表示一根K线。
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// NewFrame 从K线序列构建 PriceFrame，并校验时间戳严格递增。
func NewFrame(symbol string, bars []Bar) (*PriceFrame, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("market: 标的 %s 的K线序列为空", symbol)
	}

	frame := &PriceFrame{
		Symbol:     symbol,
		Timestamps: make([]time.Time, len(bars)),
		Open:       make([]float64, len(bars)),
		High:       make([]float64, len(bars)),
		Low:        make([]float64, len(bars)),
		Close:      make([]float64, len(bars)),
		Volume:     make([]float64, len(bars)),
		columns:    make(map[string][]float64),
	}

	for i, bar := range bars {
		if i > 0 && !bar.Timestamp.After(bars[i-1].Timestamp) {
			return nil, fmt.Errorf("market: 标的 %s 在位置 %d 处时间戳未严格递增", symbol, i)
		}
		frame.Timestamps[i] = bar.Timestamp.UTC()
		frame.Open[i] = bar.Open
		frame.High[i] = bar.High
		frame.Low[i] = bar.Low
		frame.Close[i] = bar.Close
		frame.Volume[i] = bar.Volume
	}

	return frame, nil
}

// Len 返回行数。
func (f *PriceFrame) Len() int {
	return len(f.Timestamps)
}

// Column 按名称返回指标列，列不存在时返回 MissingColumnError。
func (f *PriceFrame) Column(name string) ([]float64, error) {
	switch name {
	case "open":
		return f.Open, nil
	case "high":
		return f.High, nil
	case "low":
		return f.Low, nil
	case "close":
		return f.Close, nil
	case "volume":
		return f.Volume, nil
	}
	if values, ok := f.columns[name]; ok {
		return values, nil
	}
	return nil, &MissingColumnError{Column: name, Symbol: f.Symbol}
}

// HasColumn 判断指标列是否存在。
func (f *PriceFrame) HasColumn(name string) bool {
	_, err := f.Column(name)
	return err == nil
}

// SetColumn 写入或覆盖一个指标列，长度必须与行数一致。
func (f *PriceFrame) SetColumn(name string, values []float64) error {
	if len(values) != f.Len() {
		return fmt.Errorf("market: 列 %q 长度 %d 与行数 %d 不一致", name, len(values), f.Len())
	}
	if f.columns == nil {
		f.columns = make(map[string][]float64)
	}
	f.columns[name] = values
	return nil
}

// ColumnNames 返回全部指标列名，按字典序排列。
func (f *PriceFrame) ColumnNames() []string {
	names := make([]string, 0, len(f.columns))
	for name := range f.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Truncate 返回仅包含前 n 行的视图，底层切片共享存储。
// 用于验证信号生成不依赖未来数据。
func (f *PriceFrame) Truncate(n int) *PriceFrame {
	if n >= f.Len() {
		return f
	}
	if n < 0 {
		n = 0
	}

	truncated := &PriceFrame{
		Symbol:     f.Symbol,
		Timestamps: f.Timestamps[:n],
		Open:       f.Open[:n],
		High:       f.High[:n],
		Low:        f.Low[:n],
		Close:      f.Close[:n],
		Volume:     f.Volume[:n],
		columns:    make(map[string][]float64, len(f.columns)),
	}
	for name, values := range f.columns {
		truncated.columns[name] = values[:n]
	}
	return truncated
}

// Slice 返回时间区间 [start, end] 内的行；零值时间表示不限制。
func (f *PriceFrame) Slice(start, end time.Time) *PriceFrame {
	lo := 0
	hi := f.Len()
	if !start.IsZero() {
		lo = sort.Search(f.Len(), func(i int) bool {
			return !f.Timestamps[i].Before(start)
		})
	}
	if !end.IsZero() {
		hi = sort.Search(f.Len(), func(i int) bool {
			return f.Timestamps[i].After(end)
		})
	}
	if lo > hi {
		lo = hi
	}

	sliced := &PriceFrame{
		Symbol:     f.Symbol,
		Timestamps: f.Timestamps[lo:hi],
		Open:       f.Open[lo:hi],
		High:       f.High[lo:hi],
		Low:        f.Low[lo:hi],
		Close:      f.Close[lo:hi],
		Volume:     f.Volume[lo:hi],
		columns:    make(map[string][]float64, len(f.columns)),
	}
	for name, values := range f.columns {
		sliced.columns[name] = values[lo:hi]
	}
	return sliced
}

// CheckPrices 校验收盘价序列，出现负值或非有限值时返回 DataIntegrityError。
func (f *PriceFrame) CheckPrices() error {
	for i, price := range f.Close {
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return &DataIntegrityError{
				Symbol:    f.Symbol,
				Timestamp: f.Timestamps[i],
				Value:     price,
			}
		}
	}
	return nil
}
