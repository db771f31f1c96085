package dataload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"quantlab/internal/market"
)

// 依次尝试的时间戳格式。
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSV 从本地 CSV 文件载入行情。
// 首行必须为表头，且至少包含 timestamp/open/high/low/close/volume 列，
// 列顺序不限，多余列被忽略。
func LoadCSV(path, symbol string) (*market.PriceFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 CSV 文件失败: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("CSV 缺少必需列 %q", required)
		}
	}

	var bars []market.Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", line+1, err)
		}
		line++

		ts, err := parseTimestamp(record[index["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("CSV 第 %d 行: %w", line, err)
		}

		bar := market.Bar{Timestamp: ts}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		}
		for _, field := range fields {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[index[field.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("CSV 第 %d 行 %s 列无法解析: %w", line, field.name, err)
			}
			*field.dst = value
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("CSV 文件 %q 不含任何数据行", path)
	}

	return market.NewFrame(symbol, bars)
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	// 纯数字按 Unix 毫秒或秒处理。
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms > 1e12 {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Unix(ms, 0).UTC(), nil
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法识别的时间戳 %q", raw)
}
