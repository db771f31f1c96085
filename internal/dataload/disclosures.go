package dataload

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"quantlab/internal/market"
)

// Disclosure 是一条政客持仓披露记录。
type Disclosure struct {
	Politician string `json:"politician"`
	Date       string `json:"date"`
	Side       string `json:"side"`
	Amount     string `json:"amount,omitempty"`
}

// LoadDisclosures 从 JSON 文件载入披露记录。
func LoadDisclosures(path string) ([]Disclosure, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取披露文件失败: %w", err)
	}

	var disclosures []Disclosure
	if err := json.Unmarshal(raw, &disclosures); err != nil {
		return nil, fmt.Errorf("解析披露文件失败: %w", err)
	}
	return disclosures, nil
}

// AnnotateDisclosures 将披露记录映射为信号列写入行情。
// 每条记录落到披露日加 delayDays 之后的首个交易行：买入类写 1，
// 卖出类写 -1，范围之外或方向不明的记录被跳过，其余行为 NaN。
// follow 非空时只跟随名字匹配（大小写不敏感的子串匹配）的政客。
func AnnotateDisclosures(frame *market.PriceFrame, disclosures []Disclosure, column string, delayDays int, follow []string) error {
	if column == "" {
		column = "politician_signal"
	}
	if delayDays < 0 {
		return fmt.Errorf("dataload: 信号延迟天数不能为负，当前为 %d", delayDays)
	}

	values := make([]float64, frame.Len())
	for i := range values {
		values[i] = math.NaN()
	}

	for _, d := range disclosures {
		if len(follow) > 0 && !matchesPolitician(d.Politician, follow) {
			continue
		}

		tradeDate, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return fmt.Errorf("披露日期 %q 格式应为 YYYY-MM-DD: %w", d.Date, err)
		}
		signalDate := tradeDate.AddDate(0, 0, delayDays)

		idx := sort.Search(frame.Len(), func(i int) bool {
			return !frame.Timestamps[i].Before(signalDate)
		})
		if idx >= frame.Len() {
			continue
		}

		side := strings.ToUpper(d.Side)
		switch {
		case strings.Contains(side, "BUY") || strings.Contains(side, "PURCHASE"):
			values[idx] = 1
		case strings.Contains(side, "SELL") || strings.Contains(side, "SALE"):
			values[idx] = -1
		}
	}

	return frame.SetColumn(column, values)
}

func matchesPolitician(name string, follow []string) bool {
	lowered := strings.ToLower(name)
	for _, want := range follow {
		if want != "" && strings.Contains(lowered, strings.ToLower(want)) {
			return true
		}
	}
	return false
}
