package filter

import (
	"fmt"
	"time"

	"quantlab/internal/market"
)

// TimeFilterConfig 配置时间维度的筛选。
// 日期使用 YYYY-MM-DD，时刻使用 HH:MM（针对日内数据）。
type TimeFilterConfig struct {
	ExcludeDates []string `mapstructure:"exclude_dates"`
	IncludeDates []string `mapstructure:"include_dates"`
	Holidays     []string `mapstructure:"holidays"`
	StartTime    string   `mapstructure:"start_time"`
	EndTime      string   `mapstructure:"end_time"`
	MinHistory   int      `mapstructure:"min_history"`
}

// TimeFilter 按日期名单、交易时段与最小历史长度产生掩码。
// 最小历史要求使序列前 MinHistory 行不可交易，不会读取未来数据。
type TimeFilter struct {
	cfg          TimeFilterConfig
	excludeDates map[string]struct{}
	includeDates map[string]struct{}
	startMinute  int
	endMinute    int
}

// NewTimeFilter 创建时间过滤器并解析全部日期与时刻。
func NewTimeFilter(cfg TimeFilterConfig) (*TimeFilter, error) {
	f := &TimeFilter{cfg: cfg, startMinute: -1, endMinute: -1}

	parseDates := func(dates []string) (map[string]struct{}, error) {
		if len(dates) == 0 {
			return nil, nil
		}
		set := make(map[string]struct{}, len(dates))
		for _, d := range dates {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return nil, fmt.Errorf("filter: 非法日期 %q: %w", d, err)
			}
			set[d] = struct{}{}
		}
		return set, nil
	}

	exclude, err := parseDates(append(append([]string{}, cfg.ExcludeDates...), cfg.Holidays...))
	if err != nil {
		return nil, err
	}
	f.excludeDates = exclude

	include, err := parseDates(cfg.IncludeDates)
	if err != nil {
		return nil, err
	}
	f.includeDates = include

	if cfg.StartTime != "" {
		minute, err := parseMinute(cfg.StartTime)
		if err != nil {
			return nil, err
		}
		f.startMinute = minute
	}
	if cfg.EndTime != "" {
		minute, err := parseMinute(cfg.EndTime)
		if err != nil {
			return nil, err
		}
		f.endMinute = minute
	}
	if cfg.MinHistory < 0 {
		return nil, fmt.Errorf("filter: min_history 不能为负，当前为 %d", cfg.MinHistory)
	}

	return f, nil
}

func parseMinute(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("filter: 非法时刻 %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

func (f *TimeFilter) Apply(frame *market.PriceFrame) ([]bool, error) {
	mask := allTrue(frame.Len())

	for i, ts := range frame.Timestamps {
		if f.cfg.MinHistory > 0 && i < f.cfg.MinHistory {
			mask[i] = false
			continue
		}

		day := ts.Format("2006-01-02")
		if _, excluded := f.excludeDates[day]; excluded {
			mask[i] = false
			continue
		}
		if f.includeDates != nil {
			if _, included := f.includeDates[day]; !included {
				mask[i] = false
				continue
			}
		}

		minute := ts.Hour()*60 + ts.Minute()
		if f.startMinute >= 0 && minute < f.startMinute {
			mask[i] = false
			continue
		}
		if f.endMinute >= 0 && minute > f.endMinute {
			mask[i] = false
		}
	}

	return mask, nil
}
