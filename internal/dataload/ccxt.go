// Package dataload 负责从交易所或本地 CSV 载入行情并构造 PriceFrame。
package dataload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"quantlab/internal/config"
	"quantlab/internal/market"
)

// Loader 封装 ccxt 行情客户端并实现重试机制。
type Loader struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewLoader 构造行情加载器。当前仅支持 binance 现货行情。
func NewLoader(cfg config.ExchangeConfig, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name != "binance" {
		return nil, fmt.Errorf("dataload: 暂不支持交易所 %q", cfg.Name)
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Loader{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// FetchFrame 拉取 K 线并构造 PriceFrame。
func (l *Loader) FetchFrame(ctx context.Context, symbol string) (*market.PriceFrame, error) {
	limit := int64(l.cfg.Limit)
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := l.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", l.cfg.Timeframe), func() error {
		if err := l.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := l.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(l.cfg.Timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(raw))
	for _, item := range raw {
		bars = append(bars, market.Bar{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return market.NewFrame(symbol, bars)
}

func (l *Loader) ensureMarketsLoaded(ctx context.Context) error {
	if l.marketsLoaded {
		return nil
	}

	l.marketsMu.Lock()
	defer l.marketsMu.Unlock()

	if l.marketsLoaded {
		return nil
	}

	loadErr := l.callWithRetry(ctx, "load_markets", func() error {
		_, err := l.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	l.marketsLoaded = true
	l.logger.Info("已完成市场元数据加载", zap.String("exchange", l.cfg.Name))
	return nil
}

func (l *Loader) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := l.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := l.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				l.logger.Info("行情拉取重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if !isRetryable(err) || attempt >= l.cfg.Retry.MaxAttempts {
			l.logger.Error("行情拉取失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		l.logger.Warn("行情拉取失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
