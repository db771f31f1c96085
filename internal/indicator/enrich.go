package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"quantlab/internal/market"
)

// 策略依赖的标准指标列名。
const (
	ColSMA20      = "sma_20"
	ColSMA50      = "sma_50"
	ColEMA20      = "ema_20"
	ColRSI14      = "rsi_14"
	ColBBUpper20  = "bb_upper_20"
	ColBBMiddle20 = "bb_middle_20"
	ColBBLower20  = "bb_lower_20"
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColMACDHist   = "macd_hist"
	ColATR14      = "atr_14"
)

// Enrich 基于收盘价计算常用技术指标并写入指标列。
// 预热期内的值为 NaN，策略据此保持观望。
func Enrich(frame *market.PriceFrame) error {
	if frame == nil || frame.Len() == 0 {
		return fmt.Errorf("indicator: 输入数据为空")
	}

	closePrices := frame.Close
	highs := frame.High
	lows := frame.Low

	columns := map[string][]float64{
		ColSMA20: zeroToNaN(talib.Sma(closePrices, 20), 19),
		ColSMA50: zeroToNaN(talib.Sma(closePrices, 50), 49),
		ColEMA20: zeroToNaN(talib.Ema(closePrices, 20), 19),
		ColRSI14: zeroToNaN(talib.Rsi(closePrices, 14), 14),
	}

	bbUpper, bbMiddle, bbLower := talib.BBands(closePrices, 20, 2, 2, talib.SMA)
	columns[ColBBUpper20] = zeroToNaN(bbUpper, 19)
	columns[ColBBMiddle20] = zeroToNaN(bbMiddle, 19)
	columns[ColBBLower20] = zeroToNaN(bbLower, 19)

	macd, macdSignal, macdHist := talib.Macd(closePrices, 12, 26, 9)
	columns[ColMACD] = zeroToNaN(macd, 33)
	columns[ColMACDSignal] = zeroToNaN(macdSignal, 33)
	columns[ColMACDHist] = zeroToNaN(macdHist, 33)

	columns[ColATR14] = zeroToNaN(talib.Atr(highs, lows, closePrices, 14), 14)

	for name, values := range columns {
		if err := frame.SetColumn(name, values); err != nil {
			return err
		}
	}

	return nil
}

// zeroToNaN 将 talib 预热期输出的占位 0 值替换为 NaN，避免被误当作真实指标。
func zeroToNaN(values []float64, warmup int) []float64 {
	if warmup > len(values) {
		warmup = len(values)
	}
	for i := 0; i < warmup; i++ {
		values[i] = math.NaN()
	}
	return values
}
