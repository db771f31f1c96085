package strategy

import (
	"fmt"

	"quantlab/internal/market"
)

// SMACrossoverParams 配置均线交叉策略。
type SMACrossoverParams struct {
	Fast int `mapstructure:"fast"`
	Slow int `mapstructure:"slow"`
}

// SMACrossover 在快线高于慢线时做多、低于时做空。
type SMACrossover struct {
	params SMACrossoverParams
}

// NewSMACrossover 创建均线交叉策略。
func NewSMACrossover(params SMACrossoverParams) (*SMACrossover, error) {
	if params.Fast <= 0 {
		params.Fast = 20
	}
	if params.Slow <= 0 {
		params.Slow = 50
	}
	if params.Fast >= params.Slow {
		return nil, fmt.Errorf("strategy: sma_crossover 要求 fast(%d) < slow(%d)", params.Fast, params.Slow)
	}
	return &SMACrossover{params: params}, nil
}

func (s *SMACrossover) Name() string { return "sma_crossover" }

func (s *SMACrossover) Warmup() int { return s.params.Slow }

func (s *SMACrossover) Generate(frame *market.PriceFrame) ([]Decision, error) {
	fast, err := frame.Column(fmt.Sprintf("sma_%d", s.params.Fast))
	if err != nil {
		return nil, err
	}
	slow, err := frame.Column(fmt.Sprintf("sma_%d", s.params.Slow))
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := range decisions {
		// NaN 比较恒为假，预热期自然输出 Hold。
		switch {
		case fast[i] > slow[i]:
			decisions[i] = Buy
		case fast[i] < slow[i]:
			decisions[i] = Sell
		}
	}
	return applyWarmup(decisions, s.Warmup()), nil
}

// RSIReversionParams 配置 RSI 反转策略。
type RSIReversionParams struct {
	Column string  `mapstructure:"column"`
	Low    float64 `mapstructure:"low"`
	High   float64 `mapstructure:"high"`
}

// RSIReversion 在超卖区买入、超买区卖出。
type RSIReversion struct {
	params RSIReversionParams
}

// NewRSIReversion 创建 RSI 反转策略。
func NewRSIReversion(params RSIReversionParams) (*RSIReversion, error) {
	if params.Column == "" {
		params.Column = "rsi_14"
	}
	if params.Low == 0 {
		params.Low = 30
	}
	if params.High == 0 {
		params.High = 70
	}
	if params.Low >= params.High {
		return nil, fmt.Errorf("strategy: rsi_reversion 要求 low(%v) < high(%v)", params.Low, params.High)
	}
	return &RSIReversion{params: params}, nil
}

func (s *RSIReversion) Name() string { return "rsi_reversion" }

func (s *RSIReversion) Warmup() int { return 15 }

func (s *RSIReversion) Generate(frame *market.PriceFrame) ([]Decision, error) {
	rsi, err := frame.Column(s.params.Column)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := range decisions {
		switch {
		case rsi[i] < s.params.Low:
			decisions[i] = Buy
		case rsi[i] > s.params.High:
			decisions[i] = Sell
		}
	}
	return applyWarmup(decisions, s.Warmup()), nil
}

// MACDCrossParams 配置 MACD 交叉策略。
type MACDCrossParams struct {
	MACDColumn   string `mapstructure:"macd_column"`
	SignalColumn string `mapstructure:"signal_column"`
}

// MACDCross 仅在 MACD 线穿越信号线的事件行产生决策。
type MACDCross struct {
	params MACDCrossParams
}

// NewMACDCross 创建 MACD 交叉策略。
func NewMACDCross(params MACDCrossParams) (*MACDCross, error) {
	if params.MACDColumn == "" {
		params.MACDColumn = "macd"
	}
	if params.SignalColumn == "" {
		params.SignalColumn = "macd_signal"
	}
	return &MACDCross{params: params}, nil
}

func (s *MACDCross) Name() string { return "macd_cross" }

func (s *MACDCross) Warmup() int { return 35 }

func (s *MACDCross) Generate(frame *market.PriceFrame) ([]Decision, error) {
	macd, err := frame.Column(s.params.MACDColumn)
	if err != nil {
		return nil, err
	}
	signal, err := frame.Column(s.params.SignalColumn)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := 1; i < len(decisions); i++ {
		prevBelow := macd[i-1] <= signal[i-1]
		prevAbove := macd[i-1] >= signal[i-1]
		switch {
		case prevBelow && macd[i] > signal[i]:
			decisions[i] = Buy
		case prevAbove && macd[i] < signal[i]:
			decisions[i] = Sell
		}
	}
	return applyWarmup(decisions, s.Warmup()), nil
}

// BollingerBounceParams 配置布林带回归策略。
type BollingerBounceParams struct {
	Window int `mapstructure:"window"`
}

// BollingerBounce 在价格跌破下轨时买入、突破上轨时卖出。
type BollingerBounce struct {
	params BollingerBounceParams
	lower  string
	upper  string
}

// NewBollingerBounce 创建布林带回归策略。
func NewBollingerBounce(params BollingerBounceParams) (*BollingerBounce, error) {
	if params.Window <= 0 {
		params.Window = 20
	}
	return &BollingerBounce{
		params: params,
		lower:  fmt.Sprintf("bb_lower_%d", params.Window),
		upper:  fmt.Sprintf("bb_upper_%d", params.Window),
	}, nil
}

func (s *BollingerBounce) Name() string { return "bollinger_bounce" }

func (s *BollingerBounce) Warmup() int { return s.params.Window }

func (s *BollingerBounce) Generate(frame *market.PriceFrame) ([]Decision, error) {
	lower, err := frame.Column(s.lower)
	if err != nil {
		return nil, err
	}
	upper, err := frame.Column(s.upper)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := range decisions {
		switch {
		case frame.Close[i] < lower[i]:
			decisions[i] = Buy
		case frame.Close[i] > upper[i]:
			decisions[i] = Sell
		}
	}
	return applyWarmup(decisions, s.Warmup()), nil
}

// SentimentThresholdParams 配置情绪阈值策略。
type SentimentThresholdParams struct {
	Column    string  `mapstructure:"column"`
	Threshold float64 `mapstructure:"threshold"`
}

// SentimentThreshold 将数值化情绪列映射为决策，情绪列由上游打分器填充。
type SentimentThreshold struct {
	params SentimentThresholdParams
}

// NewSentimentThreshold 创建情绪阈值策略。
func NewSentimentThreshold(params SentimentThresholdParams) (*SentimentThreshold, error) {
	if params.Column == "" {
		params.Column = "sentiment"
	}
	if params.Threshold == 0 {
		params.Threshold = 0.3
	}
	if params.Threshold < 0 || params.Threshold > 1 {
		return nil, fmt.Errorf("strategy: sentiment_threshold 的 threshold 必须位于 [0,1]，当前为 %v", params.Threshold)
	}
	return &SentimentThreshold{params: params}, nil
}

func (s *SentimentThreshold) Name() string { return "sentiment_threshold" }

func (s *SentimentThreshold) Warmup() int { return 0 }

func (s *SentimentThreshold) Generate(frame *market.PriceFrame) ([]Decision, error) {
	scores, err := frame.Column(s.params.Column)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := range decisions {
		switch {
		case scores[i] > s.params.Threshold:
			decisions[i] = Buy
		case scores[i] < -s.params.Threshold:
			decisions[i] = Sell
		}
	}
	return decisions, nil
}

// PoliticianFollowingParams 配置政客跟单策略。
type PoliticianFollowingParams struct {
	Column string `mapstructure:"column"`
}

// PoliticianFollowing 跟随上游标注的政客披露信号列，
// 列值为正跟随买入、为负跟随卖出，NaN 表示当期无披露。
type PoliticianFollowing struct {
	params PoliticianFollowingParams
}

// NewPoliticianFollowing 创建政客跟单策略。
func NewPoliticianFollowing(params PoliticianFollowingParams) (*PoliticianFollowing, error) {
	if params.Column == "" {
		params.Column = "politician_signal"
	}
	return &PoliticianFollowing{params: params}, nil
}

func (s *PoliticianFollowing) Name() string { return "politician_following" }

func (s *PoliticianFollowing) Warmup() int { return 0 }

func (s *PoliticianFollowing) Generate(frame *market.PriceFrame) ([]Decision, error) {
	signals, err := frame.Column(s.params.Column)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, frame.Len())
	for i := range decisions {
		switch {
		case signals[i] > 0:
			decisions[i] = Buy
		case signals[i] < 0:
			decisions[i] = Sell
		}
	}
	return decisions, nil
}
