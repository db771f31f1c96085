// Package portfolio 实现事件驱动的账户台账：现金、持仓、成交记录与净值曲线。
package portfolio

import (
	"math"
	"time"

	"quantlab/internal/market"
	"quantlab/internal/strategy"
)

// Side 表示成交方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position 表示某一标的的当前持仓，数量为正表示多头、为负表示空头。
type Position struct {
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"`
	EntryTime time.Time `json:"entry_time"`
}

// MarketValue 返回按给定价格计的市值。
func (p *Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// UnrealizedPnl 返回按给定价格计的浮动盈亏。
func (p *Position) UnrealizedPnl(price float64) float64 {
	return (price - p.AvgPrice) * p.Quantity
}

// Trade 是执行时刻生成的不可变成交记录，价格为滑点调整后的成交价。
type Trade struct {
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	Commission  float64   `json:"commission"`
	Closing     bool      `json:"closing"`
	RealizedPnl float64   `json:"realized_pnl"`
}

// EquityPoint 是净值曲线上的一个点。
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Portfolio 按时间步执行决策并维护账户状态。
// 同一实例只服务一次回测，运行之间互不共享。
type Portfolio struct {
	cfg Config

	cash      float64
	positions map[string]*Position
	trades    []Trade
	equity    []EquityPoint

	dropped int
	stopped int
}

// New 根据配置创建账户。
func New(cfg Config) *Portfolio {
	cfg = cfg.normalize()
	return &Portfolio{
		cfg:       cfg,
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
	}
}

// Step 在一个时间步内执行融合决策并追加净值点。
// 现金不足属于正常市场状况，决策被裁剪或丢弃而非报错；
// 仅在价格非法时返回 DataIntegrityError。
func (p *Portfolio) Step(ts time.Time, symbol string, decision strategy.Decision, closePrice, relVolatility float64) error {
	if closePrice < 0 || math.IsNaN(closePrice) || math.IsInf(closePrice, 0) {
		return &market.DataIntegrityError{Symbol: symbol, Timestamp: ts, Value: closePrice}
	}

	p.applyStopLoss(ts, symbol, closePrice, relVolatility)

	pos := p.positions[symbol]
	switch decision {
	case strategy.Buy:
		switch {
		case pos == nil:
			p.open(ts, symbol, closePrice, relVolatility, false)
		case pos.Quantity < 0:
			p.close(ts, symbol, closePrice, relVolatility)
		case p.cfg.AllowPyramiding:
			p.open(ts, symbol, closePrice, relVolatility, true)
		}
		// 已持多头且未启用加仓时为空操作。
	case strategy.Sell:
		switch {
		case pos != nil && pos.Quantity > 0:
			p.close(ts, symbol, closePrice, relVolatility)
		case pos == nil && p.cfg.AllowShort:
			p.openShort(ts, symbol, closePrice, relVolatility)
		}
	}

	p.equity = append(p.equity, EquityPoint{Timestamp: ts, Equity: p.totalEquity(closePrice, symbol)})
	return nil
}

// applyStopLoss 在处理决策前检查止损线，触发时以当前收盘价平仓。
func (p *Portfolio) applyStopLoss(ts time.Time, symbol string, closePrice, relVolatility float64) {
	if p.cfg.StopLoss <= 0 {
		return
	}
	pos := p.positions[symbol]
	if pos == nil {
		return
	}

	triggered := false
	if pos.Quantity > 0 && closePrice <= pos.AvgPrice*(1-p.cfg.StopLoss) {
		triggered = true
	}
	if pos.Quantity < 0 && closePrice >= pos.AvgPrice*(1+p.cfg.StopLoss) {
		triggered = true
	}
	if triggered {
		p.close(ts, symbol, closePrice, relVolatility)
		p.stopped++
	}
}

// open 开多或加仓。先按滑点调整成交价，再以含佣金成本对数量裁剪，
// 裁剪后为零的决策静默丢弃。
func (p *Portfolio) open(ts time.Time, symbol string, closePrice, relVolatility float64, pyramiding bool) {
	execPrice := closePrice * (1 + p.slippage(relVolatility))
	if execPrice <= 0 {
		p.dropped++
		return
	}

	target := p.targetValue(closePrice, symbol)
	quantity := target / execPrice

	// 数量上限：含佣金的总成本不得超过可用现金。
	affordable := p.cash / (execPrice * (1 + p.cfg.CommissionRate))
	if quantity > affordable {
		quantity = affordable
	}
	if quantity <= 0 {
		p.dropped++
		return
	}

	cost := quantity * execPrice
	commission := cost * p.cfg.CommissionRate
	p.cash -= cost + commission

	if pos := p.positions[symbol]; pos != nil && pyramiding {
		totalQty := pos.Quantity + quantity
		pos.AvgPrice = (pos.AvgPrice*pos.Quantity + cost) / totalQty
		pos.Quantity = totalQty
	} else {
		p.positions[symbol] = &Position{
			Symbol:    symbol,
			Quantity:  quantity,
			AvgPrice:  execPrice,
			EntryTime: ts,
		}
	}

	p.trades = append(p.trades, Trade{
		Symbol:     symbol,
		Side:       SideBuy,
		Timestamp:  ts,
		Price:      execPrice,
		Quantity:   quantity,
		Commission: commission,
	})
}

// openShort 开空。开仓即入账卖出净收入，回补时扣减买回成本。
func (p *Portfolio) openShort(ts time.Time, symbol string, closePrice, relVolatility float64) {
	execPrice := closePrice * (1 - p.slippage(relVolatility))
	if execPrice <= 0 {
		p.dropped++
		return
	}

	target := p.targetValue(closePrice, symbol)
	quantity := target / execPrice
	if quantity <= 0 {
		p.dropped++
		return
	}

	proceeds := quantity * execPrice
	commission := proceeds * p.cfg.CommissionRate
	p.cash += proceeds - commission

	p.positions[symbol] = &Position{
		Symbol:    symbol,
		Quantity:  -quantity,
		AvgPrice:  execPrice,
		EntryTime: ts,
	}

	p.trades = append(p.trades, Trade{
		Symbol:     symbol,
		Side:       SideSell,
		Timestamp:  ts,
		Price:      execPrice,
		Quantity:   quantity,
		Commission: commission,
	})
}

// close 平掉当前持仓并确认已实现盈亏。
// 空头回补受可用现金约束：买不回的部分保留仓位并计入丢弃计数。
func (p *Portfolio) close(ts time.Time, symbol string, closePrice, relVolatility float64) {
	pos := p.positions[symbol]
	if pos == nil {
		return
	}

	if pos.Quantity > 0 {
		execPrice := closePrice * (1 - p.slippage(relVolatility))
		proceeds := pos.Quantity * execPrice
		commission := proceeds * p.cfg.CommissionRate
		realized := (execPrice - pos.AvgPrice) * pos.Quantity

		p.cash += proceeds - commission
		delete(p.positions, symbol)

		p.trades = append(p.trades, Trade{
			Symbol:      symbol,
			Side:        SideSell,
			Timestamp:   ts,
			Price:       execPrice,
			Quantity:    pos.Quantity,
			Commission:  commission,
			Closing:     true,
			RealizedPnl: realized - commission,
		})
		return
	}

	// 空头回补。
	execPrice := closePrice * (1 + p.slippage(relVolatility))
	quantity := -pos.Quantity
	affordable := p.cash / (execPrice * (1 + p.cfg.CommissionRate))
	if quantity > affordable {
		quantity = affordable
	}
	if quantity <= 0 {
		p.dropped++
		return
	}

	cost := quantity * execPrice
	commission := cost * p.cfg.CommissionRate
	realized := (pos.AvgPrice - execPrice) * quantity

	p.cash -= cost + commission
	pos.Quantity += quantity
	if pos.Quantity >= 0 {
		delete(p.positions, symbol)
	} else {
		p.dropped++
	}

	p.trades = append(p.trades, Trade{
		Symbol:      symbol,
		Side:        SideBuy,
		Timestamp:   ts,
		Price:       execPrice,
		Quantity:    quantity,
		Commission:  commission,
		Closing:     true,
		RealizedPnl: realized - commission,
	})
}

// slippage 按配置模型返回相对滑点。
func (p *Portfolio) slippage(relVolatility float64) float64 {
	switch p.cfg.Slippage.Model {
	case SlippageFixedBps:
		return p.cfg.Slippage.Bps / 10000
	case SlippageVolProportional:
		if math.IsNaN(relVolatility) || relVolatility < 0 {
			return 0
		}
		return p.cfg.Slippage.VolCoeff * relVolatility
	}
	return 0
}

// targetValue 按仓位管理方式计算目标持仓金额，并受单仓上限约束。
func (p *Portfolio) targetValue(closePrice float64, symbol string) float64 {
	equity := p.totalEquity(closePrice, symbol)

	var target float64
	switch p.cfg.Sizing.Method {
	case SizingFixedFraction:
		target = equity * p.cfg.Sizing.Fraction
	case SizingEqualWeight:
		target = equity / float64(p.cfg.Sizing.MaxPositions)
	case SizingFixedNotional:
		target = p.cfg.Sizing.Notional
	}

	if p.cfg.MaxPositionSize > 0 {
		if limit := equity * p.cfg.MaxPositionSize; target > limit {
			target = limit
		}
	}
	return target
}

// totalEquity 返回现金加持仓市值。
// 当前标的持仓按最新收盘价计，其余持仓按各自入场价代替（单标的回测下不存在其余持仓）。
func (p *Portfolio) totalEquity(closePrice float64, symbol string) float64 {
	equity := p.cash
	for sym, pos := range p.positions {
		price := pos.AvgPrice
		if sym == symbol {
			price = closePrice
		}
		equity += pos.MarketValue(price)
	}
	return equity
}

// Cash 返回可用现金。
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// Position 返回某标的的持仓，不存在时返回 nil。
func (p *Portfolio) Position(symbol string) *Position {
	return p.positions[symbol]
}

// Trades 返回成交记录副本。
func (p *Portfolio) Trades() []Trade {
	return append([]Trade(nil), p.trades...)
}

// EquityCurve 返回净值曲线副本。
func (p *Portfolio) EquityCurve() []EquityPoint {
	return append([]EquityPoint(nil), p.equity...)
}

// DroppedDecisions 返回因资金不足等原因被丢弃的决策数。
func (p *Portfolio) DroppedDecisions() int {
	return p.dropped
}

// StopLossExits 返回止损触发次数。
func (p *Portfolio) StopLossExits() int {
	return p.stopped
}
