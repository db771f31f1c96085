package strategy

import "fmt"

// Decision 表示单个时间步的方向判断。
type Decision int8

const (
	Sell Decision = -1
	Hold Decision = 0
	Buy  Decision = 1
)

// Valid 判断取值是否位于 {-1, 0, 1}。
func (d Decision) Valid() bool {
	return d == Sell || d == Hold || d == Buy
}

func (d Decision) String() string {
	switch d {
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	}
	return fmt.Sprintf("Decision(%d)", int8(d))
}
