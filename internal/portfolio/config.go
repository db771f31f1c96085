package portfolio

// SlippageModel 表示滑点模型。
type SlippageModel string

const (
	SlippageNone            SlippageModel = "none"
	SlippageFixedBps        SlippageModel = "fixed_bps"
	SlippageVolProportional SlippageModel = "vol_proportional"
)

// SizingMethod 表示仓位管理方式。
type SizingMethod string

const (
	SizingFixedFraction SizingMethod = "fixed_fraction"
	SizingEqualWeight   SizingMethod = "equal_weight"
	SizingFixedNotional SizingMethod = "fixed_notional"
)

// SlippageConfig 配置滑点模型参数。
type SlippageConfig struct {
	Model    SlippageModel `mapstructure:"model" json:"model"`
	Bps      float64       `mapstructure:"bps" json:"bps"`
	VolCoeff float64       `mapstructure:"vol_coeff" json:"vol_coeff"`
}

// SizingConfig 配置仓位管理参数。
type SizingConfig struct {
	Method       SizingMethod `mapstructure:"method" json:"method"`
	Fraction     float64      `mapstructure:"fraction" json:"fraction"`
	MaxPositions int          `mapstructure:"max_positions" json:"max_positions"`
	Notional     float64      `mapstructure:"notional" json:"notional"`
}

// Config 定义账户回放参数。
type Config struct {
	InitialCapital  float64        `mapstructure:"initial_capital" json:"initial_capital"`
	CommissionRate  float64        `mapstructure:"commission_rate" json:"commission_rate"`
	Slippage        SlippageConfig `mapstructure:"slippage" json:"slippage"`
	Sizing          SizingConfig   `mapstructure:"sizing" json:"sizing"`
	MaxPositionSize float64        `mapstructure:"max_position_size" json:"max_position_size"`
	AllowShort      bool           `mapstructure:"allow_short" json:"allow_short"`
	AllowPyramiding bool           `mapstructure:"allow_pyramiding" json:"allow_pyramiding"`
	StopLoss        float64        `mapstructure:"stop_loss" json:"stop_loss"`
}

func (c Config) normalize() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 100000
	}
	if c.Slippage.Model == "" {
		c.Slippage.Model = SlippageNone
	}
	if c.Sizing.Method == "" {
		c.Sizing.Method = SizingFixedFraction
	}
	if c.Sizing.Fraction <= 0 || c.Sizing.Fraction > 1 {
		c.Sizing.Fraction = 0.25
	}
	if c.Sizing.MaxPositions <= 0 {
		c.Sizing.MaxPositions = 10
	}
	return c
}
