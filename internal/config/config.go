package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quantakt/backtest/pkg/errors"
)

// Frequency is the capital-growth schedule granularity.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	// FrequencyNever disables scheduled capital injections.
	FrequencyNever Frequency = "never"
)

// AllFrequencies lists the schedule values accepted in config files.
var AllFrequencies = []any{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencyYearly,
	FrequencyNever,
}

// CashPolicy decides what happens when a buy needs more cash than available.
type CashPolicy string

const (
	// CashPolicyShrink clamps the buy quantity to what available cash affords.
	CashPolicyShrink CashPolicy = "shrink"
	// CashPolicyReject fails the whole buy.
	CashPolicyReject CashPolicy = "reject"
)

// PortfolioParams configures the portfolio's cash and capital-growth schedule.
type PortfolioParams struct {
	InitialCash float64 `yaml:"initial_cash" json:"initial_cash" validate:"gt=0" jsonschema:"title=Initial Cash,minimum=0"`
	// CapitalGrowthAmount is injected at every period boundary; when zero,
	// CapitalGrowthPct of current equity is injected instead.
	CapitalGrowthAmount float64   `yaml:"capital_growth_amount" json:"capital_growth_amount" validate:"gte=0"`
	CapitalGrowthPct    float64   `yaml:"capital_growth_pct" json:"capital_growth_pct" validate:"gte=0,lte=1"`
	CapitalGrowthFreq   Frequency `yaml:"capital_growth_freq" json:"capital_growth_freq" validate:"oneof=daily weekly monthly quarterly yearly never"`
}

// PortfolioConstraintParams configures portfolio-level constraints: the
// drawdown circuit breaker, minimum cash reserve, and the rebalance threshold.
type PortfolioConstraintParams struct {
	RebalanceThresholdPct float64 `yaml:"rebalance_threshold_pct" json:"rebalance_threshold_pct" validate:"gte=0,lte=1"`
	MinCashPct            float64 `yaml:"min_cash_pct" json:"min_cash_pct" validate:"gte=0,lte=1"`
	MaxDrawdownPct        float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct" validate:"gte=0,lte=1"`
	// LiquidateOnMaxDrawdown sells every open position the first candle the
	// breaker trips, in addition to suppressing buys.
	LiquidateOnMaxDrawdown bool `yaml:"liquidate_on_max_drawdown" json:"liquidate_on_max_drawdown"`
	// LongOnly prohibits short selling: sells clamp to the held quantity
	// and a sell with nothing held is rejected. When false, sell quantity
	// beyond the held amount opens a short position.
	LongOnly               bool       `yaml:"long_only" json:"long_only"`
	InsufficientCashPolicy CashPolicy `yaml:"insufficient_cash_policy" json:"insufficient_cash_policy" validate:"oneof=shrink reject"`
}

// PositionConstraintParams configures per-position sizing and exit rules.
type PositionConstraintParams struct {
	MaxPositionSizePct             float64 `yaml:"max_position_size_pct" json:"max_position_size_pct" validate:"gt=0,lte=1"`
	MinTradeSizePct                float64 `yaml:"min_trade_size_pct" json:"min_trade_size_pct" validate:"gte=0,lte=1"`
	MinHoldingCandle               int     `yaml:"min_holding_candle" json:"min_holding_candle" validate:"gte=0"`
	TrailingStopLossPct            float64 `yaml:"trailing_stop_loss_pct" json:"trailing_stop_loss_pct" validate:"gt=0,lte=1"`
	TrailingStopUpdateThresholdPct float64 `yaml:"trailing_stop_update_threshold_pct" json:"trailing_stop_update_threshold_pct" validate:"gte=0,lte=1"`
	TakeProfitPct                  float64 `yaml:"take_profit_pct" json:"take_profit_pct" validate:"gte=0"`
	RiskPerTradePct                float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct" validate:"gt=0,lte=1"`
	SellFraction                   float64 `yaml:"sell_fraction" json:"sell_fraction" validate:"gt=0,lte=1"`
	// CoolDownPeriod is how many candles a losing exit blocks re-entry for.
	CoolDownPeriod int `yaml:"cool_down_period" json:"cool_down_period" validate:"gte=0"`
}

// DefaultPositionConstraints returns the standard per-position parameters.
func DefaultPositionConstraints() PositionConstraintParams {
	return PositionConstraintParams{
		MaxPositionSizePct:             1.0,
		MinTradeSizePct:                0.05,
		MinHoldingCandle:               15,
		TrailingStopLossPct:            0.05,
		TrailingStopUpdateThresholdPct: 0.02,
		TakeProfitPct:                  0.2,
		RiskPerTradePct:                0.05,
		SellFraction:                   0.5,
		CoolDownPeriod:                 0,
	}
}

// DefaultPortfolioConstraints returns the standard portfolio-level parameters.
func DefaultPortfolioConstraints() PortfolioConstraintParams {
	return PortfolioConstraintParams{
		RebalanceThresholdPct:  0.05,
		MinCashPct:             0.1,
		MaxDrawdownPct:         0.2,
		LiquidateOnMaxDrawdown: true,
		LongOnly:               true,
		InsufficientCashPolicy: CashPolicyShrink,
	}
}

// StrategyConfig declares one strategy instance. Type selects the variant;
// the remaining fields are its parameters, each variant reading the ones it
// needs and falling back to its defaults for fields left zero.
type StrategyConfig struct {
	Type string `yaml:"type" json:"type" validate:"required"`

	EmaFast   int `yaml:"ema_fast,omitempty" json:"ema_fast,omitempty" validate:"gte=0"`
	EmaMedium int `yaml:"ema_medium,omitempty" json:"ema_medium,omitempty" validate:"gte=0"`
	EmaSlow   int `yaml:"ema_slow,omitempty" json:"ema_slow,omitempty" validate:"gte=0"`

	RsiPeriod     int     `yaml:"rsi_period,omitempty" json:"rsi_period,omitempty" validate:"gte=0"`
	RsiOverbought float64 `yaml:"rsi_overbought,omitempty" json:"rsi_overbought,omitempty" validate:"gte=0,lte=100"`
	RsiOversold   float64 `yaml:"rsi_oversold,omitempty" json:"rsi_oversold,omitempty" validate:"gte=0,lte=100"`

	MacdFast   int `yaml:"macd_fast,omitempty" json:"macd_fast,omitempty" validate:"gte=0"`
	MacdSlow   int `yaml:"macd_slow,omitempty" json:"macd_slow,omitempty" validate:"gte=0"`
	MacdSignal int `yaml:"macd_signal,omitempty" json:"macd_signal,omitempty" validate:"gte=0"`

	BbPeriod int     `yaml:"bb_period,omitempty" json:"bb_period,omitempty" validate:"gte=0"`
	BbStdDev float64 `yaml:"bb_std_dev,omitempty" json:"bb_std_dev,omitempty" validate:"gte=0"`

	StochPeriod   int     `yaml:"stoch_period,omitempty" json:"stoch_period,omitempty" validate:"gte=0"`
	StochOversold float64 `yaml:"stoch_oversold,omitempty" json:"stoch_oversold,omitempty" validate:"gte=0,lte=100"`

	ResistanceThreshold float64 `yaml:"resistance_threshold,omitempty" json:"resistance_threshold,omitempty" validate:"gte=0"`
	SupportThreshold    float64 `yaml:"support_threshold,omitempty" json:"support_threshold,omitempty" validate:"gte=0"`
	PatternWindow       int     `yaml:"pattern_window,omitempty" json:"pattern_window,omitempty" validate:"gte=0"`
}

// KnownStrategyTypes is the closed set of strategy variant names. The
// strategy package's factory switches on the same names.
var KnownStrategyTypes = []string{
	"ema_rsi_macd",
	"bb_rsi_oversold",
	"bb_rsi_overbought",
	"pattern_rsi_macd",
	"triple_ema_pattern_macd_rsi",
	"rsi_oversold_reversal",
	"stoch_oversold",
}

// AssetConfig binds one asset to its strategy sets and constraints. Positive
// strategies propose entries; Negative strategies veto them with sell votes.
type AssetConfig struct {
	Symbol      string                   `yaml:"symbol" json:"symbol" validate:"required"`
	Positive    []StrategyConfig         `yaml:"positive" json:"positive" validate:"min=1,dive"`
	Negative    []StrategyConfig         `yaml:"negative" json:"negative" validate:"dive"`
	Constraints PositionConstraintParams `yaml:"constraints" json:"constraints"`
}

// BacktestConfig is the full declarative input for one run. It is validated
// before the simulation loop starts; an invalid config never reaches the loop.
type BacktestConfig struct {
	Name  string    `yaml:"name" json:"name"`
	Start time.Time `yaml:"start" json:"start" validate:"required"`
	End   time.Time `yaml:"end" json:"end" validate:"required"`
	// CadenceMinutes is the simulation time step.
	CadenceMinutes int `yaml:"cadence_minutes" json:"cadence_minutes" validate:"gt=0"`
	// WarmUpPeriod is the number of candles consumed before votes are trusted.
	WarmUpPeriod int     `yaml:"warm_up_period" json:"warm_up_period" validate:"gte=0"`
	RiskFreeRate float64 `yaml:"risk_free_rate" json:"risk_free_rate" validate:"gte=0"`

	Portfolio            PortfolioParams           `yaml:"portfolio" json:"portfolio"`
	PortfolioConstraints PortfolioConstraintParams `yaml:"portfolio_constraints" json:"portfolio_constraints"`
	Assets               []AssetConfig             `yaml:"assets" json:"assets" validate:"min=1,dive"`
}

// Cadence returns the time step as a duration.
func (c *BacktestConfig) Cadence() time.Duration {
	return time.Duration(c.CadenceMinutes) * time.Minute
}

// Symbols returns the configured asset identifiers in declaration order.
// This order is the deterministic tie-break for same-step order application.
func (c *BacktestConfig) Symbols() []string {
	symbols := make([]string, len(c.Assets))
	for i, a := range c.Assets {
		symbols[i] = a.Symbol
	}

	return symbols
}

// Validate fails fast on any configuration error, before the loop begins.
func (c *BacktestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	if !c.End.After(c.Start) {
		return errors.Newf(errors.ErrCodeInvalidDateRange, "end %s is not after start %s", c.End, c.Start)
	}

	seen := make(map[string]bool, len(c.Assets))

	for _, asset := range c.Assets {
		if seen[asset.Symbol] {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "duplicate asset %q", asset.Symbol)
		}

		seen[asset.Symbol] = true

		for _, sc := range append(append([]StrategyConfig{}, asset.Positive...), asset.Negative...) {
			if !knownStrategy(sc.Type) {
				return errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy type %q for asset %q", sc.Type, asset.Symbol)
			}
		}
	}

	return nil
}

func knownStrategy(name string) bool {
	for _, known := range KnownStrategyTypes {
		if known == name {
			return true
		}
	}

	return false
}
