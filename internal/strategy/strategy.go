package strategy

import (
	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/types"
	"github.com/quantakt/backtest/pkg/errors"
)

// Strategy is the capability every named strategy variant implements: a pure
// function of its own indicator state and fixed parameters. Update consumes
// one candle; Vote reads the current directional opinion without mutating.
type Strategy interface {
	// Name returns the variant name (one of config.KnownStrategyTypes).
	Name() string
	// Update feeds one candle into the strategy's indicator state.
	Update(candle types.Candle)
	// Vote returns the directional opinion for the last updated candle.
	// Strategies vote Hold until their indicators have warmed up.
	Vote() types.Vote
}

// New builds a strategy variant from its declarative config. Zero-valued
// parameters fall back to the variant's defaults.
func New(cfg config.StrategyConfig) (Strategy, error) {
	switch cfg.Type {
	case "ema_rsi_macd":
		return newEmaRsiMacd(cfg), nil
	case "bb_rsi_oversold":
		return newBbRsiOversold(cfg), nil
	case "bb_rsi_overbought":
		return newBbRsiOverbought(cfg), nil
	case "pattern_rsi_macd":
		return newPatternRsiMacd(cfg), nil
	case "triple_ema_pattern_macd_rsi":
		return newTripleEmaPatternMacdRsi(cfg), nil
	case "rsi_oversold_reversal":
		return newRsiOversoldReversal(cfg), nil
	case "stoch_oversold":
		return newStochOversold(cfg), nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy type %q", cfg.Type)
	}
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}

	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}

	return v
}
