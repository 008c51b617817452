package strategy

import (
	"github.com/quantakt/backtest/internal/config"
	"github.com/quantakt/backtest/internal/indicator"
	"github.com/quantakt/backtest/internal/types"
)

// emaRsiMacd buys when the fast EMA is above the medium, RSI is neutral, and
// MACD is bullish; sells on the full bearish alignment.
type emaRsiMacd struct {
	ema  *indicator.TripleEMA
	rsi  *indicator.RSI
	macd *indicator.MACD
	ob   float64
	os   float64
}

func newEmaRsiMacd(cfg config.StrategyConfig) *emaRsiMacd {
	return &emaRsiMacd{
		ema: indicator.NewTripleEMA(
			orDefaultInt(cfg.EmaFast, 9),
			orDefaultInt(cfg.EmaMedium, 21),
			orDefaultInt(cfg.EmaSlow, 55),
		),
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		macd: indicator.NewMACD(
			orDefaultInt(cfg.MacdFast, 12),
			orDefaultInt(cfg.MacdSlow, 26),
			orDefaultInt(cfg.MacdSignal, 9),
		),
		ob: orDefaultFloat(cfg.RsiOverbought, 70),
		os: orDefaultFloat(cfg.RsiOversold, 30),
	}
}

func (s *emaRsiMacd) Name() string { return "ema_rsi_macd" }

func (s *emaRsiMacd) Update(c types.Candle) {
	s.ema.Update(c.Close)
	s.rsi.Update(c.Close)
	s.macd.Update(c.Close)
}

func (s *emaRsiMacd) Vote() types.Vote {
	if !s.ema.Ready() || !s.rsi.Ready() || !s.macd.Ready() {
		return types.Hold()
	}

	rsi := s.rsi.Value()
	neutral := rsi > s.os && rsi < s.ob

	if s.ema.BullishCross() && neutral && s.macd.Bullish() {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	if s.ema.BearishStack() && s.macd.Bearish() {
		return types.Vote{Direction: types.DirectionSell, Strength: 1}
	}

	return types.Hold()
}

// bbRsiOversold buys when price extends below the lower Bollinger band while
// RSI confirms the oversold condition.
type bbRsiOversold struct {
	bb    *indicator.BollingerBands
	rsi   *indicator.RSI
	os    float64
	price float64
}

func newBbRsiOversold(cfg config.StrategyConfig) *bbRsiOversold {
	return &bbRsiOversold{
		bb:  indicator.NewBollingerBands(orDefaultInt(cfg.BbPeriod, 20), orDefaultFloat(cfg.BbStdDev, 2)),
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		os:  orDefaultFloat(cfg.RsiOversold, 30),
	}
}

func (s *bbRsiOversold) Name() string { return "bb_rsi_oversold" }

func (s *bbRsiOversold) Update(c types.Candle) {
	s.bb.Update(c.Close)
	s.rsi.Update(c.Close)
	s.price = c.Close
}

func (s *bbRsiOversold) Vote() types.Vote {
	if !s.bb.Ready() || !s.rsi.Ready() {
		return types.Hold()
	}

	if s.bb.BelowLower(s.price) && s.rsi.Value() < s.os {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	return types.Hold()
}

// bbRsiOverbought sells when price extends above the upper Bollinger band
// while RSI confirms the overbought condition. Typically used in a Negative
// set as a veto.
type bbRsiOverbought struct {
	bb    *indicator.BollingerBands
	rsi   *indicator.RSI
	ob    float64
	price float64
}

func newBbRsiOverbought(cfg config.StrategyConfig) *bbRsiOverbought {
	return &bbRsiOverbought{
		bb:  indicator.NewBollingerBands(orDefaultInt(cfg.BbPeriod, 20), orDefaultFloat(cfg.BbStdDev, 2)),
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		ob:  orDefaultFloat(cfg.RsiOverbought, 70),
	}
}

func (s *bbRsiOverbought) Name() string { return "bb_rsi_overbought" }

func (s *bbRsiOverbought) Update(c types.Candle) {
	s.bb.Update(c.Close)
	s.rsi.Update(c.Close)
	s.price = c.Close
}

func (s *bbRsiOverbought) Vote() types.Vote {
	if !s.bb.Ready() || !s.rsi.Ready() {
		return types.Hold()
	}

	if s.bb.AboveUpper(s.price) && s.rsi.Value() > s.ob {
		return types.Vote{Direction: types.DirectionSell, Strength: 1}
	}

	return types.Hold()
}

// patternRsiMacd buys a resistance breakout confirmed by MACD, as long as RSI
// is not blown out.
type patternRsiMacd struct {
	pattern *indicator.Pattern
	rsi     *indicator.RSI
	macd    *indicator.MACD
	// breakout is evaluated against the window before the current candle
	// rolls in; a candle's own high would otherwise mask its breakout.
	breakout bool
}

func newPatternRsiMacd(cfg config.StrategyConfig) *patternRsiMacd {
	return &patternRsiMacd{
		pattern: indicator.NewPattern(
			orDefaultInt(cfg.PatternWindow, 20),
			orDefaultFloat(cfg.ResistanceThreshold, 0.01),
			orDefaultFloat(cfg.SupportThreshold, 0.01),
		),
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		macd: indicator.NewMACD(
			orDefaultInt(cfg.MacdFast, 12),
			orDefaultInt(cfg.MacdSlow, 26),
			orDefaultInt(cfg.MacdSignal, 9),
		),
	}
}

func (s *patternRsiMacd) Name() string { return "pattern_rsi_macd" }

func (s *patternRsiMacd) Update(c types.Candle) {
	s.breakout = s.pattern.ResistanceBreakout(c.Close)
	s.pattern.Update(c.High, c.Low)
	s.rsi.Update(c.Close)
	s.macd.Update(c.Close)
}

func (s *patternRsiMacd) Vote() types.Vote {
	if !s.pattern.Ready() || !s.rsi.Ready() || !s.macd.Ready() {
		return types.Hold()
	}

	if s.breakout && s.rsi.Value() < 80 && s.macd.Bullish() {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	return types.Hold()
}

// tripleEmaPatternMacdRsi requires the full bullish EMA stack, an uptrend
// pattern, bullish MACD, and neutral RSI before entering; sells on the
// bearish stack.
type tripleEmaPatternMacdRsi struct {
	ema     *indicator.TripleEMA
	pattern *indicator.Pattern
	macd    *indicator.MACD
	rsi     *indicator.RSI
	ob      float64
	os      float64
	price   float64
}

func newTripleEmaPatternMacdRsi(cfg config.StrategyConfig) *tripleEmaPatternMacdRsi {
	return &tripleEmaPatternMacdRsi{
		ema: indicator.NewTripleEMA(
			orDefaultInt(cfg.EmaFast, 9),
			orDefaultInt(cfg.EmaMedium, 21),
			orDefaultInt(cfg.EmaSlow, 55),
		),
		pattern: indicator.NewPattern(
			orDefaultInt(cfg.PatternWindow, 20),
			orDefaultFloat(cfg.ResistanceThreshold, 0.01),
			orDefaultFloat(cfg.SupportThreshold, 0.01),
		),
		macd: indicator.NewMACD(
			orDefaultInt(cfg.MacdFast, 12),
			orDefaultInt(cfg.MacdSlow, 26),
			orDefaultInt(cfg.MacdSignal, 9),
		),
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		ob:  orDefaultFloat(cfg.RsiOverbought, 70),
		os:  orDefaultFloat(cfg.RsiOversold, 30),
	}
}

func (s *tripleEmaPatternMacdRsi) Name() string { return "triple_ema_pattern_macd_rsi" }

func (s *tripleEmaPatternMacdRsi) Update(c types.Candle) {
	s.ema.Update(c.Close)
	s.pattern.Update(c.High, c.Low)
	s.macd.Update(c.Close)
	s.rsi.Update(c.Close)
	s.price = c.Close
}

func (s *tripleEmaPatternMacdRsi) Vote() types.Vote {
	if !s.ema.Ready() || !s.pattern.Ready() || !s.macd.Ready() || !s.rsi.Ready() {
		return types.Hold()
	}

	rsi := s.rsi.Value()

	if s.ema.BullishStack() && s.pattern.Uptrend(s.price) && s.macd.Bullish() && rsi > s.os && rsi < s.ob {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	if s.ema.BearishStack() && s.macd.Bearish() {
		return types.Vote{Direction: types.DirectionSell, Strength: 1}
	}

	return types.Hold()
}

// rsiOversoldReversal buys the candle RSI crosses back up through the
// oversold line while short-term EMA momentum agrees.
type rsiOversoldReversal struct {
	rsi     *indicator.RSI
	ema     *indicator.TripleEMA
	os      float64
	prevRsi float64
	hasPrev bool
}

func newRsiOversoldReversal(cfg config.StrategyConfig) *rsiOversoldReversal {
	return &rsiOversoldReversal{
		rsi: indicator.NewRSI(orDefaultInt(cfg.RsiPeriod, 14)),
		ema: indicator.NewTripleEMA(
			orDefaultInt(cfg.EmaFast, 9),
			orDefaultInt(cfg.EmaMedium, 21),
			orDefaultInt(cfg.EmaSlow, 55),
		),
		os: orDefaultFloat(cfg.RsiOversold, 30),
	}
}

func (s *rsiOversoldReversal) Name() string { return "rsi_oversold_reversal" }

func (s *rsiOversoldReversal) Update(c types.Candle) {
	if s.rsi.Ready() {
		s.prevRsi = s.rsi.Value()
		s.hasPrev = true
	}

	s.rsi.Update(c.Close)
	s.ema.Update(c.Close)
}

func (s *rsiOversoldReversal) Vote() types.Vote {
	if !s.rsi.Ready() || !s.ema.Ready() || !s.hasPrev {
		return types.Hold()
	}

	crossedUp := s.prevRsi < s.os && s.rsi.Value() >= s.os

	if crossedUp && s.ema.BullishCross() {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	return types.Hold()
}

// stochOversold buys when %K sits below the oversold line and has turned up
// through %D.
type stochOversold struct {
	stoch    *indicator.Stochastic
	oversold float64
}

func newStochOversold(cfg config.StrategyConfig) *stochOversold {
	return &stochOversold{
		stoch:    indicator.NewStochastic(orDefaultInt(cfg.StochPeriod, 14)),
		oversold: orDefaultFloat(cfg.StochOversold, 20),
	}
}

func (s *stochOversold) Name() string { return "stoch_oversold" }

func (s *stochOversold) Update(c types.Candle) {
	s.stoch.Update(c.High, c.Low, c.Close)
}

func (s *stochOversold) Vote() types.Vote {
	if !s.stoch.Ready() {
		return types.Hold()
	}

	if s.stoch.K() < s.oversold && s.stoch.K() > s.stoch.D() {
		return types.Vote{Direction: types.DirectionBuy, Strength: 1}
	}

	return types.Hold()
}
