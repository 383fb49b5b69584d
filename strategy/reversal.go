package strategy

import (
	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
)

// Reversal fades extremes: long when RSI is oversold and the close is
// at or below the lower Bollinger band, short when RSI is overbought
// and the close is at or above the upper band.
type Reversal struct {
	oversold   float64
	overbought float64
}

func NewReversal(cfg Config) *Reversal {
	return &Reversal{
		oversold:   cfg.RSIOversold,
		overbought: cfg.RSIOverbought,
	}
}

func (r *Reversal) Name() string { return "reversal" }

func (r *Reversal) Evaluate(prev, curr indicators.Snapshot, bar market.Bar) Signal {
	sig := Signal{Strategy: r.Name(), Direction: Flat, Time: bar.Time}

	switch {
	case curr.RSI < r.oversold && bar.Close <= curr.BollingerLower:
		sig.Direction = Long
	case curr.RSI > r.overbought && bar.Close >= curr.BollingerUpper:
		sig.Direction = Short
	}
	return sig
}
