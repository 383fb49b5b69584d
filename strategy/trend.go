package strategy

import (
	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
)

// Trend follows EMA crossovers confirmed by MACD and volume.
//
// Long: the short EMA crosses above the long EMA (the sign of
// short-long flips from <=0 to >0 between the previous and current
// bar), the MACD histogram is positive, and volume is at least
// MinVolumeFactor times its moving average. Short is the mirror.
type Trend struct {
	minVolumeFactor float64
}

func NewTrend(cfg Config) *Trend {
	return &Trend{minVolumeFactor: cfg.MinVolumeFactor}
}

func (t *Trend) Name() string { return "trend" }

func (t *Trend) Evaluate(prev, curr indicators.Snapshot, bar market.Bar) Signal {
	sig := Signal{Strategy: t.Name(), Direction: Flat, Time: bar.Time}

	prevDiff := prev.EMAShort - prev.EMALong
	currDiff := curr.EMAShort - curr.EMALong

	crossUp := prevDiff <= 0 && currDiff > 0
	crossDown := prevDiff >= 0 && currDiff < 0

	volumeOK := curr.VolumeMA > 0 && bar.Volume >= t.minVolumeFactor*curr.VolumeMA

	switch {
	case crossUp && curr.MACDHistogram > 0 && volumeOK:
		sig.Direction = Long
	case crossDown && curr.MACDHistogram < 0 && volumeOK:
		sig.Direction = Short
	}
	return sig
}
