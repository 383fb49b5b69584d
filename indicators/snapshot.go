package indicators

import (
	"time"

	"github.com/mvolkov/tradecore/market"
)

// Params holds the lookback periods and thresholds used to build a
// Snapshot. Zero values are not defaulted here; config supplies them.
type Params struct {
	EMAShort int
	EMALong  int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	RSIPeriod int

	BollingerPeriod int
	BollingerStdDev float64

	VolumeMAPeriod int
	ATRPeriod      int
}

// Warmup reports the minimum number of bars required before Compute
// can succeed for these parameters.
func (p Params) Warmup() int {
	n := p.EMALong
	if v := p.EMAShort; v > n {
		n = v
	}
	if v := p.MACDSlow + p.MACDSignal - 1; v > n {
		n = v
	}
	if v := p.RSIPeriod + 1; v > n {
		n = v
	}
	if v := p.BollingerPeriod; v > n {
		n = v
	}
	if v := p.VolumeMAPeriod; v > n {
		n = v
	}
	if v := p.ATRPeriod + 1; v > n {
		n = v
	}
	return n
}

// Snapshot holds every indicator value derived from the trailing
// window ending at one bar. Snapshots are recomputed per bar and never
// mutated retroactively.
type Snapshot struct {
	Time   time.Time
	Close  float64
	Volume float64

	EMAShort float64
	EMALong  float64

	MACDLine      float64
	MACDSignal    float64
	MACDHistogram float64

	RSI float64

	BollingerUpper  float64
	BollingerMiddle float64
	BollingerLower  float64

	VolumeMA float64
	ATR      float64
}

// Compute derives a full Snapshot from the window ending at the last
// bar. It fails with ErrInsufficientData until len(bars) >= p.Warmup().
func Compute(bars []market.Bar, p Params) (Snapshot, error) {
	var s Snapshot
	var err error

	if s.EMAShort, err = EMA(bars, p.EMAShort); err != nil {
		return Snapshot{}, err
	}
	if s.EMALong, err = EMA(bars, p.EMALong); err != nil {
		return Snapshot{}, err
	}
	if s.MACDLine, s.MACDSignal, s.MACDHistogram, err = MACD(bars, p.MACDFast, p.MACDSlow, p.MACDSignal); err != nil {
		return Snapshot{}, err
	}
	if s.RSI, err = RSI(bars, p.RSIPeriod); err != nil {
		return Snapshot{}, err
	}
	if s.BollingerUpper, s.BollingerMiddle, s.BollingerLower, err = Bollinger(bars, p.BollingerPeriod, p.BollingerStdDev); err != nil {
		return Snapshot{}, err
	}
	if s.VolumeMA, err = VolumeMA(bars, p.VolumeMAPeriod); err != nil {
		return Snapshot{}, err
	}
	if s.ATR, err = ATR(bars, p.ATRPeriod); err != nil {
		return Snapshot{}, err
	}

	last := bars[len(bars)-1]
	s.Time = last.Time
	s.Close = last.Close
	s.Volume = last.Volume
	return s, nil
}
