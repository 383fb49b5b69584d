// Package indicators provides technical analysis indicators computed
// over a trailing window of bars.
//
// All functions are pure and deterministic: the same input window
// always produces bit-identical results. They are safe to use in live,
// replay, and backtest paths.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/mvolkov/tradecore/market"
)

// ErrInsufficientData indicates the bar window is shorter than the
// indicator's lookback. The caller must wait for more bars; a partial
// value is never produced.
var ErrInsufficientData = errors.New("indicators: insufficient data")

func need(bars []market.Bar, n int, name string) error {
	if len(bars) < n {
		return fmt.Errorf("%w: %s needs %d bars, got %d",
			ErrInsufficientData, name, n, len(bars))
	}
	return nil
}

// SMA returns the simple moving average of the last period closes.
func SMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma: period must be positive, got %d", period)
	}
	if err := need(bars, period, "SMA"); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), nil
}

// EMA returns the exponential moving average over the full window,
// seeded with the simple average of the first period closes.
func EMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ema: period must be positive, got %d", period)
	}
	if err := need(bars, period, "EMA"); err != nil {
		return 0, err
	}

	series := emaSeries(closes(bars), period)
	return series[len(series)-1], nil
}

// emaSeries computes the EMA over values, one entry per value starting
// at index period-1 of the input (the seed point).
func emaSeries(values []float64, period int) []float64 {
	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// RSI returns Wilder's relative strength index. It needs period+1 bars
// because the first delta consumes one bar.
func RSI(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: period must be positive, got %d", period)
	}
	if err := need(bars, period+1, "RSI"); err != nil {
		return 0, err
	}

	gains := make([]float64, len(bars)-1)
	losses := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	// Seed averages from the first period deltas, then apply Wilder's
	// smoothing for the remainder of the window.
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACD returns the MACD line (EMA(fast) - EMA(slow)), its signal line
// (EMA of the MACD line over signalPeriod), and the histogram
// (line - signal).
func MACD(bars []market.Bar, fast, slow, signalPeriod int) (line, signal, histogram float64, err error) {
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return 0, 0, 0, fmt.Errorf("macd: periods must be positive (fast=%d slow=%d signal=%d)",
			fast, slow, signalPeriod)
	}
	if fast >= slow {
		return 0, 0, 0, fmt.Errorf("macd: fast period %d must be below slow period %d", fast, slow)
	}
	minBars := slow + signalPeriod - 1
	if err := need(bars, minBars, "MACD"); err != nil {
		return 0, 0, 0, err
	}

	cs := closes(bars)
	fastSeries := emaSeries(cs, fast) // starts at index fast-1
	slowSeries := emaSeries(cs, slow) // starts at index slow-1

	// Align both series at index slow-1, where the slow EMA is seeded.
	offset := slow - fast
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signalPeriod)

	line = macdLine[len(macdLine)-1]
	signal = signalSeries[len(signalSeries)-1]
	return line, signal, line - signal, nil
}

// Bollinger returns the Bollinger bands: SMA(period) plus/minus
// stdDev multiples of the rolling population standard deviation.
func Bollinger(bars []market.Bar, period int, stdDev float64) (upper, middle, lower float64, err error) {
	middle, err = SMA(bars, period)
	if err != nil {
		return 0, 0, 0, err
	}

	variance := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		d := bars[i].Close - middle
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)

	return middle + stdDev*sd, middle, middle - stdDev*sd, nil
}

// VolumeMA returns the simple moving average of the last period volumes.
func VolumeMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("volume ma: period must be positive, got %d", period)
	}
	if err := need(bars, period, "VolumeMA"); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Volume
	}
	return sum / float64(period), nil
}

// ATR returns the average true range over the last period bars. It
// needs period+1 bars because the true range uses the previous close.
func ATR(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr: period must be positive, got %d", period)
	}
	if err := need(bars, period+1, "ATR"); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	return sum / float64(period), nil
}

func trueRange(curr, prev market.Bar) float64 {
	tr := curr.High - curr.Low
	if hc := math.Abs(curr.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(curr.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}

func closes(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
