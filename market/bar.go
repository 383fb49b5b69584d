// Package market provides price/volume bar types and data feeds.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrDataIntegrity indicates a non-monotonic or duplicate timestamp in a
// bar sequence. It is fatal for the affected symbol: callers must not
// silently skip the offending bar.
var ErrDataIntegrity = errors.New("market: data integrity violation")

// Bar is one OHLCV observation for a symbol at a fixed timeframe.
// Bars are immutable once produced.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a time-ordered sequence of bars for a single symbol.
// Timestamps are strictly increasing; duplicates are rejected.
type Series struct {
	Symbol string
	Bars   []Bar
}

// NewSeries validates and wraps an ordered bar slice.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	s := &Series{Symbol: symbol}
	for _, b := range bars {
		if err := s.Append(b); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds the next bar, enforcing symbol match and strictly
// increasing timestamps.
func (s *Series) Append(b Bar) error {
	if b.Symbol != s.Symbol {
		return fmt.Errorf("%w: bar symbol %q does not match series %q",
			ErrDataIntegrity, b.Symbol, s.Symbol)
	}
	if n := len(s.Bars); n > 0 && !b.Time.After(s.Bars[n-1].Time) {
		return fmt.Errorf("%w: %s bar at %s is not after previous bar at %s",
			ErrDataIntegrity, s.Symbol,
			b.Time.Format(time.RFC3339), s.Bars[n-1].Time.Format(time.RFC3339))
	}
	s.Bars = append(s.Bars, b)
	return nil
}

// Len returns the number of bars in the series.
func (s *Series) Len() int { return len(s.Bars) }

// Last returns the most recent bar. It panics on an empty series;
// callers check Len first.
func (s *Series) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Window returns the trailing n bars, or all bars if fewer exist.
func (s *Series) Window(n int) []Bar {
	if len(s.Bars) <= n {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}
