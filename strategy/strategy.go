// Package strategy contains the signal generators and the combiner
// that resolves their votes into one effective signal per bar.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
)

// Direction is a strategy's directional vote for one bar.
type Direction int8

const (
	Flat  Direction = 0
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Opposes reports whether two non-flat directions disagree.
func (d Direction) Opposes(o Direction) bool {
	return d != Flat && o != Flat && d != o
}

// Signal is one strategy's vote for a symbol at a point in time.
// Signals are immutable.
type Signal struct {
	Strategy  string
	Direction Direction
	Time      time.Time
}

// Strategy evaluates the indicator history and emits a directional
// vote. prev is the snapshot of the immediately preceding bar, needed
// for crossover detection. Implementations are stateless between calls
// and must not block.
type Strategy interface {
	Name() string
	Evaluate(prev, curr indicators.Snapshot, bar market.Bar) Signal
}

// ByName builds a strategy from its configured name. The set is
// closed: the combiner iterates a known, ordered list.
func ByName(name string, cfg Config) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trend":
		return NewTrend(cfg), nil
	case "reversal":
		return NewReversal(cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: trend, reversal)", name)
	}
}

// Config carries the per-strategy thresholds. Indicator periods live
// in indicators.Params; these are the decision thresholds layered on
// top.
type Config struct {
	MinVolumeFactor float64 // trend: bar volume must be >= factor * volume MA

	RSIOversold   float64 // reversal: long below this
	RSIOverbought float64 // reversal: short above this
}
