package strategy

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how a Combiner resolves votes from multiple strategies.
type Mode string

const (
	// ModeAny takes the first non-flat vote in configured strategy
	// order. A long/short conflict resolves to flat: ambiguity means
	// do nothing, not pick a side.
	ModeAny Mode = "any"

	// ModeAll requires every strategy to agree on a non-flat
	// direction; anything else is flat.
	ModeAll Mode = "all"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAny:
		return ModeAny, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", fmt.Errorf("unknown strategy mode %q (supported: any, all)", s)
	}
}

// Combiner resolves the active strategies' signals for one symbol/bar
// into a single effective signal. Resolution depends only on the fixed
// configured strategy order, never on evaluation order.
type Combiner struct {
	mode       Mode
	strategies []Strategy
}

func NewCombiner(mode Mode, strategies []Strategy) *Combiner {
	return &Combiner{mode: mode, strategies: strategies}
}

// Strategies returns the combiner's fixed strategy list in configured
// order.
func (c *Combiner) Strategies() []Strategy { return c.strategies }

// Combine resolves one effective signal from per-strategy votes.
// signals must be in the combiner's configured strategy order.
func (c *Combiner) Combine(signals []Signal, at time.Time) Signal {
	out := Signal{Strategy: "combined", Direction: Flat, Time: at}
	if len(signals) == 0 {
		return out
	}

	switch c.mode {
	case ModeAll:
		dir := signals[0].Direction
		for _, s := range signals[1:] {
			if s.Direction != dir {
				return out
			}
		}
		out.Direction = dir

	default: // ModeAny
		var first Direction
		for _, s := range signals {
			if s.Direction == Flat {
				continue
			}
			if first == Flat {
				first = s.Direction
				continue
			}
			if s.Direction.Opposes(first) {
				// Conflicting non-flat votes cancel out.
				return out
			}
		}
		out.Direction = first
	}
	return out
}
