package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
)

func reversalFixture() (*Reversal, indicators.Snapshot) {
	curr := indicators.Snapshot{
		RSI:            50,
		BollingerUpper: 110,
		BollingerLower: 90,
	}
	return NewReversal(Config{RSIOversold: 30, RSIOverbought: 70}), curr
}

func TestReversalLongAtOversoldExtreme(t *testing.T) {
	t.Parallel()

	r, curr := reversalFixture()
	curr.RSI = 25
	bar := market.Bar{Time: testTime, Close: 89}

	sig := r.Evaluate(indicators.Snapshot{}, curr, bar)
	assert.Equal(t, Long, sig.Direction)
	assert.Equal(t, "reversal", sig.Strategy)
}

func TestReversalShortAtOverboughtExtreme(t *testing.T) {
	t.Parallel()

	r, curr := reversalFixture()
	curr.RSI = 78
	bar := market.Bar{Time: testTime, Close: 111}

	sig := r.Evaluate(indicators.Snapshot{}, curr, bar)
	assert.Equal(t, Short, sig.Direction)
}

func TestReversalFlatWhenOnlyRSIExtreme(t *testing.T) {
	t.Parallel()

	r, curr := reversalFixture()
	curr.RSI = 25
	bar := market.Bar{Time: testTime, Close: 95} // inside the bands

	sig := r.Evaluate(indicators.Snapshot{}, curr, bar)
	assert.Equal(t, Flat, sig.Direction)
}

func TestReversalFlatWhenOnlyBandTouched(t *testing.T) {
	t.Parallel()

	r, curr := reversalFixture()
	bar := market.Bar{Time: testTime, Close: 89} // RSI neutral

	sig := r.Evaluate(indicators.Snapshot{}, curr, bar)
	assert.Equal(t, Flat, sig.Direction)
}
