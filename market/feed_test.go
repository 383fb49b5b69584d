package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceFeedDrainAndReset(t *testing.T) {
	t.Parallel()

	bars := []Bar{
		{Symbol: "SBER", Time: day(0), Close: 100},
		{Symbol: "SBER", Time: day(1), Close: 101},
	}
	f := NewSliceFeed(bars)

	var got []Bar
	for {
		b, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, b)
	}
	assert.Equal(t, bars, got)

	f.Reset()
	b, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bars[0], b)
}

func TestCSVFeed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	data := "time,symbol,open,high,low,close,volume\n" +
		"2024-01-01T00:00:00Z,SBER,100,102,99,101,5000\n" +
		"2024-01-02T00:00:00Z,SBER,101,103,100,102,6000\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	feed, err := OpenCSVFeed(path)
	require.NoError(t, err)

	series, dropped, err := Collect(feed)
	require.NoError(t, err)
	require.Empty(t, dropped)
	require.Contains(t, series, "SBER")

	s := series["SBER"]
	require.Equal(t, 2, s.Len())
	assert.Equal(t, 101.0, s.Bars[0].Close)
	assert.Equal(t, 6000.0, s.Bars[1].Volume)
	assert.Equal(t, day(1), s.Bars[1].Time)
}

func TestCollectDropsOnlyOutOfOrderSymbol(t *testing.T) {
	t.Parallel()

	feed := NewSliceFeed([]Bar{
		{Symbol: "SBER", Time: day(0), Close: 100},
		{Symbol: "GAZP", Time: day(1)},
		{Symbol: "SBER", Time: day(1), Close: 101},
		{Symbol: "GAZP", Time: day(0)},
		{Symbol: "SBER", Time: day(2), Close: 102},
		{Symbol: "GAZP", Time: day(2)},
	})
	series, dropped, err := Collect(feed)
	require.NoError(t, err)

	assert.ErrorIs(t, dropped["GAZP"], ErrDataIntegrity)
	assert.NotContains(t, series, "GAZP")

	require.Contains(t, series, "SBER")
	assert.Equal(t, 3, series["SBER"].Len())
}
