package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed yields bars one at a time in timestamp order.
// Implementations must be deterministic and return ok=false at EOF.
type Feed interface {
	Next() (b Bar, ok bool, err error)
	Close() error
}

// SliceFeed replays an in-memory bar slice. Used by tests and replays.
type SliceFeed struct {
	bars []Bar
	idx  int
}

func NewSliceFeed(bars []Bar) *SliceFeed {
	return &SliceFeed{bars: bars}
}

func (f *SliceFeed) Next() (Bar, bool, error) {
	if f.idx >= len(f.bars) {
		return Bar{}, false, nil
	}
	b := f.bars[f.idx]
	f.idx++
	return b, true, nil
}

func (f *SliceFeed) Close() error { return nil }

// Reset rewinds the feed to the first bar so it can be replayed.
func (f *SliceFeed) Reset() { f.idx = 0 }

// CSVFeed reads bars from a CSV file with columns
// time,symbol,open,high,low,close,volume. Time is RFC3339. A header
// row starting with "time" is skipped.
type CSVFeed struct {
	f *os.File
	r *csv.Reader

	checkedHeader bool
}

func OpenCSVFeed(path string) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bar csv: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return &CSVFeed{f: f, r: r}, nil
}

func (c *CSVFeed) Next() (Bar, bool, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return Bar{}, false, nil
		}
		if err != nil {
			return Bar{}, false, err
		}
		if len(row) == 0 {
			continue
		}
		if !c.checkedHeader {
			c.checkedHeader = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}
		b, err := parseBarRow(row)
		if err != nil {
			return Bar{}, false, err
		}
		return b, true, nil
	}
}

func (c *CSVFeed) Close() error { return c.f.Close() }

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 7 {
		return Bar{}, fmt.Errorf("bad bar row (need time,symbol,open,high,low,close,volume): %v", row)
	}

	ts := strings.TrimSpace(row[0])
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, ts)
		if err2 != nil {
			return Bar{}, fmt.Errorf("bad time %q: %w", row[0], err)
		}
		t = t2
	}

	vals := make([]float64, 5)
	for i := 2; i < 7; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad value %q in column %d: %w", row[i], i, err)
		}
		vals[i-2] = v
	}

	return Bar{
		Symbol: strings.TrimSpace(row[1]),
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Collect drains a feed into per-symbol series, enforcing timestamp
// integrity per symbol. A symbol whose bars violate the ordering is
// dropped and reported in the second map; the remaining symbols load
// normally. The error return is reserved for feed failures, which
// poison all symbols.
func Collect(feed Feed) (map[string]*Series, map[string]error, error) {
	defer feed.Close()

	out := make(map[string]*Series)
	bad := make(map[string]error)
	for {
		b, ok, err := feed.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return out, bad, nil
		}
		if _, dropped := bad[b.Symbol]; dropped {
			continue
		}
		s, found := out[b.Symbol]
		if !found {
			s = &Series{Symbol: b.Symbol}
			out[b.Symbol] = s
		}
		if err := s.Append(b); err != nil {
			bad[b.Symbol] = err
			delete(out, b.Symbol)
		}
	}
}
