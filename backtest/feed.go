package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Bar is one historical OHLCV bar.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarFeed yields bars in strictly increasing time order. Implementations
// return ok=false at end of data.
type BarFeed interface {
	Next() (b Bar, ok bool, err error)
	Close() error
}

// CSVBarFeed reads bar rows:
//
//	time,open,high,low,close,volume
//
// where time is RFC3339 or "2006-01-02 15:04:05". A header row is
// allowed; empty rows are skipped.
type CSVBarFeed struct {
	f *os.File
	r *csv.Reader

	sawFirst bool
	lastTime time.Time
}

func NewCSVBarFeed(path string) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return &CSVBarFeed{f: f, r: r}, nil
}

func (c *CSVBarFeed) Close() error {
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

func (c *CSVBarFeed) Next() (Bar, bool, error) {
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

		if !c.sawFirst {
			c.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") ||
				strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
				continue
			}
		}

		b, err := parseBarRow(row)
		if err != nil {
			return Bar{}, false, err
		}
		if !c.lastTime.IsZero() && !b.Time.After(c.lastTime) {
			return Bar{}, false, fmt.Errorf("bar feed: time %s not after %s", b.Time, c.lastTime)
		}
		c.lastTime = b.Time
		return b, true, nil
	}
}

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 5 {
		return Bar{}, fmt.Errorf("bar feed: row needs time,open,high,low,close[,volume], got %d fields", len(row))
	}

	t, err := parseBarTime(strings.TrimSpace(row[0]))
	if err != nil {
		return Bar{}, err
	}

	vals := make([]float64, 0, 5)
	for _, s := range row[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bar feed: bad number %q: %w", s, err)
		}
		vals = append(vals, v)
	}

	b := Bar{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}
	if len(vals) > 4 {
		b.Volume = vals[4]
	}
	return b, nil
}

func parseBarTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bar feed: unparseable time %q", s)
}

// SliceFeed replays an in-memory bar slice; used by tests and demos.
type SliceFeed struct {
	bars []Bar
	i    int
}

func NewSliceFeed(bars []Bar) *SliceFeed {
	return &SliceFeed{bars: bars}
}

func (s *SliceFeed) Next() (Bar, bool, error) {
	if s.i >= len(s.bars) {
		return Bar{}, false, nil
	}
	b := s.bars[s.i]
	s.i++
	return b, true, nil
}

func (s *SliceFeed) Close() error { return nil }
