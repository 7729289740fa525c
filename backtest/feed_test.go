package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBarCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func drainFeed(t *testing.T, feed BarFeed) []Bar {
	t.Helper()
	var bars []Bar
	for {
		b, ok, err := feed.Next()
		require.NoError(t, err)
		if !ok {
			return bars
		}
		bars = append(bars, b)
	}
}

func TestCSVBarFeedWithHeader(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, `time,open,high,low,close,volume
2024-01-01,100,105,95,102,1000
2024-01-02,102,110,101,108,1500
`)
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	bars := drainFeed(t, feed)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 105.0, bars[0].High)
	assert.Equal(t, 95.0, bars[0].Low)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, 1000.0, bars[0].Volume)
	assert.Equal(t, 108.0, bars[1].Close)
}

func TestCSVBarFeedWithoutHeaderOrVolume(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, `2024-01-01 00:00:00,1,2,0.5,1.5
2024-01-01 01:00:00,1.5,3,1,2.5
`)
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	bars := drainFeed(t, feed)
	require.Len(t, bars, 2)
	assert.Equal(t, 0.0, bars[0].Volume)
	assert.Equal(t, 2.5, bars[1].Close)
}

func TestCSVBarFeedRFC3339Times(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, "2024-03-01T12:30:00Z,10,11,9,10.5,5\n")
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	bars := drainFeed(t, feed)
	require.Len(t, bars, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), bars[0].Time)
}

func TestCSVBarFeedRejectsNonIncreasingTime(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, `2024-01-02,1,1,1,1
2024-01-01,1,1,1,1
`)
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	_, ok, err := feed.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = feed.Next()
	assert.Error(t, err)
}

func TestCSVBarFeedRejectsShortRows(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, "2024-01-01,1,2\n")
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	_, _, err = feed.Next()
	assert.Error(t, err)
}

func TestCSVBarFeedRejectsBadNumbers(t *testing.T) {
	t.Parallel()

	path := writeBarCSV(t, "2024-01-01,1,2,abc,4,5\n")
	feed, err := NewCSVBarFeed(path)
	require.NoError(t, err)
	defer feed.Close()

	_, _, err = feed.Next()
	assert.Error(t, err)
}

func TestCSVBarFeedMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewCSVBarFeed(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSliceFeed(t *testing.T) {
	t.Parallel()

	bars := dailyBars(1, 2, 3)
	feed := NewSliceFeed(bars)

	got := drainFeed(t, feed)
	assert.Equal(t, bars, got)

	_, ok, err := feed.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
