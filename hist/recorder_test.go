package hist

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRecorderClosesAfterInterval(t *testing.T) {
	r := NewRecorder(t0, DefaultHighest, DefaultSigFigs)

	require.True(t, r.Record(100, t0))
	require.True(t, r.Record(200, t0.Add(30*time.Second)))
	assert.Empty(t, r.Intervals())
	assert.True(t, r.IsOpen())

	// the closing sample belongs to the closed histogram
	require.True(t, r.Record(300, t0.Add(60*time.Second)))
	require.Len(t, r.Intervals(), 1)
	assert.False(t, r.IsOpen())
	first := r.Intervals()[0]
	assert.Equal(t, int64(3), first.Histogram.TotalCount())
	assert.Equal(t, time.Duration(0), first.Start)
	assert.Equal(t, 60*time.Second, first.Duration)

	require.True(t, r.Record(400, t0.Add(61*time.Second)))
	assert.True(t, r.IsOpen())
	r.Finish(t0.Add(70 * time.Second))
	require.Len(t, r.Intervals(), 2)
	second := r.Intervals()[1]
	assert.Equal(t, int64(1), second.Histogram.TotalCount())
	assert.Equal(t, 61*time.Second, second.Start)
	assert.Equal(t, 9*time.Second, second.Duration)
}

func TestRecorderDropsInvalidSamples(t *testing.T) {
	r := NewRecorder(t0, 1000, DefaultSigFigs)

	assert.False(t, r.Record(10, t0.Add(-time.Second)), "before file start")
	assert.False(t, r.Record(0, t0), "below lowest value")
	assert.False(t, r.Record(5000, t0), "above highest value")
	assert.False(t, r.IsOpen())

	require.True(t, r.Record(10, t0.Add(10*time.Second)))
	assert.False(t, r.Record(10, t0.Add(5*time.Second)), "before open histogram")

	// finishing before the start discards the histogram
	r.Finish(t0.Add(time.Second))
	assert.Empty(t, r.Intervals())
	assert.False(t, r.IsOpen())
}

func TestRecorderWriteLog(t *testing.T) {
	r := NewRecorder(t0, DefaultHighest, DefaultSigFigs)
	for i := 0; i < 130; i++ {
		r.Record(int64(1000+i), t0.Add(time.Duration(i)*time.Second))
	}
	r.Finish(t0.Add(130 * time.Second))
	require.Len(t, r.Intervals(), 3)

	var buf bytes.Buffer
	require.NoError(t, r.WriteLog(&buf))

	reader := hdrhistogram.NewHistogramLogReader(&buf)
	var total int64
	count := 0
	for {
		h, err := reader.NextIntervalHistogram()
		if err == io.EOF || h == nil {
			break
		}
		require.NoError(t, err)
		total += h.TotalCount()
		count++
	}
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(130), total)
}

func TestRecorderSaveFile(t *testing.T) {
	r := NewRecorder(t0, DefaultHighest, DefaultSigFigs)
	r.Record(42, t0)
	r.Finish(t0.Add(time.Second))

	path := filepath.Join(t.TempDir(), "latency.hlog")
	require.NoError(t, r.SaveFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#[Histogram log format version")
}
