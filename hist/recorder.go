// Package hist collects values into consecutive interval histograms and writes
// them as HdrHistogram interval logs.
package hist

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
)

const (
	// LowestValue is the lowest discernible value of every histogram
	LowestValue = 1
	// DefaultHighest is one minute in microseconds
	DefaultHighest = int64(60 * time.Second / time.Microsecond)
	// DefaultSigFigs is the default number of significant value digits
	DefaultSigFigs = 2
	// IntervalLength is the accumulated duration after which the open histogram is closed
	IntervalLength = 60 * time.Second
)

// Interval is a closed histogram.
type Interval struct {
	Histogram *hdrhistogram.Histogram
	// Start is relative to the file start
	Start    time.Duration
	Duration time.Duration
}

// Recorder accumulates samples into histograms covering at least IntervalLength each.
// Recorder is not safe for concurrent use.
type Recorder struct {
	fileStart    time.Time
	highest      int64
	sigfigs      int
	current      *hdrhistogram.Histogram
	currentStart time.Time
	intervals    []Interval
}

// NewRecorder creates new Recorder. Values are tracked from LowestValue up to highest.
func NewRecorder(fileStart time.Time, highest int64, sigfigs int) *Recorder {
	if highest < 2*LowestValue {
		highest = DefaultHighest
	}
	if sigfigs < 1 || sigfigs > 5 {
		sigfigs = DefaultSigFigs
	}
	return &Recorder{
		fileStart: fileStart,
		highest:   highest,
		sigfigs:   sigfigs,
		intervals: make([]Interval, 0),
	}
}

// FileStart returns the reference time of all intervals
func (r *Recorder) FileStart() time.Time {
	return r.fileStart
}

// Record adds value observed at now. It returns false when the sample was dropped:
// the value is out of range or now precedes the file start or the open histogram.
// The histogram is closed on the sample at which it has been open for IntervalLength.
func (r *Recorder) Record(value int64, now time.Time) bool {
	if now.Before(r.fileStart) || value < LowestValue || value > r.highest {
		return false
	}
	opened := false
	if r.current == nil {
		r.current = hdrhistogram.New(LowestValue, r.highest, r.sigfigs)
		r.currentStart = now
		opened = true
	} else if now.Before(r.currentStart) {
		return false
	}
	if err := r.current.RecordValue(value); err != nil {
		if opened {
			r.current = nil
		}
		return false
	}
	if !opened && now.Sub(r.currentStart) >= IntervalLength {
		r.Finish(now)
	}
	return true
}

// Finish closes the open histogram, if any, at now.
// A histogram which would end before it started is discarded.
func (r *Recorder) Finish(now time.Time) {
	if r.current == nil {
		return
	}
	h := r.current
	start := r.currentStart
	r.current = nil
	if now.Before(start) {
		return
	}
	h.SetStartTimeMs(start.Sub(r.fileStart).Milliseconds())
	h.SetEndTimeMs(now.Sub(r.fileStart).Milliseconds())
	r.intervals = append(r.intervals, Interval{
		Histogram: h,
		Start:     start.Sub(r.fileStart),
		Duration:  now.Sub(start),
	})
}

// IsOpen reports whether a histogram is currently accumulating samples
func (r *Recorder) IsOpen() bool {
	return r.current != nil
}

// Intervals returns closed histograms in order of their start
func (r *Recorder) Intervals() []Interval {
	return r.intervals
}

// WriteLog writes all closed histograms as an interval log.
// Interval timestamps are milliseconds since the file start.
func (r *Recorder) WriteLog(w io.Writer) error {
	lw := hdrhistogram.NewHistogramLogWriter(w)
	if err := lw.OutputLogFormatVersion(); err != nil {
		return errors.Wrap(err, "can't write log format version")
	}
	if err := lw.OutputStartTime(r.fileStart.UnixMilli()); err != nil {
		return errors.Wrap(err, "can't write start time")
	}
	if err := lw.OutputLegend(); err != nil {
		return errors.Wrap(err, "can't write legend")
	}
	for i := range r.intervals {
		if err := lw.OutputIntervalHistogram(r.intervals[i].Histogram); err != nil {
			return errors.Wrapf(err, "can't write interval %d", i)
		}
	}
	return nil
}

// SaveFile writes the interval log to path.
func (r *Recorder) SaveFile(path string) error {
	fd, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "can't create histogram log")
	}
	buf := bufio.NewWriter(fd)
	if err := r.WriteLog(buf); err != nil {
		fd.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		fd.Close()
		return errors.Wrap(err, "can't flush histogram log")
	}
	return fd.Close()
}
