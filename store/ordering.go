package store

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
)

// DefaultBufferFrames is the number of distinct frames an OrderingWriter holds back
const DefaultBufferFrames = 1000

// OrderingWriter buffers estimates and hands them to the sink in ascending frame order.
// Only rows of the oldest frames beyond the bound are written; Close writes the rest.
// Rows of one frame keep their arrival order.
type OrderingWriter struct {
	sink   RowSink[mot.KalmanEstimatesRow]
	bound  int
	buffer map[frames.SyncFno][]mot.KalmanEstimatesRow
	// keys are buffered frames in ascending order
	keys   []frames.SyncFno
	closed bool
}

// NewOrderingWriter creates new OrderingWriter. Non-positive bound means DefaultBufferFrames.
func NewOrderingWriter(sink RowSink[mot.KalmanEstimatesRow], bound int) *OrderingWriter {
	if bound <= 0 {
		bound = DefaultBufferFrames
	}
	return &OrderingWriter{
		sink:   sink,
		bound:  bound,
		buffer: make(map[frames.SyncFno][]mot.KalmanEstimatesRow),
		keys:   make([]frames.SyncFno, 0, bound+1),
	}
}

// Write buffers row and flushes the oldest frames once more than bound frames are held.
func (ow *OrderingWriter) Write(row mot.KalmanEstimatesRow) error {
	if ow.closed {
		return ErrWriterClosed
	}
	rows, ok := ow.buffer[row.Frame]
	if !ok {
		idx, _ := slices.BinarySearch(ow.keys, row.Frame)
		ow.keys = slices.Insert(ow.keys, idx, row.Frame)
	}
	ow.buffer[row.Frame] = append(rows, row)

	if len(ow.keys) > ow.bound {
		return ow.writeOldest(len(ow.keys) - ow.bound)
	}
	return nil
}

func (ow *OrderingWriter) writeOldest(n int) error {
	for i := 0; i < n; i++ {
		frame := ow.keys[0]
		for _, row := range ow.buffer[frame] {
			if err := ow.sink.WriteRow(row); err != nil {
				return errors.Wrapf(err, "can't write estimates of frame %d", frame)
			}
		}
		delete(ow.buffer, frame)
		ow.keys = ow.keys[1:]
	}
	return nil
}

// BufferedFrames returns number of frames held back
func (ow *OrderingWriter) BufferedFrames() int {
	return len(ow.keys)
}

// Flush flushes the sink. Buffered frames stay buffered.
func (ow *OrderingWriter) Flush() error {
	if ow.closed {
		return nil
	}
	return ow.sink.Flush()
}

// Close writes every buffered frame in ascending order and closes the sink.
// It is safe to call Close more than once; later calls do nothing.
func (ow *OrderingWriter) Close() error {
	if ow.closed {
		return nil
	}
	ow.closed = true
	writeErr := ow.writeOldest(len(ow.keys))
	closeErr := ow.sink.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
