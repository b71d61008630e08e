// Package capture adapts camera devices to the tracking pipeline. A device is
// polled by its own goroutine and hands its records over a bounded channel
// which drops the newest record when full.
package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/LdDl/mot3d-go/frames"
)

// ErrSingleFrame is wrapped by devices which failed to deliver one frame but can continue.
var ErrSingleFrame = errors.New("single frame error")

// Device is a camera delivering synchronized records.
//
// NextFrame returns io.EOF when the device has no more frames. Errors wrapping
// ErrSingleFrame skip one frame; any other error stops polling.
type Device interface {
	Name() string
	NextFrame() (frames.FramePoints, error)
}

// ThreadedCamera guards a Device shared by a polling goroutine and control calls.
type ThreadedCamera struct {
	mu     sync.Mutex
	dev    Device
	logger *slog.Logger

	dropped atomic.Uint64
	skipped atomic.Uint64

	errMu sync.Mutex
	err   error
}

// NewThreadedCamera creates new ThreadedCamera
func NewThreadedCamera(dev Device, logger *slog.Logger) *ThreadedCamera {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadedCamera{dev: dev, logger: logger.With("camera", dev.Name())}
}

// With runs fn with exclusive access to the device.
func (tc *ThreadedCamera) With(fn func(Device) error) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return fn(tc.dev)
}

// Dropped returns number of records dropped because the channel was full.
func (tc *ThreadedCamera) Dropped() uint64 {
	return tc.dropped.Load()
}

// Skipped returns number of frames the device failed to deliver.
func (tc *ThreadedCamera) Skipped() uint64 {
	return tc.skipped.Load()
}

// Err returns the error which stopped polling. It is nil after io.EOF or cancellation.
func (tc *ThreadedCamera) Err() error {
	tc.errMu.Lock()
	defer tc.errMu.Unlock()
	return tc.err
}

// Frames starts polling the device. The returned channel holds at most bufsize
// records and is closed when polling stops.
func (tc *ThreadedCamera) Frames(ctx context.Context, bufsize int) <-chan frames.FramePoints {
	if bufsize < 1 {
		bufsize = 1
	}
	out := make(chan frames.FramePoints, bufsize)
	go tc.poll(ctx, out)
	return out
}

func (tc *ThreadedCamera) poll(ctx context.Context, out chan<- frames.FramePoints) {
	defer close(out)
	for ctx.Err() == nil {
		fp, err := tc.next()
		if err != nil {
			switch {
			case errors.Is(err, ErrSingleFrame):
				tc.skipped.Add(1)
				tc.logger.Warn("capture: frame skipped", "error", err)
				continue
			case errors.Is(err, io.EOF):
				tc.logger.Info("capture: device finished")
			default:
				tc.errMu.Lock()
				tc.err = err
				tc.errMu.Unlock()
				tc.logger.Error("capture: polling stopped", "error", err)
			}
			return
		}
		select {
		case out <- fp:
		default:
			n := tc.dropped.Add(1)
			tc.logger.Warn("capture: channel full, dropping newest record",
				"frame", uint64(fp.SyncedFrame),
				"dropped", n,
			)
		}
	}
}

// next holds the device only for a single poll
func (tc *ThreadedCamera) next() (frames.FramePoints, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.dev.NextFrame()
}

// Merge forwards records of every input to a single channel which is closed
// once all inputs are closed. Forwarding blocks: backpressure reaches the
// inputs, whose own policy decides what to drop.
func Merge(ctx context.Context, inputs ...<-chan frames.FramePoints) <-chan frames.FramePoints {
	out := make(chan frames.FramePoints, len(inputs))
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan frames.FramePoints) {
			defer wg.Done()
			for fp := range in {
				select {
				case out <- fp:
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
