package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Options configures a Writer.
type Options struct {
	// ChannelDepth is the capacity of the message channel (default 10)
	ChannelDepth int
	// BufferFrames is the bound of the OrderingWriter (default 1000)
	BufferFrames int
	Sink         SinkKind
	// SaveEmptyData2d saves a NaN row for camera frames without detections
	SaveEmptyData2d bool
	Logger          *slog.Logger
	// Now is the clock used for file start times and latency (default time.Now)
	Now func() time.Time
}

// Writer is the only owner of recording files. It runs in its own goroutine and
// handles messages strictly in the order they were sent.
//
// A failing write is fatal: the recording is aborted, the error is kept and every
// following message is discarded. The channel is still drained so senders never block forever.
type Writer struct {
	opts           Options
	logger         *slog.Logger
	in             <-chan SaveToDiskMsg
	done           chan struct{}
	mu             sync.Mutex
	err            error
	session        *session
	experimentUUID string
}

// NewWriter starts a Writer goroutine and returns it with the Sender feeding it.
// Close the Sender to finish the Writer; then wait on Done.
func NewWriter(opts Options) (*Writer, *Sender) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sink == "" {
		opts.Sink = SinkCSV
	}
	sender := newSender(opts.ChannelDepth)
	w := &Writer{
		opts:   opts,
		logger: opts.Logger,
		in:     sender.ch,
		done:   make(chan struct{}),
	}
	go w.run()
	return w, sender
}

// Done is closed once the Writer has finished.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Err returns the fatal error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Wait blocks until the Writer has finished and returns its fatal error.
func (w *Writer) Wait() error {
	<-w.done
	return w.Err()
}

func (w *Writer) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	w.logger.Error("store: writer failed, discarding further messages", "error", err)
	if w.session != nil {
		w.session.abort()
		w.session = nil
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for msg := range w.in {
		if w.Err() != nil {
			continue
		}
		if err := w.handle(msg); err != nil {
			w.fail(err)
		}
	}
	if w.session != nil && w.Err() == nil {
		if err := w.stopSaving(); err != nil {
			w.fail(err)
		}
	}
}

func (w *Writer) handle(msg SaveToDiskMsg) error {
	switch m := msg.(type) {
	case StartSavingMsg:
		return w.startSaving(m.Config)
	case StopSavingMsg:
		if w.session == nil {
			w.logger.Debug("store: stop requested while not saving")
			return nil
		}
		return w.stopSaving()
	case SetExperimentUUIDMsg:
		w.experimentUUID = m.UUID
		if w.session == nil {
			return nil
		}
		return errors.Wrap(w.session.experiment.WriteRow(ExperimentInfoRow{UUID: m.UUID}), "can't write experiment info")
	}

	if w.session == nil {
		w.logger.Debug("store: not saving, message discarded")
		return nil
	}
	switch m := msg.(type) {
	case KalmanEstimateMsg:
		return w.session.writeEstimate(m.Record, w.opts.Now())
	case Data2dDistortedMsg:
		for _, row := range Data2dRows(m.Frame, w.opts.SaveEmptyData2d) {
			if err := w.session.data2d.WriteRow(row); err != nil {
				return errors.Wrap(err, "can't write data2d")
			}
		}
	case TextlogMsg:
		return errors.Wrap(w.session.textlog.WriteRow(m.Row), "can't write textlog")
	case TriggerClockInfoMsg:
		return errors.Wrap(w.session.clockInfo.WriteRow(m.Row), "can't write trigger clock info")
	default:
		w.logger.Warn("store: unknown message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (w *Writer) startSaving(cfg StartSavingConfig) error {
	if w.session != nil {
		if err := w.stopSaving(); err != nil {
			return err
		}
	}
	s, err := openSession(cfg, w.opts, w.experimentUUID, w.opts.Now())
	if err != nil {
		return errors.Wrapf(err, "can't start saving to %s", cfg.OutDir)
	}
	w.session = s
	w.logger.Info("store: saving started", "dir", cfg.OutDir, "session", s.cfg.SessionID.String())
	return nil
}

func (w *Writer) stopSaving() error {
	s := w.session
	w.session = nil
	if err := s.finish(w.opts.Now(), w.logger); err != nil {
		return errors.Wrapf(err, "can't finish saving to %s", s.cfg.OutDir)
	}
	w.logger.Info("store: saving stopped", "dir", s.cfg.OutDir)
	return nil
}
