package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
)

// ErrListener is wrapped by every ListenerError.
var ErrListener = errors.New("live listener failed")

// ErrListenerClosed is returned by listeners which were closed by their owner.
var ErrListenerClosed = errors.New("listener closed")

// LiveMessageKind is the kind of a live message
type LiveMessageKind uint8

const (
	// KindCalibration carries the YAML calibration of every camera
	KindCalibration LiveMessageKind = iota
	// KindBirth carries the state of a newly created object
	KindBirth
	// KindUpdate carries the state of an object updated by observations
	KindUpdate
	// KindDeath carries the id of a removed object
	KindDeath
	// KindEndOfFrame closes the messages of a frame
	KindEndOfFrame
)

func (k LiveMessageKind) String() string {
	switch k {
	case KindCalibration:
		return "calibration"
	case KindBirth:
		return "birth"
	case KindUpdate:
		return "update"
	case KindDeath:
		return "death"
	case KindEndOfFrame:
		return "end_of_frame"
	default:
		return fmt.Sprintf("LiveMessageKind(%d)", uint8(k))
	}
}

// LiveMessage is a single message pushed to live listeners.
type LiveMessage struct {
	Kind  LiveMessageKind
	Frame frames.SyncFno
	// TriggerTimestamp is zero when the frame has no trigger time
	TriggerTimestamp time.Time
	// Calibration is set for KindCalibration only
	Calibration []byte
	// Object is set for KindBirth and KindUpdate
	Object mot.ObjectState
	// ObjID is set for KindBirth, KindUpdate and KindDeath
	ObjID uint32
}

// Listener receives live messages. Send is called from the tracking loop, one
// listener after another: a blocking listener stalls tracking.
type Listener interface {
	Send(ctx context.Context, msg LiveMessage) error
}

// ListenerError reports which listener failed.
type ListenerError struct {
	Index int
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("coord: listener %d: %v", e.Index, e.Err)
}

func (e *ListenerError) Unwrap() []error {
	return []error{ErrListener, e.Err}
}

// ChanListener delivers every message over a bounded channel. Send blocks while
// the channel is full, so a slow reader slows tracking down and nothing is lost.
type ChanListener struct {
	mu     sync.RWMutex
	ch     chan LiveMessage
	closed bool
}

// NewChanListener creates new ChanListener
func NewChanListener(depth int) *ChanListener {
	if depth < 0 {
		depth = 0
	}
	return &ChanListener{ch: make(chan LiveMessage, depth)}
}

// Messages returns the receiving side. It is closed by Close.
func (l *ChanListener) Messages() <-chan LiveMessage {
	return l.ch
}

// Send implements Listener
func (l *ChanListener) Send(ctx context.Context, msg LiveMessage) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrListenerClosed
	}
	select {
	case l.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel. Further sends fail with ErrListenerClosed.
func (l *ChanListener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}

// DropNewestListener never blocks: when its channel is full the message is
// dropped, logged and counted.
type DropNewestListener struct {
	*ChanListener
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewDropNewestListener creates new DropNewestListener
func NewDropNewestListener(depth int, logger *slog.Logger) *DropNewestListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &DropNewestListener{
		ChanListener: NewChanListener(depth),
		logger:       logger,
	}
}

// Dropped returns number of dropped messages
func (l *DropNewestListener) Dropped() uint64 {
	return l.dropped.Load()
}

// Send implements Listener
func (l *DropNewestListener) Send(ctx context.Context, msg LiveMessage) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrListenerClosed
	}
	select {
	case l.ch <- msg:
	default:
		n := l.dropped.Add(1)
		l.logger.Warn("coord: listener buffer full, dropping message",
			"kind", msg.Kind.String(),
			"frame", uint64(msg.Frame),
			"dropped", n,
		)
	}
	return nil
}
