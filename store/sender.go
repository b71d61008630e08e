package store

import (
	"context"
	"errors"
	"sync"
)

// ErrWriterClosed is returned for messages sent after the channel was closed.
var ErrWriterClosed = errors.New("writer closed")

// DefaultChannelDepth is the capacity of the channel between senders and the Writer
const DefaultChannelDepth = 10

// Sender is the sending side of the Writer channel. Send blocks while the channel is full.
// Sender is safe for concurrent use.
type Sender struct {
	mu     sync.RWMutex
	ch     chan SaveToDiskMsg
	closed bool
}

func newSender(depth int) *Sender {
	if depth <= 0 {
		depth = DefaultChannelDepth
	}
	return &Sender{ch: make(chan SaveToDiskMsg, depth)}
}

// Send hands msg to the Writer. It blocks until the Writer accepts msg or ctx is done.
func (s *Sender) Send(ctx context.Context, msg SaveToDiskMsg) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrWriterClosed
	}
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel. The Writer finishes once it has drained the channel.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
