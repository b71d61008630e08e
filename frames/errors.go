package frames

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is wrapped by InvariantError when the reserved frame number shows up.
var ErrInvalidFrame = errors.New("invalid synchronized frame number")

// ErrFrameGap is wrapped by InvariantError when frame numbers jump too far ahead.
var ErrFrameGap = errors.New("synchronized frame number jumped too far")

// InvariantError reports a violated stream invariant. It is fatal: the stream
// must not be processed any further.
type InvariantError struct {
	Invariant string
	Frame     SyncFno
	Detail    string
	Err       error
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("invariant %q violated at frame %d", e.Invariant, uint64(e.Frame))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}
