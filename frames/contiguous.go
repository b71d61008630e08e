package frames

import "fmt"

// DefaultMaxFrameGap is the largest gap filled with empty bundles (almost 3 hours at 100 fps).
const DefaultMaxFrameGap = 1_000_000

// Contiguous fills gaps in a stream of bundles with empty bundles.
//
// Only the last emitted frame number is kept as state.
type Contiguous struct {
	last    SyncFno
	started bool
	maxGap  uint64
}

// NewContiguous creates new Contiguous. A forward jump skipping more than
// maxGap frames is a fatal error; zero means DefaultMaxFrameGap.
func NewContiguous(maxGap uint64) *Contiguous {
	if maxGap == 0 {
		maxGap = DefaultMaxFrameGap
	}
	return &Contiguous{maxGap: maxGap}
}

// Next returns the given bundle preceded by empty bundles for every skipped frame.
//
// The reserved frame number is a fatal error: the stream is corrupted.
func (c *Contiguous) Next(b Bundle) ([]Bundle, error) {
	if b.Frame == InvalidSyncFno {
		return nil, &InvariantError{
			Invariant: "representable frame number",
			Frame:     b.Frame,
			Detail:    "reserved frame number received from bundler",
			Err:       ErrInvalidFrame,
		}
	}
	if !c.started || b.Frame <= c.last {
		// Ordering is asserted downstream; nothing to fill here.
		c.started = true
		c.last = b.Frame
		return []Bundle{b}, nil
	}
	gap := uint64(b.Frame - c.last - 1)
	if gap > c.maxGap {
		return nil, &InvariantError{
			Invariant: "bounded frame gap",
			Frame:     b.Frame,
			Detail:    fmt.Sprintf("%d frames skipped after frame %d, at most %d allowed", gap, uint64(c.last), c.maxGap),
			Err:       ErrFrameGap,
		}
	}
	out := make([]Bundle, 0, gap+1)
	for f := c.last + 1; f < b.Frame; f++ {
		out = append(out, NewEmptyBundle(f))
	}
	out = append(out, b)
	c.last = b.Frame
	return out, nil
}
