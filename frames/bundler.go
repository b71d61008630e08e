package frames

import (
	"log/slog"
	"slices"
	"time"
)

// Timestamps from different cameras for the same frame should agree within this.
const triggerTimestampTolerance = time.Millisecond

// BundlerOptions configures a Bundler.
type BundlerOptions struct {
	// ExpectedCameras is the number of cameras which contribute to each frame.
	// A bundle is complete (and emitted at once) when this many cameras reported.
	// Zero disables completeness detection.
	ExpectedCameras int
	// MaxPendingFrames is how many newer frames may arrive before an incomplete
	// bundle is emitted anyway. Zero emits a bundle as soon as any newer frame arrives.
	MaxPendingFrames int
	Logger           *slog.Logger
}

// Bundler groups per-camera records into per-frame bundles.
//
// Records for a frame which was already emitted are dropped. The raw records are
// saved before bundling, so nothing is lost permanently.
type Bundler struct {
	opts    BundlerOptions
	logger  *slog.Logger
	pending map[SyncFno]*Bundle
	// ascending frame numbers of pending bundles
	order []SyncFno

	lastEmitted SyncFno
	emittedAny  bool
	dropped     uint64
}

// NewBundler creates new Bundler
func NewBundler(opts BundlerOptions) *Bundler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bundler{
		opts:    opts,
		logger:  logger,
		pending: make(map[SyncFno]*Bundle),
		order:   make([]SyncFno, 0, 4),
	}
}

// Dropped returns number of records dropped because their frame was already emitted.
func (bd *Bundler) Dropped() uint64 {
	return bd.dropped
}

// Push adds a camera record and returns bundles which became ready, in ascending frame order.
func (bd *Bundler) Push(fp FramePoints) []Bundle {
	frame := fp.SyncedFrame
	if bd.emittedAny && frame <= bd.lastEmitted {
		bd.dropped++
		bd.logger.Debug("frames: dropping record for already emitted frame",
			"frame", uint64(frame),
			"camera", fp.CamName,
			"last_emitted", uint64(bd.lastEmitted),
		)
		return nil
	}

	bundle, ok := bd.pending[frame]
	if !ok {
		bundle = &Bundle{Frame: frame, Cams: make([]FramePoints, 0, max(bd.opts.ExpectedCameras, 1))}
		bd.pending[frame] = bundle
		idx, _ := slices.BinarySearch(bd.order, frame)
		bd.order = slices.Insert(bd.order, idx, frame)
	}
	bd.mergeTimestamp(bundle, fp)
	bundle.Cams = append(bundle.Cams, fp)

	// Emit everything up to the newest complete frame, plus anything too old.
	limit := -1
	for i, f := range bd.order {
		if f < frame && uint64(frame-f) > uint64(bd.opts.MaxPendingFrames) {
			limit = i
			continue
		}
		if bd.isComplete(bd.pending[f]) {
			limit = i
		}
	}
	return bd.emitUpTo(limit)
}

// Flush emits all pending bundles. Call it when the input stream ends.
func (bd *Bundler) Flush() []Bundle {
	return bd.emitUpTo(len(bd.order) - 1)
}

func (bd *Bundler) emitUpTo(limit int) []Bundle {
	if limit < 0 {
		return nil
	}
	out := make([]Bundle, 0, limit+1)
	for _, f := range bd.order[:limit+1] {
		bundle := bd.pending[f]
		delete(bd.pending, f)
		bundle.sortCams()
		out = append(out, *bundle)
		bd.lastEmitted = f
		bd.emittedAny = true
	}
	bd.order = bd.order[limit+1:]
	return out
}

func (bd *Bundler) isComplete(bundle *Bundle) bool {
	if bd.opts.ExpectedCameras <= 0 {
		return false
	}
	seen := make(map[string]struct{}, len(bundle.Cams))
	for i := range bundle.Cams {
		seen[bundle.Cams[i].CamName] = struct{}{}
	}
	return len(seen) >= bd.opts.ExpectedCameras
}

func (bd *Bundler) mergeTimestamp(bundle *Bundle, fp FramePoints) {
	ts := fp.TriggerTimestamp
	if ts.IsZero() {
		return
	}
	if bundle.TriggerTimestamp.IsZero() {
		bundle.TriggerTimestamp = ts
		return
	}
	diff := ts.Sub(bundle.TriggerTimestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff > triggerTimestampTolerance {
		bd.logger.Error("frames: multiple trigger timestamps not within 1 ms",
			"frame", uint64(fp.SyncedFrame),
			"camera", fp.CamName,
			"first", bundle.TriggerTimestamp,
			"other", ts,
		)
	}
}
