// Package coord wires the tracking pipeline together: raw records are saved,
// bundled per frame, made contiguous and fed to the tracker. Results go to the
// writer and to live listeners.
package coord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/store"
)

// Options configures a Coordinator.
type Options struct {
	System *mot.CameraSystem
	Params mot.TrackingParams
	FPS    float64
	// ExpectedCameras is the number of cameras reporting each frame (default: every camera of System)
	ExpectedCameras int
	// MaxPendingFrames is how far ahead a record may be before incomplete frames are processed (default 1)
	MaxPendingFrames int
	// MaxFrameGap is the largest run of missing frames filled with empty bundles (default frames.DefaultMaxFrameGap)
	MaxFrameGap uint64
	// SaveHistograms turns on latency and reprojection histograms for every recording
	SaveHistograms bool
	// Archive zips every finished recording
	Archive bool
	Writer  store.Options
	Logger  *slog.Logger
}

type listenerSlot struct {
	listener Listener
	// calibrated is set once the calibration was delivered
	calibrated bool
}

// Coordinator owns the tracker state, the writer and live listeners.
//
// Run must be called once. Close must be called on every exit path: it finishes
// the writer, flushing every buffered estimate.
type Coordinator struct {
	opts        Options
	logger      *slog.Logger
	collection  mot.CollectionFrameDone
	bundler     *frames.Bundler
	contiguous  *frames.Contiguous
	writer      *store.Writer
	sender      *store.Sender
	calibration []byte
	camNums     map[string]frames.CamNum
	// unknownCams holds names of cameras missing from the camera system which were already reported
	unknownCams map[string]struct{}

	mu        sync.Mutex
	listeners []listenerSlot

	lastFrame frames.SyncFno
	started   bool
	closeOnce sync.Once
	closeErr  error
}

// New creates new Coordinator and starts its writer.
func New(opts Options) (*Coordinator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Writer.Logger == nil {
		opts.Writer.Logger = opts.Logger
	}
	if opts.System == nil {
		return nil, mot.ErrNoCameras
	}
	if opts.ExpectedCameras <= 0 {
		opts.ExpectedCameras = opts.System.Len()
	}
	if opts.MaxPendingFrames <= 0 {
		opts.MaxPendingFrames = 1
	}
	collection, err := mot.NewModelCollection(opts.Params, opts.System, opts.FPS, opts.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "coord: can't create tracker")
	}
	calibration, err := opts.System.Calibration()
	if err != nil {
		return nil, errors.Wrap(err, "coord: can't encode calibration")
	}
	camNums := make(map[string]frames.CamNum, opts.System.Len())
	for i, cam := range opts.System.Cameras() {
		camNums[cam.Name()] = frames.CamNum(i)
	}
	writer, sender := store.NewWriter(opts.Writer)
	return &Coordinator{
		opts:       opts,
		logger:     opts.Logger,
		collection: collection,
		bundler: frames.NewBundler(frames.BundlerOptions{
			ExpectedCameras:  opts.ExpectedCameras,
			MaxPendingFrames: opts.MaxPendingFrames,
			Logger:           opts.Logger,
		}),
		contiguous:  frames.NewContiguous(opts.MaxFrameGap),
		writer:      writer,
		sender:      sender,
		calibration: calibration,
		camNums:     camNums,
		unknownCams: make(map[string]struct{}),
	}, nil
}

// CamNum returns the number under which the named camera is saved. Incoming
// records are renumbered with it, whatever CamNum they carry.
func (c *Coordinator) CamNum(name string) (frames.CamNum, bool) {
	num, ok := c.camNums[name]
	return num, ok
}

// AddListener registers a live listener. It receives the calibration once, before
// any frame: the camera system does not change during the life of a Coordinator.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listenerSlot{listener: l})
}

// Run processes records until in is closed. Closing in is the only way to stop
// Run cleanly; ctx bounds blocking sends only.
//
// Invariant violations, writer failures and listener failures end Run with an error.
func (c *Coordinator) Run(ctx context.Context, in <-chan frames.FramePoints) error {
	if err := c.deliverCalibration(ctx); err != nil {
		return err
	}
	for fp := range in {
		if err := c.ingest(ctx, fp); err != nil {
			return c.fatal(err)
		}
	}
	for _, bundle := range c.bundler.Flush() {
		if err := c.process(ctx, bundle); err != nil {
			return c.fatal(err)
		}
	}
	if dropped := c.bundler.Dropped(); dropped > 0 {
		c.logger.Info("coord: records dropped for already processed frames", "dropped", dropped)
	}
	return c.writer.Err()
}

// Close finishes the writer and returns its error.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.sender.Close()
		c.closeErr = c.writer.Wait()
	})
	return c.closeErr
}

func (c *Coordinator) fatal(err error) error {
	c.logger.Error("coord: stopping", "error", err)
	return err
}

func (c *Coordinator) ingest(ctx context.Context, fp frames.FramePoints) error {
	if num, ok := c.camNums[fp.CamName]; ok {
		fp.CamNum = num
	} else if _, reported := c.unknownCams[fp.CamName]; !reported {
		c.unknownCams[fp.CamName] = struct{}{}
		c.logger.Warn("coord: record from camera missing in calibration",
			"camera", fp.CamName,
			"frame", uint64(fp.SyncedFrame),
		)
	}
	// raw records are saved before bundling, so late records are never lost
	if err := c.sender.Send(ctx, store.Data2dDistortedMsg{Frame: fp.Clone()}); err != nil {
		return errors.Wrap(err, "coord: can't save raw record")
	}
	if fp.SyncedFrame == frames.InvalidSyncFno {
		return &frames.InvariantError{
			Invariant: "representable frame number",
			Frame:     fp.SyncedFrame,
			Detail:    fmt.Sprintf("camera %q sent the reserved frame number", fp.CamName),
			Err:       frames.ErrInvalidFrame,
		}
	}
	for _, bundle := range c.bundler.Push(fp) {
		if err := c.process(ctx, bundle); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) process(ctx context.Context, bundle frames.Bundle) error {
	bundles, err := c.contiguous.Next(bundle)
	if err != nil {
		return err
	}
	for _, b := range bundles {
		if err := c.step(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) step(ctx context.Context, bundle frames.Bundle) error {
	if c.started && bundle.Frame < c.lastFrame {
		return &frames.InvariantError{
			Invariant: "non-decreasing frame order",
			Frame:     bundle.Frame,
			Detail:    fmt.Sprintf("previous frame %d", uint64(c.lastFrame)),
		}
	}
	c.started = true
	c.lastFrame = bundle.Frame
	if err := c.writer.Err(); err != nil {
		return err
	}
	if err := c.deliverCalibration(ctx); err != nil {
		return err
	}

	var result mot.StepResult
	c.collection, result = c.collection.Step(bundle)

	for _, record := range result.Records {
		if err := c.sender.Send(ctx, store.KalmanEstimateMsg{Record: record}); err != nil {
			return errors.Wrapf(err, "coord: can't save estimate of frame %d", uint64(bundle.Frame))
		}
	}
	return c.broadcast(ctx, bundle, result)
}

func (c *Coordinator) broadcast(ctx context.Context, bundle frames.Bundle, result mot.StepResult) error {
	base := LiveMessage{Frame: bundle.Frame, TriggerTimestamp: bundle.TriggerTimestamp}
	msgs := make([]LiveMessage, 0, len(result.Births)+len(result.Updates)+len(result.Deaths)+1)
	for _, obj := range result.Births {
		msg := base
		msg.Kind, msg.Object, msg.ObjID = KindBirth, obj, obj.ID
		msgs = append(msgs, msg)
	}
	for _, obj := range result.Updates {
		msg := base
		msg.Kind, msg.Object, msg.ObjID = KindUpdate, obj, obj.ID
		msgs = append(msgs, msg)
	}
	for _, id := range result.Deaths {
		msg := base
		msg.Kind, msg.ObjID = KindDeath, id
		msgs = append(msgs, msg)
	}
	end := base
	end.Kind = KindEndOfFrame
	msgs = append(msgs, end)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.listeners {
		for _, msg := range msgs {
			if err := c.listeners[i].listener.Send(ctx, msg); err != nil {
				return &ListenerError{Index: i, Err: err}
			}
		}
	}
	return nil
}

// deliverCalibration sends the calibration to listeners which have not got it yet.
func (c *Coordinator) deliverCalibration(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.listeners {
		slot := &c.listeners[i]
		if slot.calibrated {
			continue
		}
		msg := LiveMessage{Kind: KindCalibration, Frame: c.lastFrame, Calibration: c.calibration}
		if err := slot.listener.Send(ctx, msg); err != nil {
			return &ListenerError{Index: i, Err: err}
		}
		slot.calibrated = true
	}
	return nil
}

func (c *Coordinator) camInfo() []store.CamInfoRow {
	rows := make([]store.CamInfoRow, 0, len(c.camNums))
	for _, cam := range c.opts.System.Cameras() {
		rows = append(rows, store.CamInfoRow{CamNum: c.camNums[cam.Name()], CamID: cam.Name()})
	}
	return rows
}

func (c *Coordinator) now() time.Time {
	if c.opts.Writer.Now != nil {
		return c.opts.Writer.Now()
	}
	return time.Now()
}
