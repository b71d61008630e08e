package coord

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/store"
)

// Control sends recording commands to the writer. It is safe for concurrent use
// and may be called while Run is in progress.
type Control struct {
	c *Coordinator
}

// Control returns the recording control handle
func (c *Coordinator) Control() *Control {
	return &Control{c: c}
}

// StartSaving starts a new recording into cfg.OutDir. Fields left empty are
// filled in from the coordinator: cameras, tracking parameters, frame rate and calibration.
//
// Errors which happen later, while files are created, are fatal for the writer
// and returned by Run and Close.
func (ctl *Control) StartSaving(ctx context.Context, cfg store.StartSavingConfig) error {
	if cfg.OutDir == "" {
		return errors.Wrap(store.ErrNoOutputDir, "coord: can't start saving")
	}
	c := ctl.c
	if len(cfg.Cameras) == 0 {
		cfg.Cameras = c.camInfo()
	}
	if cfg.Params == (mot.TrackingParams{}) {
		cfg.Params = c.opts.Params
	}
	if cfg.FPS == 0 {
		cfg.FPS = c.opts.FPS
	}
	if cfg.Calibration == nil {
		cfg.Calibration = c.calibration
	}
	if c.opts.SaveHistograms {
		cfg.SaveHistograms = true
	}
	if c.opts.Archive {
		cfg.Archive = true
	}
	return ctl.send(ctx, store.StartSavingMsg{Config: cfg})
}

// StopSaving finishes the current recording
func (ctl *Control) StopSaving(ctx context.Context) error {
	return ctl.send(ctx, store.StopSavingMsg{})
}

// AppendTextlog saves a free text message into the current recording
func (ctl *Control) AppendTextlog(ctx context.Context, message string) error {
	now := ctl.c.now()
	return ctl.send(ctx, store.TextlogMsg{Row: store.TextlogRow{
		MainloopTimestamp: now,
		HostTimestamp:     now,
		Message:           message,
	}})
}

// AppendCameraTextlog saves a message reported by a single camera
func (ctl *Control) AppendCameraTextlog(ctx context.Context, camID string, hostTimestamp time.Time, message string) error {
	return ctl.send(ctx, store.TextlogMsg{Row: store.TextlogRow{
		MainloopTimestamp: ctl.c.now(),
		CamID:             camID,
		HostTimestamp:     hostTimestamp,
		Message:           message,
	}})
}

// AppendTriggerClockInfo saves a sample of the trigger clock model
func (ctl *Control) AppendTriggerClockInfo(ctx context.Context, row store.TriggerClockInfoRow) error {
	return ctl.send(ctx, store.TriggerClockInfoMsg{Row: row})
}

// SetExperimentUUID sets the experiment identifier of current and following recordings
func (ctl *Control) SetExperimentUUID(ctx context.Context, uuid string) error {
	return ctl.send(ctx, store.SetExperimentUUIDMsg{UUID: uuid})
}

func (ctl *Control) send(ctx context.Context, msg store.SaveToDiskMsg) error {
	if err := ctl.c.sender.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "coord: can't send to writer")
	}
	return nil
}
