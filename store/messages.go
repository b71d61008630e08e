// Package store persists tracking results. A single Writer goroutine owns every
// output file; other goroutines talk to it with messages through a Sender.
package store

import (
	"github.com/google/uuid"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
)

// SaveToDiskMsg is a message for the Writer. The set of messages is closed.
type SaveToDiskMsg interface {
	saveToDisk()
}

// KalmanEstimateMsg carries the estimate of one object on one frame.
type KalmanEstimateMsg struct {
	Record mot.EstimateRecord
}

// Data2dDistortedMsg carries raw camera output, before bundling.
type Data2dDistortedMsg struct {
	Frame frames.FramePoints
}

// StartSavingMsg starts a new recording, finishing the current one if any.
type StartSavingMsg struct {
	Config StartSavingConfig
}

// StopSavingMsg finishes the current recording.
type StopSavingMsg struct{}

// TextlogMsg appends a line to the text log.
type TextlogMsg struct {
	Row TextlogRow
}

// TriggerClockInfoMsg appends a sample of the trigger clock model.
type TriggerClockInfoMsg struct {
	Row TriggerClockInfoRow
}

// SetExperimentUUIDMsg sets the experiment identifier. It is remembered between recordings.
type SetExperimentUUIDMsg struct {
	UUID string
}

func (KalmanEstimateMsg) saveToDisk()    {}
func (Data2dDistortedMsg) saveToDisk()   {}
func (StartSavingMsg) saveToDisk()       {}
func (StopSavingMsg) saveToDisk()        {}
func (TextlogMsg) saveToDisk()           {}
func (TriggerClockInfoMsg) saveToDisk()  {}
func (SetExperimentUUIDMsg) saveToDisk() {}

// SinkKind selects storage of the estimates table.
type SinkKind string

const (
	SinkCSV    SinkKind = "csv"
	SinkSQLite SinkKind = "sqlite"
)

// StartSavingConfig describes a recording.
type StartSavingConfig struct {
	// OutDir is created if missing
	OutDir string
	// SessionID is generated when zero
	SessionID uuid.UUID
	FPS       float64
	Cameras   []CamInfoRow
	Params    mot.TrackingParams
	// Calibration is saved verbatim when not empty
	Calibration    []byte
	SaveHistograms bool
	// Archive zips OutDir into OutDir + ".braidz" on stop and removes the directory
	Archive bool
}
