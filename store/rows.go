package store

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
)

// Data2dDistortedRow is a single raw detection as received from a camera.
type Data2dDistortedRow struct {
	CamNum               frames.CamNum
	Frame                frames.SyncFno
	Timestamp            time.Time
	CamReceivedTimestamp time.Time
	DeviceTimestamp      uint64
	BlockID              uint64
	X                    float64
	Y                    float64
	Area                 float64
	Slope                float64
	Eccentricity         float64
	FramePtIdx           uint8
	CurVal               uint8
	MeanVal              float64
	SumSqfVal            float64
}

// Data2dRows converts raw camera output to rows. A record without detections gives
// a single NaN row when saveEmpty is set and no rows otherwise.
func Data2dRows(fp frames.FramePoints, saveEmpty bool) []Data2dDistortedRow {
	base := Data2dDistortedRow{
		CamNum:               fp.CamNum,
		Frame:                fp.SyncedFrame,
		Timestamp:            fp.TriggerTimestamp,
		CamReceivedTimestamp: fp.CamReceivedTimestamp,
		DeviceTimestamp:      fp.DeviceTimestamp,
		BlockID:              fp.BlockID,
	}
	if len(fp.Points) == 0 {
		if !saveEmpty {
			return nil
		}
		nan := math.NaN()
		row := base
		row.X, row.Y, row.Area, row.Slope, row.Eccentricity = nan, nan, nan, nan, nan
		row.MeanVal, row.SumSqfVal = nan, nan
		return []Data2dDistortedRow{row}
	}
	rows := make([]Data2dDistortedRow, 0, len(fp.Points))
	for _, pt := range fp.Points {
		row := base
		row.X = pt.X
		row.Y = pt.Y
		row.Area = pt.Area
		row.Slope = pt.Slope
		row.Eccentricity = pt.Eccentricity
		row.FramePtIdx = pt.Idx
		row.CurVal = pt.CurVal
		row.MeanVal = pt.MeanVal
		row.SumSqfVal = pt.SumSqfVal
		rows = append(rows, row)
	}
	return rows
}

// TextlogRow is a free text message.
type TextlogRow struct {
	MainloopTimestamp time.Time
	CamID             string
	HostTimestamp     time.Time
	Message           string
}

// TriggerClockInfoRow is a single sample of the trigger clock model.
type TriggerClockInfoRow struct {
	StartTimestamp time.Time
	Framecount     int64
	Tcnt           uint8
	StopTimestamp  time.Time
}

// ExperimentInfoRow identifies an experiment.
type ExperimentInfoRow struct {
	UUID string
}

// CamInfoRow maps camera numbers to camera names.
type CamInfoRow struct {
	CamNum frames.CamNum
	CamID  string
}

// CSVCodec describes how rows of type T are laid out in a CSV table.
type CSVCodec[T any] struct {
	Header []string
	Record func(T) []string
}

// formatTime gives seconds since epoch; zero time (absent) is an empty field
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	sec, nsec := t.Unix(), int64(t.Nanosecond())
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
		if nsec > 0 {
			sec--
			nsec = 1e9 - nsec
		}
	}
	return fmt.Sprintf("%s%d.%09d", sign, sec, nsec)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptionalUint(v uint64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(v, 10)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// EstimatesCodec lays out kalman_estimates tables.
var EstimatesCodec = CSVCodec[mot.KalmanEstimatesRow]{
	Header: []string{
		"obj_id", "frame", "timestamp",
		"x", "y", "z", "xvel", "yvel", "zvel",
		"P00", "P01", "P02", "P11", "P12", "P22", "P33", "P44", "P55",
	},
	Record: func(r mot.KalmanEstimatesRow) []string {
		return []string{
			formatUint(uint64(r.ObjID)), formatUint(uint64(r.Frame)), formatTime(r.Timestamp),
			formatFloat(r.X), formatFloat(r.Y), formatFloat(r.Z),
			formatFloat(r.XVel), formatFloat(r.YVel), formatFloat(r.ZVel),
			formatFloat(r.P00), formatFloat(r.P01), formatFloat(r.P02),
			formatFloat(r.P11), formatFloat(r.P12), formatFloat(r.P22),
			formatFloat(r.P33), formatFloat(r.P44), formatFloat(r.P55),
		}
	},
}

// DataAssocCodec lays out data_association tables.
var DataAssocCodec = CSVCodec[mot.DataAssocRow]{
	Header: []string{"obj_id", "frame", "cam_num", "pt_idx"},
	Record: func(r mot.DataAssocRow) []string {
		return []string{
			formatUint(uint64(r.ObjID)), formatUint(uint64(r.Frame)),
			formatUint(uint64(r.CamNum)), formatUint(uint64(r.PtIdx)),
		}
	},
}

// Data2dCodec lays out data2d_distorted tables.
var Data2dCodec = CSVCodec[Data2dDistortedRow]{
	Header: []string{
		"camn", "frame", "timestamp", "cam_received_timestamp", "device_timestamp", "block_id",
		"x", "y", "area", "slope", "eccentricity", "frame_pt_idx", "cur_val", "mean_val", "sumsqf_val",
	},
	Record: func(r Data2dDistortedRow) []string {
		return []string{
			formatUint(uint64(r.CamNum)), formatUint(uint64(r.Frame)),
			formatTime(r.Timestamp), formatTime(r.CamReceivedTimestamp),
			formatOptionalUint(r.DeviceTimestamp), formatOptionalUint(r.BlockID),
			formatFloat(r.X), formatFloat(r.Y), formatFloat(r.Area),
			formatFloat(r.Slope), formatFloat(r.Eccentricity),
			formatUint(uint64(r.FramePtIdx)), formatUint(uint64(r.CurVal)),
			formatFloat(r.MeanVal), formatFloat(r.SumSqfVal),
		}
	},
}

// TextlogCodec lays out textlog tables.
var TextlogCodec = CSVCodec[TextlogRow]{
	Header: []string{"mainloop_timestamp", "cam_id", "host_timestamp", "message"},
	Record: func(r TextlogRow) []string {
		return []string{formatTime(r.MainloopTimestamp), r.CamID, formatTime(r.HostTimestamp), r.Message}
	},
}

// TriggerClockInfoCodec lays out trigger_clock_info tables.
var TriggerClockInfoCodec = CSVCodec[TriggerClockInfoRow]{
	Header: []string{"start_timestamp", "framecount", "tcnt", "stop_timestamp"},
	Record: func(r TriggerClockInfoRow) []string {
		return []string{
			formatTime(r.StartTimestamp), strconv.FormatInt(r.Framecount, 10),
			formatUint(uint64(r.Tcnt)), formatTime(r.StopTimestamp),
		}
	},
}

// ExperimentInfoCodec lays out experiment_info tables.
var ExperimentInfoCodec = CSVCodec[ExperimentInfoRow]{
	Header: []string{"uuid"},
	Record: func(r ExperimentInfoRow) []string {
		return []string{r.UUID}
	},
}

// CamInfoCodec lays out cam_info tables.
var CamInfoCodec = CSVCodec[CamInfoRow]{
	Header: []string{"camn", "cam_id"},
	Record: func(r CamInfoRow) []string {
		return []string{formatUint(uint64(r.CamNum)), r.CamID}
	},
}
