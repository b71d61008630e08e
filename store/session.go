package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/LdDl/mot3d-go/hist"
	"github.com/LdDl/mot3d-go/mot"
)

// Names of files in a recording directory
const (
	KalmanEstimatesCSVFname     = "kalman_estimates.csv"
	KalmanEstimatesSQLiteFname  = "kalman_estimates.sqlite"
	DataAssociationFname        = "data_association.csv"
	Data2dDistortedFname        = "data2d_distorted.csv.gz"
	TextlogFname                = "textlog.csv"
	TriggerClockInfoFname       = "trigger_clock_info.csv"
	ExperimentInfoFname         = "experiment_info.csv"
	CamInfoFname                = "cam_info.csv"
	CalibrationFname            = "calibration.yml"
	BraidMetadataFname          = "braid_metadata.yml"
	ReconstructLatencyHlogFname = "reconstruct_latency_usec.hlog"
	ReprojectionDistHlogFname   = "reprojection_distance_100x_pixels.hlog"
	ArchiveExtension            = ".braidz"
)

// ErrNoOutputDir is returned when recording is started without an output directory.
var ErrNoOutputDir = errors.New("output directory is not set")

// BraidMetadataSchema is the version of the recording layout
const BraidMetadataSchema = 1

// BraidMetadata describes a recording.
type BraidMetadata struct {
	Schema         int                `yaml:"schema"`
	SessionID      string             `yaml:"session_id"`
	ExperimentUUID string             `yaml:"experiment_uuid,omitempty"`
	CreatedAt      time.Time          `yaml:"created_at"`
	FPS            float64            `yaml:"fps"`
	EstimatesSink  SinkKind           `yaml:"estimates_sink"`
	Cameras        map[string]int     `yaml:"cameras"`
	TrackingParams mot.TrackingParams `yaml:"tracking_params"`
}

// session holds every open file of a recording.
type session struct {
	cfg        StartSavingConfig
	fileStart  time.Time
	estimates  *OrderingWriter
	dataAssoc  *CSVSink[mot.DataAssocRow]
	data2d     *CSVSink[Data2dDistortedRow]
	textlog    *CSVSink[TextlogRow]
	clockInfo  *CSVSink[TriggerClockInfoRow]
	experiment *CSVSink[ExperimentInfoRow]
	latency    *hist.Recorder
	reprojDist *hist.Recorder
	closers    []func() error
}

func openSession(cfg StartSavingConfig, opts Options, experimentUUID string, now time.Time) (s *session, err error) {
	if cfg.OutDir == "" {
		return nil, ErrNoOutputDir
	}
	if cfg.SessionID == uuid.Nil {
		cfg.SessionID = uuid.New()
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "can't create output directory")
	}
	s = &session{
		cfg:       cfg,
		fileStart: now,
	}
	defer func() {
		if err != nil {
			s.abort()
		}
	}()

	var estimatesSink RowSink[mot.KalmanEstimatesRow]
	switch opts.Sink {
	case SinkSQLite:
		estimatesSink, err = NewSQLiteEstimateSink(filepath.Join(cfg.OutDir, KalmanEstimatesSQLiteFname))
	default:
		estimatesSink, err = CreateCSV(filepath.Join(cfg.OutDir, KalmanEstimatesCSVFname), EstimatesCodec)
	}
	if err != nil {
		return s, err
	}
	s.estimates = NewOrderingWriter(estimatesSink, opts.BufferFrames)
	s.closers = append(s.closers, s.estimates.Close)

	if s.dataAssoc, err = CreateCSV(filepath.Join(cfg.OutDir, DataAssociationFname), DataAssocCodec); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.dataAssoc.Close)
	if s.data2d, err = CreateCSVGzip(filepath.Join(cfg.OutDir, Data2dDistortedFname), Data2dCodec); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.data2d.Close)
	if s.textlog, err = CreateCSV(filepath.Join(cfg.OutDir, TextlogFname), TextlogCodec); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.textlog.Close)
	if s.clockInfo, err = CreateCSV(filepath.Join(cfg.OutDir, TriggerClockInfoFname), TriggerClockInfoCodec); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.clockInfo.Close)

	if s.experiment, err = CreateCSV(filepath.Join(cfg.OutDir, ExperimentInfoFname), ExperimentInfoCodec); err != nil {
		return s, err
	}
	s.closers = append(s.closers, s.experiment.Close)
	if experimentUUID != "" {
		if err = s.experiment.WriteRow(ExperimentInfoRow{UUID: experimentUUID}); err != nil {
			return s, errors.Wrap(err, "can't write experiment info")
		}
	}
	if err = writeTable(filepath.Join(cfg.OutDir, CamInfoFname), CamInfoCodec, cfg.Cameras); err != nil {
		return s, err
	}
	if len(cfg.Calibration) > 0 {
		if err = os.WriteFile(filepath.Join(cfg.OutDir, CalibrationFname), cfg.Calibration, 0o644); err != nil {
			return s, errors.Wrap(err, "can't write calibration")
		}
	}
	if err = s.writeMetadata(opts.Sink, experimentUUID); err != nil {
		return s, err
	}

	if cfg.SaveHistograms {
		s.latency = hist.NewRecorder(now, hist.DefaultHighest, hist.DefaultSigFigs)
		s.reprojDist = hist.NewRecorder(now, hist.DefaultHighest, hist.DefaultSigFigs)
	}

	err = s.textlog.WriteRow(TextlogRow{
		MainloopTimestamp: now,
		CamID:             "",
		HostTimestamp:     now,
		Message:           fmt.Sprintf("recording %s started, fps %g", cfg.SessionID, cfg.FPS),
	})
	if err != nil {
		return s, errors.Wrap(err, "can't write textlog")
	}
	return s, nil
}

// writeTable writes a whole table at once
func writeTable[T any](path string, codec CSVCodec[T], rows []T) error {
	sink, err := CreateCSV(path, codec)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := sink.WriteRow(row); err != nil {
			sink.Close()
			return errors.Wrapf(err, "can't write %s", filepath.Base(path))
		}
	}
	return sink.Close()
}

func (s *session) writeMetadata(sink SinkKind, experimentUUID string) error {
	if sink == "" {
		sink = SinkCSV
	}
	cameras := make(map[string]int, len(s.cfg.Cameras))
	for _, cam := range s.cfg.Cameras {
		cameras[cam.CamID] = int(cam.CamNum)
	}
	meta := BraidMetadata{
		Schema:         BraidMetadataSchema,
		SessionID:      s.cfg.SessionID.String(),
		ExperimentUUID: experimentUUID,
		CreatedAt:      s.fileStart,
		FPS:            s.cfg.FPS,
		EstimatesSink:  sink,
		Cameras:        cameras,
		TrackingParams: s.cfg.Params,
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "can't encode metadata")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(s.cfg.OutDir, BraidMetadataFname), data, 0o644), "can't write metadata")
}

func (s *session) writeEstimate(record mot.EstimateRecord, now time.Time) error {
	if err := s.estimates.Write(record.Row); err != nil {
		return err
	}
	for _, row := range record.DataAssoc {
		if err := s.dataAssoc.WriteRow(row); err != nil {
			return errors.Wrap(err, "can't write data association")
		}
	}
	if s.latency != nil && !record.Row.Timestamp.IsZero() {
		s.latency.Record(now.Sub(record.Row.Timestamp).Microseconds(), now)
	}
	if s.reprojDist != nil && record.HasReprojDist {
		s.reprojDist.Record(int64(record.MeanReprojDist100x), now)
	}
	return nil
}

// finish closes every file, saves histograms and archives the directory when asked.
func (s *session) finish(now time.Time, logger *slog.Logger) error {
	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	if s.latency != nil {
		s.latency.Finish(now)
		if err := s.latency.SaveFile(filepath.Join(s.cfg.OutDir, ReconstructLatencyHlogFname)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.reprojDist != nil {
		s.reprojDist.Finish(now)
		if err := s.reprojDist.SaveFile(filepath.Join(s.cfg.OutDir, ReprojectionDistHlogFname)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if s.cfg.Archive {
		archive := filepath.Clean(s.cfg.OutDir) + ArchiveExtension
		if err := ZipDir(s.cfg.OutDir, archive); err != nil {
			return err
		}
		if err := os.RemoveAll(s.cfg.OutDir); err != nil {
			return errors.Wrap(err, "can't remove archived directory")
		}
		logger.Info("store: recording archived", "path", archive)
	}
	return nil
}

// abort closes what is open, ignoring errors
func (s *session) abort() {
	for _, closeFn := range s.closers {
		closeFn()
	}
	s.closers = nil
}
