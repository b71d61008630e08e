// Package config loads the tracker configuration from YAML.
package config

import (
	"log/slog"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/LdDl/mot3d-go/coord"
	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/store"
)

// WriterConfig configures saving of recordings
type WriterConfig struct {
	// Number of distinct frames buffered to sort estimates
	BufferFrames int `yaml:"buffer_frames"`
	// Capacity of the channel to the writer
	ChannelDepth int            `yaml:"channel_depth"`
	Sink         store.SinkKind `yaml:"sink"`
	// Save a NaN row for camera frames without detections
	SaveEmptyData2d bool `yaml:"save_empty_data2d"`
	// Zip every finished recording into a single .braidz file
	Archive bool `yaml:"archive"`
}

// Config is the top-level structure of the configuration file
type Config struct {
	FPS float64 `yaml:"fps"`
	// Cameras reporting each frame; 0 means every configured camera
	ExpectedCameras  int                  `yaml:"expected_cameras"`
	MaxPendingFrames int                  `yaml:"max_pending_frames"`
	MaxFrameGap      uint64               `yaml:"max_frame_gap"`
	CaptureBuffer    int                  `yaml:"capture_buffer"`
	Histograms       bool                 `yaml:"histograms"`
	Tracking         mot.TrackingParams   `yaml:"tracking"`
	Writer           WriterConfig         `yaml:"writer"`
	Cameras          []*mot.PinholeCamera `yaml:"cameras"`
}

// Default returns configuration with every default applied and no cameras
func Default() Config {
	return Config{
		FPS:              100,
		MaxPendingFrames: 1,
		MaxFrameGap:      frames.DefaultMaxFrameGap,
		CaptureBuffer:    10,
		Histograms:       true,
		Tracking:         mot.DefaultTrackingParams(),
		Writer: WriterConfig{
			BufferFrames: store.DefaultBufferFrames,
			ChannelDepth: store.DefaultChannelDepth,
			Sink:         store.SinkCSV,
		},
	}
}

// Load reads configuration file. Omitted fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "can't read config")
	}
	return Parse(data)
}

// Parse decodes and validates configuration
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "can't decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration for consistency
func (cfg Config) Validate() error {
	if cfg.FPS <= 0 || math.IsNaN(cfg.FPS) || math.IsInf(cfg.FPS, 0) {
		return errors.Errorf("fps must be positive, got %v", cfg.FPS)
	}
	if err := cfg.Tracking.Validate(); err != nil {
		return errors.Wrap(err, "invalid tracking parameters")
	}
	if len(cfg.Cameras) == 0 {
		return errors.New("no cameras configured")
	}
	for i, cam := range cfg.Cameras {
		if cam == nil || cam.Name() == "" {
			return errors.Errorf("camera %d has no name", i)
		}
	}
	if cfg.ExpectedCameras < 0 || cfg.ExpectedCameras > len(cfg.Cameras) {
		return errors.Errorf("expected_cameras must be between 0 and %d, got %d", len(cfg.Cameras), cfg.ExpectedCameras)
	}
	if cfg.MaxPendingFrames < 1 {
		return errors.Errorf("max_pending_frames must be positive, got %d", cfg.MaxPendingFrames)
	}
	if cfg.CaptureBuffer < 1 {
		return errors.Errorf("capture_buffer must be positive, got %d", cfg.CaptureBuffer)
	}
	if cfg.Writer.BufferFrames < 1 {
		return errors.Errorf("writer.buffer_frames must be positive, got %d", cfg.Writer.BufferFrames)
	}
	if cfg.Writer.ChannelDepth < 1 {
		return errors.Errorf("writer.channel_depth must be positive, got %d", cfg.Writer.ChannelDepth)
	}
	switch cfg.Writer.Sink {
	case store.SinkCSV, store.SinkSQLite:
	default:
		return errors.Errorf("unknown writer.sink %q", cfg.Writer.Sink)
	}
	return nil
}

// CameraSystem builds the camera system of configured cameras
func (cfg Config) CameraSystem() (*mot.CameraSystem, error) {
	cams := make([]mot.Camera, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		cams = append(cams, cam)
	}
	return mot.NewCameraSystem(cams...)
}

// WriterOptions converts writer section to store options
func (cfg Config) WriterOptions(logger *slog.Logger) store.Options {
	return store.Options{
		ChannelDepth:    cfg.Writer.ChannelDepth,
		BufferFrames:    cfg.Writer.BufferFrames,
		Sink:            cfg.Writer.Sink,
		SaveEmptyData2d: cfg.Writer.SaveEmptyData2d,
		Logger:          logger,
	}
}

// CoordinatorOptions converts configuration to coordinator options
func (cfg Config) CoordinatorOptions(logger *slog.Logger) (coord.Options, error) {
	system, err := cfg.CameraSystem()
	if err != nil {
		return coord.Options{}, err
	}
	return coord.Options{
		System:           system,
		Params:           cfg.Tracking,
		FPS:              cfg.FPS,
		ExpectedCameras:  cfg.ExpectedCameras,
		MaxPendingFrames: cfg.MaxPendingFrames,
		MaxFrameGap:      cfg.MaxFrameGap,
		SaveHistograms:   cfg.Histograms,
		Archive:          cfg.Writer.Archive,
		Writer:           cfg.WriterOptions(logger),
		Logger:           logger,
	}, nil
}
