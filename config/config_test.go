package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot3d-go/frames"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/store"
)

const twoCameras = `
cameras:
  - name: left
    k: [1000, 0, 640, 0, 1000, 480, 0, 0, 1]
    r: [1, 0, 0, 0, 1, 0, 0, 0, 1]
    t: [0.5, 0, 5]
  - name: right
    k: [1000, 0, 640, 0, 1000, 480, 0, 0, 1]
    r: [1, 0, 0, 0, 1, 0, 0, 0, 1]
    t: [-0.5, 0, 5]
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(twoCameras))
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.FPS, cfg.FPS)
	assert.Equal(t, want.Writer, cfg.Writer)
	assert.Equal(t, mot.DefaultTrackingParams(), cfg.Tracking)
	assert.Equal(t, store.DefaultBufferFrames, cfg.Writer.BufferFrames)
	require.Len(t, cfg.Cameras, 2)
	assert.Equal(t, "left", cfg.Cameras[0].Name())
}

func TestParseOverrides(t *testing.T) {
	doc := `
fps: 200
expected_cameras: 1
tracking:
  accept_reprojection_distance: 5
  matching: greedy
writer:
  sink: sqlite
  buffer_frames: 50
  archive: true
` + twoCameras
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 200.0, cfg.FPS)
	assert.Equal(t, uint64(frames.DefaultMaxFrameGap), cfg.MaxFrameGap)
	assert.Equal(t, 1, cfg.ExpectedCameras)
	assert.Equal(t, 5.0, cfg.Tracking.AcceptReprojectionDistance)
	assert.Equal(t, mot.MatchingAlgorithmGreedy, cfg.Tracking.Matching)
	// untouched tracking fields keep defaults
	assert.Equal(t, mot.DefaultTrackingParams().MaxFramesNoObservation, cfg.Tracking.MaxFramesNoObservation)
	assert.Equal(t, store.SinkSQLite, cfg.Writer.Sink)
	assert.Equal(t, 50, cfg.Writer.BufferFrames)
	assert.Equal(t, store.DefaultChannelDepth, cfg.Writer.ChannelDepth)

	opts, err := cfg.CoordinatorOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, opts.System.Len())
	assert.True(t, opts.Archive)
	assert.Equal(t, cfg.MaxFrameGap, opts.MaxFrameGap)
	assert.Equal(t, store.SinkSQLite, opts.Writer.Sink)
	assert.Equal(t, 50, opts.Writer.BufferFrames)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no cameras", "fps: 100\n"},
		{"zero fps", "fps: 0\n" + twoCameras},
		{"unknown sink", "writer:\n  sink: parquet\n" + twoCameras},
		{"too many expected cameras", "expected_cameras: 3\n" + twoCameras},
		{"bad tracking", "tracking:\n  minimum_number_of_cameras: 1\n" + twoCameras},
		{"bad matching", "tracking:\n  matching: auction\n" + twoCameras},
		{"zero buffer", "writer:\n  buffer_frames: 0\n" + twoCameras},
		{"singular intrinsics", "cameras:\n  - name: a\n    k: [0, 0, 0, 0, 0, 0, 0, 0, 0]\n    r: [1, 0, 0, 0, 1, 0, 0, 0, 1]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mot3d.yml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 60\n"+twoCameras), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.FPS)

	system, err := cfg.CameraSystem()
	require.NoError(t, err)
	cam, ok := system.Camera("right")
	require.True(t, ok)
	px, err := cam.Project(mot.Point3{X: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 640, px.X, 1e-9)
	assert.InDelta(t, 480, px.Y, 1e-9)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
