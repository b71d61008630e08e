package mot

import (
	"fmt"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

func (m MatchingAlgorithm) String() string {
	switch m {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("MatchingAlgorithm(%d)", uint16(m))
	}
}

// MarshalText implements encoding.TextMarshaler
func (m MatchingAlgorithm) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *MatchingAlgorithm) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hungarian", "":
		*m = MatchingAlgorithmHungarian
	case "greedy":
		*m = MatchingAlgorithmGreedy
	default:
		return fmt.Errorf("unknown matching algorithm %q", string(text))
	}
	return nil
}

// TrackingParams holds every tunable of the tracker.
type TrackingParams struct {
	// Scale of the constant velocity model process noise
	MotionNoiseScale float64 `yaml:"motion_noise_scale"`
	// Initial standard deviation of position and velocity of newborn objects
	InitialPositionStd float64 `yaml:"initial_position_std"`
	InitialVelStd      float64 `yaml:"initial_vel_std"`
	// Observation noise variance, in pixels
	EkfObservationCovariancePixels float64 `yaml:"ekf_observation_covariance_pixels"`
	// Gating threshold: maximum reprojection distance (pixels) for a detection to be matched to an object
	AcceptReprojectionDistance float64 `yaml:"accept_reprojection_distance"`
	// Maximum reprojection distance (pixels) of every camera for a birth hypothesis
	HypothesisTestMaxAcceptableError float64 `yaml:"hypothesis_test_max_acceptable_error"`
	// Minimum number of cameras for a birth hypothesis
	MinimumNumberOfCameras int `yaml:"minimum_number_of_cameras"`
	// Object dies when it was not observed for more than this number of consecutive frames
	MaxFramesNoObservation int `yaml:"max_frames_no_observation"`
	// Number of observed frames before a provisional object becomes alive
	NumObservationsToVisibility int `yaml:"num_observations_to_visibility"`
	// Algorithm to use for matching
	Matching MatchingAlgorithm `yaml:"matching"`
}

// DefaultTrackingParams returns default tracking parameters
func DefaultTrackingParams() TrackingParams {
	return TrackingParams{
		MotionNoiseScale:                 0.1,
		InitialPositionStd:               0.1,
		InitialVelStd:                    1.0,
		EkfObservationCovariancePixels:   1.0,
		AcceptReprojectionDistance:       10.0,
		HypothesisTestMaxAcceptableError: 20.0,
		MinimumNumberOfCameras:           2,
		MaxFramesNoObservation:           10,
		NumObservationsToVisibility:      3,
		Matching:                         MatchingAlgorithmHungarian,
	}
}

// Validate checks parameters for consistency
func (p TrackingParams) Validate() error {
	switch {
	case p.MotionNoiseScale < 0:
		return fmt.Errorf("motion_noise_scale must be non-negative, got %v", p.MotionNoiseScale)
	case p.InitialPositionStd <= 0 || p.InitialVelStd <= 0:
		return fmt.Errorf("initial standard deviations must be positive")
	case p.EkfObservationCovariancePixels <= 0:
		return fmt.Errorf("ekf_observation_covariance_pixels must be positive, got %v", p.EkfObservationCovariancePixels)
	case p.AcceptReprojectionDistance <= 0:
		return fmt.Errorf("accept_reprojection_distance must be positive, got %v", p.AcceptReprojectionDistance)
	case p.HypothesisTestMaxAcceptableError <= 0:
		return fmt.Errorf("hypothesis_test_max_acceptable_error must be positive, got %v", p.HypothesisTestMaxAcceptableError)
	case p.MinimumNumberOfCameras < 2:
		return fmt.Errorf("minimum_number_of_cameras must be at least 2 to triangulate, got %d", p.MinimumNumberOfCameras)
	case p.MaxFramesNoObservation < 0:
		return fmt.Errorf("max_frames_no_observation must be non-negative, got %d", p.MaxFramesNoObservation)
	case p.NumObservationsToVisibility < 1:
		return fmt.Errorf("num_observations_to_visibility must be at least 1, got %d", p.NumObservationsToVisibility)
	case p.Matching > MatchingAlgorithmGreedy:
		return fmt.Errorf("unknown matching algorithm %v", p.Matching)
	}
	return nil
}
