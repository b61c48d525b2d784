package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRadius is the number of neighbouring transforms averaged on each side
// of a frame when smoothing the camera trajectory.
const DefaultRadius = 15

type Config struct {
	InputPath    string  `yaml:"-"`
	OutputPath   string  `yaml:"-"`
	Radius       int     `yaml:"radius"`
	Backend      string  `yaml:"backend"`
	Codec        string  `yaml:"codec"`
	Quality      int     `yaml:"quality"`
	FPS          float64 `yaml:"fps"` // only used when the input is an image sequence
	Workers      int     `yaml:"workers"`
	ShowStats    bool    `yaml:"show_stats"`
	ReportPath   string  `yaml:"report"`
	LogLevel     string  `yaml:"log_level"`
	LogFormat    string  `yaml:"log_format"`
	BuildVersion string  `yaml:"-"`

	Tracker   TrackerParams   `yaml:"tracker"`
	Estimator EstimatorParams `yaml:"estimator"`
	Enhance   EnhanceParams   `yaml:"enhance"`
}

// TrackerParams controls corner selection and pyramidal Lucas-Kanade tracking.
type TrackerParams struct {
	MaxCorners      int     `yaml:"max_corners"`
	QualityLevel    float64 `yaml:"quality_level"`
	MinDistance     float64 `yaml:"min_distance"`
	BlockSize       int     `yaml:"block_size"`
	WindowSize      int     `yaml:"window_size"`
	MaxLevel        int     `yaml:"max_level"`
	MaxIterations   int     `yaml:"max_iterations"`
	Epsilon         float64 `yaml:"epsilon"`
	MinEigThreshold float64 `yaml:"min_eig_threshold"`
}

// EstimatorParams controls the robust partial affine fit.
type EstimatorParams struct {
	MinPoints        int     `yaml:"min_points"`
	ReprojThreshold  float64 `yaml:"reproj_threshold"`
	Confidence       float64 `yaml:"confidence"`
	MaxIterations    int     `yaml:"max_iterations"`
	RefineIterations int     `yaml:"refine_iterations"`
	Seed             uint64  `yaml:"seed"`
}

type EnhanceParams struct {
	Enabled   bool    `yaml:"enabled"`
	ClipLimit float64 `yaml:"clip_limit"`
	TilesX    int     `yaml:"tiles_x"`
	TilesY    int     `yaml:"tiles_y"`
}

func Default() *Config {
	return &Config{
		Radius:    DefaultRadius,
		Backend:   "native",
		Codec:     "mpeg4",
		FPS:       30,
		Workers:   runtime.NumCPU(),
		LogLevel:  "info",
		LogFormat: "text",
		Tracker: TrackerParams{
			MaxCorners:      200,
			QualityLevel:    0.01,
			MinDistance:     30,
			BlockSize:       3,
			WindowSize:      21,
			MaxLevel:        3,
			MaxIterations:   30,
			Epsilon:         0.01,
			MinEigThreshold: 1e-4,
		},
		Estimator: EstimatorParams{
			MinPoints:        3,
			ReprojThreshold:  3.0,
			Confidence:       0.99,
			MaxIterations:    2000,
			RefineIterations: 10,
			Seed:             1,
		},
		Enhance: EnhanceParams{
			Enabled:   true,
			ClipLimit: 2.0,
			TilesX:    8,
			TilesY:    8,
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputPath) == "" {
		return fmt.Errorf("input path is empty")
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return fmt.Errorf("output path is empty")
	}
	if c.Radius < 0 {
		return fmt.Errorf("radius must be >= 0, got %d", c.Radius)
	}
	switch c.Backend {
	case "native", "opencv":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", c.FPS)
	}

	t := c.Tracker
	if t.MaxCorners < 1 || t.QualityLevel <= 0 || t.MinDistance < 0 || t.BlockSize < 1 {
		return fmt.Errorf("invalid tracker parameters: %+v", t)
	}
	if t.WindowSize < 3 || t.WindowSize%2 == 0 {
		return fmt.Errorf("tracker window size must be odd and >= 3, got %d", t.WindowSize)
	}
	if t.MaxLevel < 0 || t.MaxIterations < 1 {
		return fmt.Errorf("invalid tracker parameters: %+v", t)
	}

	e := c.Estimator
	if e.MinPoints < 2 || e.ReprojThreshold <= 0 || e.MaxIterations < 1 {
		return fmt.Errorf("invalid estimator parameters: %+v", e)
	}
	if e.Confidence <= 0 || e.Confidence >= 1 {
		return fmt.Errorf("estimator confidence must be in (0, 1), got %f", e.Confidence)
	}

	if c.Enhance.Enabled {
		if c.Enhance.ClipLimit <= 0 {
			return fmt.Errorf("clip limit must be positive, got %f", c.Enhance.ClipLimit)
		}
		if c.Enhance.TilesX < 1 || c.Enhance.TilesY < 1 {
			return fmt.Errorf("tile grid must be at least 1x1, got %dx%d", c.Enhance.TilesX, c.Enhance.TilesY)
		}
	}
	return nil
}
