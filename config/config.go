// Package config provides configuration loading and access for the sandbox runtime.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all sandbox configuration parameters.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Depth     DepthConfig     `yaml:"depth"`
	Filter    FilterConfig    `yaml:"filter"`
	Hands     HandsConfig     `yaml:"hands"`
	Water     WaterConfig     `yaml:"water"`
	Rain      RainConfig      `yaml:"rain"`
	Render    RenderConfig    `yaml:"render"`
	Calib     CalibConfig     `yaml:"calib"`
	Control   ControlConfig   `yaml:"control"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// DepthConfig holds depth camera frame settings.
type DepthConfig struct {
	Width  int        `yaml:"width"`  // Depth frame width in pixels
	Height int        `yaml:"height"` // Depth frame height in pixels
	Lens   LensConfig `yaml:"lens"`   // Measured lens distortion (all zero = ideal lens)
}

// LensConfig holds radial and tangential lens distortion coefficients
// measured for the depth camera.
type LensConfig struct {
	Kappa  [3]float64 `yaml:"kappa"`  // Radial terms
	Rho    [2]float64 `yaml:"rho"`    // Tangential terms
	Center [2]float64 `yaml:"center"` // Distortion center in pixel coordinates
}

// FilterConfig holds frame-filter parameters (see filter package).
type FilterConfig struct {
	AveragingSlots  int     `yaml:"averaging_slots"`   // Per-pixel ring depth
	MinValidSamples int     `yaml:"min_valid_samples"` // 0 = averaging_slots/2
	MaxVariance     float64 `yaml:"max_variance"`      // Stability variance gate
	Hysteresis      float64 `yaml:"hysteresis"`        // Output freeze envelope (cm)
	RetainValids    bool    `yaml:"retain_valids"`     // Unstable pixels keep last stable value
	InstableValue   float64 `yaml:"instable_value"`    // Emitted when retain_valids is false
	SpatialFilter   bool    `yaml:"spatial_filter"`    // Two-pass 1-2-1 smoothing
	MinElevation    float64 `yaml:"min_elevation"`     // Valid elevation band above base plane (cm)
	MaxElevation    float64 `yaml:"max_elevation"`
}

// HandsConfig holds hand-extractor parameters.
type HandsConfig struct {
	MaxFgDepth         uint16  `yaml:"max_fg_depth"`          // Foreground depth cutoff (raw units)
	MaxDepthDist       uint16  `yaml:"max_depth_dist"`        // Max raw-depth step inside one blob
	MinBlobSize        int     `yaml:"min_blob_size"`         // Pixel count bounds for a hand candidate
	MaxBlobSize        int     `yaml:"max_blob_size"`
	SnakeLength        int     `yaml:"snake_length"`          // Boundary corner snake length
	MaxCornerEnterDist float64 `yaml:"max_corner_enter_dist"` // Tail-head distance to enter a corner
	MinCenterDist      float64 `yaml:"min_center_dist"`       // Midpoint offset ratio to enter a corner
	MinHandProbability float64 `yaml:"min_hand_probability"`  // Accept threshold for the shape match
}

// WaterConfig holds shallow-water solver parameters.
type WaterConfig struct {
	GridWidth   int     `yaml:"grid_width"`   // Cells along X (0 = depth frame width)
	GridHeight  int     `yaml:"grid_height"`  // Cells along Y (0 = depth frame height)
	Gravity     float64 `yaml:"gravity"`
	Theta       float64 `yaml:"theta"`        // Minmod limiter parameter, in [1,2]
	CFL         float64 `yaml:"cfl"`
	Speed       float64 `yaml:"speed"`        // Simulation seconds per wall-clock second
	MaxSteps    int     `yaml:"max_steps"`    // Per-frame step cap
	Attenuation float64 `yaml:"attenuation"`  // Momentum lost per second, in [0,1)
	DryBoundary bool    `yaml:"dry_boundary"` // Force the outer cell ring dry each step
	Workers     int     `yaml:"workers"`      // Row-parallel solver workers (0 = GOMAXPROCS)
}

// RainConfig holds water source parameters.
type RainConfig struct {
	Strength      float64 `yaml:"strength"`       // Rain depth rate (cm/s) inside an emitter footprint
	HandTTL       float64 `yaml:"hand_ttl"`       // Seconds a hand emitter survives without re-detection
	GlobalDeposit float64 `yaml:"global_deposit"` // Uniform deposit rate while the rain key is held
	Evaporation   float64 `yaml:"evaporation"`    // Uniform removal rate (cm/s), applied every tick
}

// RenderConfig holds rendering parameters.
type RenderConfig struct {
	ContourInterval float64 `yaml:"contour_interval"` // Topographic contour spacing (cm); 0 disables
	WaterOpacity    float64 `yaml:"water_opacity"`    // Max water overlay alpha, in [0,1]
	UseShaders      bool    `yaml:"use_shaders"`      // Disable to fall back to flat texture draws
}

// CalibConfig holds calibration file locations.
type CalibConfig struct {
	BoxLayout          string `yaml:"box_layout"`          // Plane + corner file (empty = synthetic rig)
	ColorMap           string `yaml:"color_map"`           // Elevation color map (empty = built-in)
	ProjectorTransform string `yaml:"projector_transform"` // Binary 4x4 file (empty = identity)
}

// ControlConfig holds the control-pipe settings.
type ControlConfig struct {
	Pipe string `yaml:"pipe"` // FIFO path, "-" for stdin, empty = disabled
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Window length in seconds
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	MinValidSamples int     // Effective filter.min_valid_samples
	GridW, GridH    int     // Effective water grid size
	FrameTime       float64 // Seconds per display frame at target FPS
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// validate rejects parameter combinations the pipeline cannot run with.
func (c *Config) validate() error {
	if c.Depth.Width < 2 || c.Depth.Height < 2 {
		return fmt.Errorf("depth frame size %dx%d too small", c.Depth.Width, c.Depth.Height)
	}
	if c.Filter.AveragingSlots < 1 {
		return fmt.Errorf("filter.averaging_slots must be >= 1, got %d", c.Filter.AveragingSlots)
	}
	if c.Water.Theta < 1 || c.Water.Theta > 2 {
		return fmt.Errorf("water.theta must be in [1,2], got %g", c.Water.Theta)
	}
	if c.Water.Attenuation < 0 || c.Water.Attenuation >= 1 {
		return fmt.Errorf("water.attenuation must be in [0,1), got %g", c.Water.Attenuation)
	}
	if c.Water.CFL <= 0 || c.Water.CFL > 0.5 {
		return fmt.Errorf("water.cfl must be in (0,0.5], got %g", c.Water.CFL)
	}
	if c.Hands.SnakeLength < 3 {
		return fmt.Errorf("hands.snake_length must be >= 3, got %d", c.Hands.SnakeLength)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.MinValidSamples = c.Filter.MinValidSamples
	if c.Derived.MinValidSamples == 0 {
		c.Derived.MinValidSamples = c.Filter.AveragingSlots / 2
	}
	if c.Derived.MinValidSamples < 1 {
		c.Derived.MinValidSamples = 1
	}

	c.Derived.GridW = c.Water.GridWidth
	if c.Derived.GridW == 0 {
		c.Derived.GridW = c.Depth.Width
	}
	c.Derived.GridH = c.Water.GridHeight
	if c.Derived.GridH == 0 {
		c.Derived.GridH = c.Depth.Height
	}

	fps := c.Screen.TargetFPS
	if fps < 1 {
		fps = 30
	}
	c.Derived.FrameTime = 1.0 / float64(fps)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
