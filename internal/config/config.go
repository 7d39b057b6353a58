// Package config loads sheet-omr settings.
//
// Sources are applied in increasing priority: built-in defaults, a YAML
// file, a .env file, SHEET_OMR_* environment variables and finally whatever
// the caller (usually command-line flags) sets on the returned Config.
package config

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/omr"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "SHEET_OMR_"

// Rect is a crop rectangle in rectified-sheet pixels. The corners may be
// given in either order.
type Rect struct {
	X1 int `yaml:"x1"`
	Y1 int `yaml:"y1"`
	X2 int `yaml:"x2"`
	Y2 int `yaml:"y2"`
}

// Config holds every tunable of a scan.
type Config struct {
	NumQuestions int `yaml:"num_questions"`
	NumChoices   int `yaml:"num_choices"`

	OutputWidth    int   `yaml:"output_width"`
	OutputHeight   int   `yaml:"output_height"`
	PreserveAspect bool  `yaml:"preserve_aspect"`
	Crop           *Rect `yaml:"crop,omitempty"`

	GridMargin float64 `yaml:"grid_margin"`
	CellInset  float64 `yaml:"cell_inset"`

	DarknessThreshold int     `yaml:"darkness_threshold"`
	ThresholdMode     string  `yaml:"threshold_mode"`
	BlackRatio        float64 `yaml:"black_ratio"`

	// Workers bounds classifier concurrency; 0 uses every CPU.
	Workers    int    `yaml:"workers"`
	CornerMode string `yaml:"corner_mode"`

	DetectScales   []float64 `yaml:"detect_scales"`
	Preprocess     bool      `yaml:"preprocess"`
	MedianRadius   float64   `yaml:"median_radius"`
	AdaptiveWindow int       `yaml:"adaptive_window"`
	AdaptiveOffset float64   `yaml:"adaptive_offset"`
	MaxBitErrors   int       `yaml:"max_bit_errors"`

	DebugMarkers   string `yaml:"debug_markers,omitempty"`
	DebugRectified string `yaml:"debug_rectified,omitempty"`
	DebugGrid      string `yaml:"debug_grid,omitempty"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	o := omr.DefaultOptions()
	d := o.Detection
	return &Config{
		NumQuestions:      o.NumQuestions,
		NumChoices:        o.NumChoices,
		OutputWidth:       o.OutputWidth,
		OutputHeight:      o.OutputHeight,
		GridMargin:        o.GridMargin,
		CellInset:         o.CellInset,
		DarknessThreshold: o.DarknessThreshold,
		ThresholdMode:     string(o.ThresholdMode),
		BlackRatio:        o.BlackRatio,
		Workers:           o.Workers,
		CornerMode:        string(o.CornerMode),
		DetectScales:      append([]float64(nil), d.Scales...),
		Preprocess:        d.Preprocess,
		MedianRadius:      d.MedianRadius,
		AdaptiveWindow:    d.AdaptiveWindow,
		AdaptiveOffset:    d.AdaptiveOffset,
		MaxBitErrors:      d.MaxBitErrors,
		LogLevel:          "warn",
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path skips the file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %v", omr.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left alone, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from SHEET_OMR_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	setInt("NUM_QUESTIONS", &c.NumQuestions)
	setInt("NUM_CHOICES", &c.NumChoices)
	setInt("OUTPUT_WIDTH", &c.OutputWidth)
	setInt("OUTPUT_HEIGHT", &c.OutputHeight)
	setBool("PRESERVE_ASPECT", &c.PreserveAspect)
	setFloat("GRID_MARGIN", &c.GridMargin)
	setFloat("CELL_INSET", &c.CellInset)
	setInt("DARKNESS_THRESHOLD", &c.DarknessThreshold)
	setString("THRESHOLD_MODE", &c.ThresholdMode)
	setFloat("BLACK_RATIO", &c.BlackRatio)
	setInt("WORKERS", &c.Workers)
	setString("CORNER_MODE", &c.CornerMode)
	setBool("PREPROCESS", &c.Preprocess)
	setFloat("MEDIAN_RADIUS", &c.MedianRadius)
	setInt("ADAPTIVE_WINDOW", &c.AdaptiveWindow)
	setFloat("ADAPTIVE_OFFSET", &c.AdaptiveOffset)
	setInt("MAX_BIT_ERRORS", &c.MaxBitErrors)
	setString("DEBUG_MARKERS", &c.DebugMarkers)
	setString("DEBUG_RECTIFIED", &c.DebugRectified)
	setString("DEBUG_GRID", &c.DebugGrid)
	setString("LOG_LEVEL", &c.LogLevel)

	if v, ok := get("DETECT_SCALES"); ok {
		scales, err := ParseScales(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDETECT_SCALES: %w", EnvPrefix, err))
		} else {
			c.DetectScales = scales
		}
	}
	if v, ok := get("CROP"); ok {
		r, err := ParseRect(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCROP: %w", EnvPrefix, err))
		} else {
			c.Crop = r
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", omr.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseScales parses a comma separated list such as "1,0.5".
func ParseScales(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid scale %q", part)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scales in %q", s)
	}
	return out, nil
}

// ParseRect parses "x1,y1,x2,y2".
func ParseRect(s string) (*Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("crop must be x1,y1,x2,y2, got %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid crop coordinate %q", p)
		}
		v[i] = n
	}
	return &Rect{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Options converts the configuration to pipeline options.
func (c *Config) Options() omr.Options {
	o := omr.DefaultOptions()
	o.NumQuestions = c.NumQuestions
	o.NumChoices = c.NumChoices
	o.OutputWidth = c.OutputWidth
	o.OutputHeight = c.OutputHeight
	o.PreserveAspect = c.PreserveAspect
	if c.Crop != nil {
		r := image.Rect(c.Crop.X1, c.Crop.Y1, c.Crop.X2, c.Crop.Y2)
		o.Crop = &r
	}
	o.GridMargin = c.GridMargin
	o.CellInset = c.CellInset
	o.DarknessThreshold = c.DarknessThreshold
	o.ThresholdMode = omr.ThresholdMode(c.ThresholdMode)
	o.BlackRatio = c.BlackRatio
	o.Workers = c.Workers
	o.CornerMode = omr.CornerMode(c.CornerMode)

	o.Detection = detection.DefaultOptions()
	o.Detection.Scales = append([]float64(nil), c.DetectScales...)
	o.Detection.Preprocess = c.Preprocess
	o.Detection.MedianRadius = c.MedianRadius
	o.Detection.AdaptiveWindow = c.AdaptiveWindow
	o.Detection.AdaptiveOffset = c.AdaptiveOffset
	o.Detection.MaxBitErrors = c.MaxBitErrors

	o.DebugMarkersPath = c.DebugMarkers
	o.DebugRectifiedPath = c.DebugRectified
	o.DebugGridPath = c.DebugGrid
	return o
}

// Validate checks the configuration. Errors wrap omr.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Crop != nil {
		r := image.Rect(c.Crop.X1, c.Crop.Y1, c.Crop.X2, c.Crop.Y2)
		if r.Empty() {
			return fmt.Errorf("%w: crop rectangle %v has no area", omr.ErrInvalidConfig, r)
		}
	}
	if c.MaxBitErrors < 0 || c.MaxBitErrors > 1 {
		return fmt.Errorf("%w: max_bit_errors must be 0 or 1, got %d", omr.ErrInvalidConfig, c.MaxBitErrors)
	}
	if c.AdaptiveWindow < 0 {
		return fmt.Errorf("%w: adaptive_window must not be negative, got %d", omr.ErrInvalidConfig, c.AdaptiveWindow)
	}
	if len(c.DetectScales) == 0 {
		return fmt.Errorf("%w: detect_scales must not be empty", omr.ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", omr.ErrInvalidConfig, c.LogLevel)
	}
	return c.Options().Validate()
}
