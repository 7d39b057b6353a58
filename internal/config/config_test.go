package config

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/sheet-omr/internal/omr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultMatchesPipelineDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	o := cfg.Options()
	def := omr.DefaultOptions()
	assert.Equal(t, def.NumQuestions, o.NumQuestions)
	assert.Equal(t, def.NumChoices, o.NumChoices)
	assert.Equal(t, def.OutputWidth, o.OutputWidth)
	assert.Equal(t, def.OutputHeight, o.OutputHeight)
	assert.Equal(t, def.BlackRatio, o.BlackRatio)
	assert.Equal(t, def.DarknessThreshold, o.DarknessThreshold)
	assert.Equal(t, def.ThresholdMode, o.ThresholdMode)
	assert.Equal(t, def.CornerMode, o.CornerMode)
	assert.Equal(t, def.Detection, o.Detection)
	assert.Nil(t, o.Crop)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "omr.yaml", `
num_questions: 20
num_choices: 5
preserve_aspect: true
crop: {x1: 10, y1: 20, x2: 700, y2: 900}
threshold_mode: otsu
black_ratio: 0.25
corner_mode: outer
detect_scales: [1, 0.75, 0.5]
debug_grid: /tmp/grid.png
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.NumQuestions)
	assert.Equal(t, 5, cfg.NumChoices)
	assert.Equal(t, []float64{1, 0.75, 0.5}, cfg.DetectScales)
	// Unset keys keep their defaults.
	assert.Equal(t, 800, cfg.OutputWidth)
	assert.True(t, cfg.Preprocess)

	o := cfg.Options()
	assert.True(t, o.PreserveAspect)
	require.NotNil(t, o.Crop)
	assert.Equal(t, image.Rect(10, 20, 700, 900), *o.Crop)
	assert.Equal(t, omr.ThresholdOtsu, o.ThresholdMode)
	assert.Equal(t, omr.CornerOuter, o.CornerMode)
	assert.Equal(t, 0.25, o.BlackRatio)
	assert.Equal(t, []float64{1, 0.75, 0.5}, o.Detection.Scales)
	assert.Equal(t, "/tmp/grid.png", o.DebugGridPath)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "unknown.yaml", "num_questons: 3\n"))
	assert.ErrorIs(t, err, omr.ErrInvalidConfig)

	_, err = Load(writeFile(t, "bad.yaml", "num_questions: [oops\n"))
	assert.ErrorIs(t, err, omr.ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SHEET_OMR_NUM_QUESTIONS":   "8",
		"SHEET_OMR_NUM_CHOICES":     " 6 ",
		"SHEET_OMR_PRESERVE_ASPECT": "true",
		"SHEET_OMR_BLACK_RATIO":     "0.3",
		"SHEET_OMR_THRESHOLD_MODE":  "otsu",
		"SHEET_OMR_DETECT_SCALES":   "1, 0.5, 0.25",
		"SHEET_OMR_CROP":            "5,5,100,100",
		"SHEET_OMR_LOG_LEVEL":       "debug",
		"SHEET_OMR_WORKERS":         "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 8, cfg.NumQuestions)
	assert.Equal(t, 6, cfg.NumChoices)
	assert.True(t, cfg.PreserveAspect)
	assert.Equal(t, 0.3, cfg.BlackRatio)
	assert.Equal(t, "otsu", cfg.ThresholdMode)
	assert.Equal(t, []float64{1, 0.5, 0.25}, cfg.DetectScales)
	assert.Equal(t, &Rect{X1: 5, Y1: 5, X2: 100, Y2: 100}, cfg.Crop)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0, cfg.Workers, "blank values are ignored")
}

func TestApplyEnvErrors(t *testing.T) {
	env := map[string]string{
		"SHEET_OMR_NUM_QUESTIONS": "many",
		"SHEET_OMR_CROP":          "1,2,3",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	err := cfg.applyEnv(lookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, omr.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SHEET_OMR_NUM_QUESTIONS")
	assert.Contains(t, err.Error(), "SHEET_OMR_CROP")
	assert.Equal(t, 5, cfg.NumQuestions)
}

func TestApplyEnvFromProcess(t *testing.T) {
	t.Setenv("SHEET_OMR_CORNER_MODE", "outer")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "outer", cfg.CornerMode)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	t.Setenv("SHEET_OMR_NUM_CHOICES", "7")
	path := writeFile(t, ".env", "SHEET_OMR_NUM_CHOICES=3\nSHEET_OMR_GRID_MARGIN=0.1\n")
	t.Cleanup(func() { os.Unsetenv("SHEET_OMR_GRID_MARGIN") })
	require.NoError(t, LoadDotEnv(path))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 7, cfg.NumChoices, "process environment wins over .env")
	assert.Equal(t, 0.1, cfg.GridMargin)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero questions", func(c *Config) { c.NumQuestions = 0 }},
		{"too many choices", func(c *Config) { c.NumChoices = 27 }},
		{"black ratio", func(c *Config) { c.BlackRatio = 1.5 }},
		{"threshold mode", func(c *Config) { c.ThresholdMode = "adaptive" }},
		{"corner mode", func(c *Config) { c.CornerMode = "inner" }},
		{"empty crop", func(c *Config) { c.Crop = &Rect{X1: 10, Y1: 10, X2: 10, Y2: 50} }},
		{"bit errors", func(c *Config) { c.MaxBitErrors = 2 }},
		{"no scales", func(c *Config) { c.DetectScales = nil }},
		{"negative scale", func(c *Config) { c.DetectScales = []float64{1, -0.5} }},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"adaptive window", func(c *Config) { c.AdaptiveWindow = -1 }},
		{"NaN black ratio", func(c *Config) { c.BlackRatio = math.NaN() }},
		{"NaN grid margin", func(c *Config) { c.GridMargin = math.NaN() }},
		{"NaN cell inset", func(c *Config) { c.CellInset = math.NaN() }},
		{"NaN scale", func(c *Config) { c.DetectScales = []float64{math.NaN()} }},
		{"NaN median radius", func(c *Config) { c.MedianRadius = math.NaN() }},
		{"infinite adaptive offset", func(c *Config) { c.AdaptiveOffset = math.Inf(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, omr.ErrInvalidConfig)
			assert.Equal(t, omr.KindConfiguration, omr.KindOf(err))
		})
	}
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("300, 400, 10, 20")
	require.NoError(t, err)
	assert.Equal(t, &Rect{X1: 300, Y1: 400, X2: 10, Y2: 20}, r)

	cfg := Default()
	cfg.Crop = r
	require.NoError(t, cfg.Validate(), "reversed corners are normalized")
	require.NotNil(t, cfg.Options().Crop)
	assert.Equal(t, image.Rect(10, 20, 300, 400), *cfg.Options().Crop)

	_, err = ParseRect("1,2,x,4")
	assert.Error(t, err)
}

func TestParseScales(t *testing.T) {
	s, err := ParseScales("1,,0.5,")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5}, s)

	_, err = ParseScales(" , ")
	assert.Error(t, err)
	_, err = ParseScales("1,half")
	assert.Error(t, err)
}

func TestValidateRejectsNotANumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvPrefix+"BLACK_RATIO" {
			return "NaN", true
		}
		return "", false
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup), "NaN parses as a float")
	assert.ErrorIs(t, cfg.Validate(), omr.ErrInvalidConfig)

	path := writeFile(t, "nan.yaml", "grid_margin: .nan\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(cfg.GridMargin))
	assert.ErrorIs(t, cfg.Validate(), omr.ErrInvalidConfig)
}
