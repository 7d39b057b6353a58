package omr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
	"github.com/ironsheep/sheet-omr/internal/imaging"
)

// Options configures one pipeline run. Every field has a default from
// DefaultOptions and may be overridden per call.
type Options struct {
	NumQuestions int
	NumChoices   int

	// OutputWidth and OutputHeight size the rectified sheet. With
	// PreserveAspect the height follows the corner quadrilateral instead.
	OutputWidth    int
	OutputHeight   int
	PreserveAspect bool

	// Crop, when set, is cut from the rectified sheet before the grid is
	// laid out. A crop with no area is rejected.
	Crop *image.Rectangle

	GridMargin float64
	CellInset  float64

	DarknessThreshold int
	ThresholdMode     ThresholdMode
	BlackRatio        float64

	Workers    int
	CornerMode CornerMode

	Detection detection.Options

	// Debug image paths. Empty disables the render.
	DebugMarkersPath   string
	DebugRectifiedPath string
	DebugGridPath      string
}

// DefaultOptions returns the standard 5 question, 4 choice configuration.
func DefaultOptions() Options {
	return Options{
		NumQuestions:      5,
		NumChoices:        4,
		OutputWidth:       800,
		OutputHeight:      1000,
		GridMargin:        0.05,
		DarknessThreshold: 128,
		ThresholdMode:     ThresholdFixed,
		BlackRatio:        0.1,
		CornerMode:        CornerCenter,
		Detection:         detection.DefaultOptions(),
	}
}

// Validate checks the options without touching any image.
func (o Options) Validate() error {
	if o.NumQuestions < 1 {
		return configError("num_questions must be positive, got %d", o.NumQuestions)
	}
	if o.NumChoices < 1 || o.NumChoices > MaxChoices {
		return configError("num_choices must be 1-%d, got %d", MaxChoices, o.NumChoices)
	}
	if o.OutputWidth < 1 || (!o.PreserveAspect && o.OutputHeight < 1) {
		return configError("output size must be positive, got %dx%d", o.OutputWidth, o.OutputHeight)
	}
	if o.Crop != nil && o.Crop.Canon().Empty() {
		return configError("crop rectangle %v has no area", *o.Crop)
	}
	if !inRange(o.GridMargin, 0, 0.5) {
		return configError("grid_margin must be in [0, 0.5), got %g", o.GridMargin)
	}
	if !inRange(o.CellInset, 0, 0.5) {
		return configError("cell_inset must be in [0, 0.5), got %g", o.CellInset)
	}
	if o.DarknessThreshold < 0 || o.DarknessThreshold > 255 {
		return configError("darkness_threshold must be 0-255, got %d", o.DarknessThreshold)
	}
	if !inRange(o.BlackRatio, 0, 1) {
		return configError("black_ratio must be in [0, 1), got %g", o.BlackRatio)
	}
	switch o.ThresholdMode {
	case ThresholdFixed, ThresholdOtsu, "":
	default:
		return configError("unknown threshold_mode %q", o.ThresholdMode)
	}
	switch o.CornerMode {
	case CornerCenter, CornerOuter, "":
	default:
		return configError("unknown corner_mode %q", o.CornerMode)
	}
	for _, s := range o.Detection.Scales {
		if !(s > 0) || math.IsInf(s, 0) {
			return configError("detect_scales must be positive, got %g", s)
		}
	}
	if !inRange(o.Detection.MedianRadius, 0, math.Inf(1)) {
		return configError("median_radius must be a non-negative number, got %g", o.Detection.MedianRadius)
	}
	if math.IsNaN(o.Detection.AdaptiveOffset) || math.IsInf(o.Detection.AdaptiveOffset, 0) {
		return configError("adaptive_offset must be a finite number, got %g", o.Detection.AdaptiveOffset)
	}
	return nil
}

// inRange reports whether lo <= v < hi. NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v < hi
}

// Analysis holds every intermediate product of a run.
type Analysis struct {
	Markers   []detection.Marker
	Corners   geometry.SheetCorners
	Rectified *image.NRGBA
	Level     uint8
	Cells     []Cell
	Marks     []CellMark
	Questions []QuestionResult
}

// Pipeline runs the marker-to-answer stages. It is safe for concurrent use;
// runs share only the layout and image caches.
type Pipeline struct {
	log     zerolog.Logger
	layouts *LayoutEngine
	images  *imaging.ImageCache
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithImageCache shares an image cache with the pipeline.
func WithImageCache(c *imaging.ImageCache) PipelineOption {
	return func(p *Pipeline) {
		p.images = c
	}
}

// New creates a Pipeline.
func New(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		log:     zerolog.Nop(),
		layouts: NewLayoutEngine(),
		images:  imaging.NewImageCache(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Images returns the pipeline's image cache.
func (p *Pipeline) Images() *imaging.ImageCache {
	return p.images
}

// ProcessFile loads path and processes it.
func (p *Pipeline) ProcessFile(path string, opts Options) *Result {
	img, err := p.images.Load(path)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrImageUnreadable, err)
		p.log.Warn().Err(err).Str("path", path).Msg("load failed")
		return failedResult(nil, err)
	}
	return p.ProcessImage(img, opts)
}

// ProcessBytes decodes an encoded image and processes it.
func (p *Pipeline) ProcessBytes(data []byte, opts Options) *Result {
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrImageUnreadable, err)
		p.log.Warn().Err(err).Msg("decode failed")
		return failedResult(nil, err)
	}
	return p.ProcessImage(img, opts)
}

// ProcessImage runs the full pipeline on img.
//
// It never returns nil. Any failure produces a result with Success false,
// an error message and an empty questions array. Zero or multiple marks in
// a question are not failures.
func (p *Pipeline) ProcessImage(img image.Image, opts Options) *Result {
	a, err := p.Analyze(img, opts)
	if err != nil {
		return failedResult(a.Markers, err)
	}
	return newResult(a.Markers, a.Questions)
}

// Analyze runs the pipeline and returns every intermediate product.
//
// On error the returned Analysis is still non-nil and holds whatever stages
// completed, so the detected markers can be reported.
func (p *Pipeline) Analyze(img image.Image, opts Options) (*Analysis, error) {
	log := p.log.With().Str("run_id", uuid.NewString()).Logger()
	start := time.Now()
	a := &Analysis{}

	fail := func(err error) (*Analysis, error) {
		log.Warn().Err(err).Str("kind", KindOf(err).String()).
			Int("markers", len(a.Markers)).Msg("sheet rejected")
		return a, err
	}

	if img == nil {
		return fail(fmt.Errorf("%w: no image", ErrImageUnreadable))
	}
	if err := opts.Validate(); err != nil {
		return fail(err)
	}
	b := img.Bounds()
	if b.Empty() {
		return fail(fmt.Errorf("%w: image is empty", ErrImageUnreadable))
	}
	log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).
		Int("questions", opts.NumQuestions).Int("choices", opts.NumChoices).Msg("processing sheet")

	markers, err := p.detect(img, opts)
	if err != nil {
		return fail(err)
	}
	a.Markers = markers
	log.Debug().Int("count", len(markers)).Ints("ids", markerIDs(markers)).Msg("markers detected")

	if opts.DebugMarkersPath != "" {
		if err := imaging.SaveImage(RenderMarkerOverlay(img, markers), opts.DebugMarkersPath); err != nil {
			log.Warn().Err(err).Msg("marker overlay not written")
		}
	}

	corners, err := ResolveCorners(markers, opts.CornerMode)
	if err != nil {
		return fail(err)
	}
	a.Corners = corners

	sheet, err := p.rectify(img, corners, opts)
	if err != nil {
		return fail(err)
	}
	a.Rectified = sheet
	w, h := sheet.Bounds().Dx(), sheet.Bounds().Dy()
	log.Debug().Int("width", w).Int("height", h).Msg("sheet rectified")

	if opts.DebugRectifiedPath != "" {
		if err := imaging.SaveImage(sheet, opts.DebugRectifiedPath); err != nil {
			log.Warn().Err(err).Msg("rectified sheet not written")
		}
	}

	cells, err := p.layouts.Layout(opts.NumQuestions, opts.NumChoices, w, h, opts.GridMargin)
	if err != nil {
		return fail(err)
	}
	a.Cells = cells

	gray := imaging.Gray(sheet)
	a.Level = GridLevel(gray, GridArea(w, h, opts.GridMargin), opts.ThresholdMode, uint8(opts.DarknessThreshold))

	classifier := Classifier{
		Level:      a.Level,
		BlackRatio: opts.BlackRatio,
		Inset:      opts.CellInset,
		Workers:    opts.Workers,
	}
	marks, err := classifier.Classify(context.Background(), gray, cells)
	if err != nil {
		return fail(err)
	}
	a.Marks = marks
	a.Questions = Assemble(opts.NumQuestions, opts.NumChoices, a.Marks)

	if opts.DebugGridPath != "" {
		if err := imaging.SaveImage(RenderGridOverlay(sheet, a.Marks), opts.DebugGridPath); err != nil {
			log.Warn().Err(err).Msg("grid overlay not written")
		}
	}

	log.Info().Dur("elapsed", time.Since(start)).Uint8("level", a.Level).
		Int("cells", len(cells)).Msg("sheet processed")
	return a, nil
}

// DetectMarkers runs only the marker locator.
func (p *Pipeline) DetectMarkers(img image.Image, opts Options) ([]detection.Marker, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image is empty", ErrImageUnreadable)
	}
	return p.detect(img, opts)
}

func (p *Pipeline) detect(img image.Image, opts Options) ([]detection.Marker, error) {
	det := opts.Detection
	det.Required = RequiredMarkerIDs()
	markers, err := detection.NewLocator(det).Detect(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageUnreadable, err)
	}
	return markers, nil
}

// rectify warps img onto the output rectangle and applies the optional crop.
func (p *Pipeline) rectify(img image.Image, corners geometry.SheetCorners, opts Options) (*image.NRGBA, error) {
	if err := corners.Validate(); err != nil {
		return nil, err
	}

	w, h := opts.OutputWidth, opts.OutputHeight
	if opts.PreserveAspect {
		mw, mh := corners.MeanSides()
		h = int(math.Round(float64(w) * mh / mw))
		if h < 1 {
			return nil, configError("aspect-preserving height is %d", h)
		}
	}

	rect, err := geometry.Rectify(img, corners, w, h)
	if err != nil {
		if errors.Is(err, ErrDegenerateCorners) {
			return nil, err
		}
		return nil, configError("%v", err)
	}

	if opts.Crop == nil {
		return rect.Image, nil
	}
	cropped, err := imaging.CropSheet(rect.Image, *opts.Crop)
	if err != nil {
		return nil, configError("%v", err)
	}
	return cropped, nil
}
