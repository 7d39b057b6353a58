package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironsheep/sheet-omr/internal/config"
	"github.com/ironsheep/sheet-omr/internal/imaging"
	"github.com/ironsheep/sheet-omr/internal/omr"
	"github.com/ironsheep/sheet-omr/internal/server"
	"github.com/ironsheep/sheet-omr/internal/sheet"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit codes.
const (
	exitOK       = 0
	exitRejected = 1 // the sheet could not be graded, or a command failed
	exitUsage    = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "markers":
		return runMarkers(args[1:], stdout, stderr)
	case "sheet":
		return runSheet(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "sheet-omr %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return exitOK
	case "--help", "-h", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "sheet-omr - optical mark recognition for photographed answer sheets")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sheet-omr scan [flags] <image>      Grade a sheet and print the JSON result")
	fmt.Fprintln(w, "  sheet-omr markers [flags] <image>   List the detected corner markers")
	fmt.Fprintln(w, "  sheet-omr sheet [flags] -out <file> Render a printable answer sheet")
	fmt.Fprintln(w, "  sheet-omr serve [flags]             Run the MCP server on stdin/stdout")
	fmt.Fprintln(w, "  sheet-omr version                   Print version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'sheet-omr <command> -h' for the flags of a command.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  SHEET_OMR_LOG_LEVEL=debug    Log level (debug, info, warn, error)")
	fmt.Fprintln(w, "  SHEET_OMR_<SETTING>=value    Override any configuration key, e.g. SHEET_OMR_BLACK_RATIO=0.2")
}

// cliOptions collects flag values. Flags only override the loaded
// configuration when they are set explicitly.
type cliOptions struct {
	configPath string
	envPath    string
	values     *config.Config
	crop       string
	scales     string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *cliOptions) {
	o := &cliOptions{values: config.Default()}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.envPath, "env", ".env", "dotenv file loaded before SHEET_OMR_* variables")
	fs.StringVar(&o.values.LogLevel, "log-level", o.values.LogLevel, "log level: debug, info, warn, error")
	return fs, o
}

func (o *cliOptions) bindGrid(fs *flag.FlagSet) {
	v := o.values
	fs.IntVar(&v.NumQuestions, "questions", v.NumQuestions, "number of questions")
	fs.IntVar(&v.NumChoices, "choices", v.NumChoices, "choices per question (max 26)")
	fs.IntVar(&v.OutputWidth, "width", v.OutputWidth, "rectified sheet width in pixels")
	fs.IntVar(&v.OutputHeight, "height", v.OutputHeight, "rectified sheet height in pixels")
	fs.Float64Var(&v.GridMargin, "margin", v.GridMargin, "grid margin as a fraction of the shorter side")
}

func (o *cliOptions) bindScan(fs *flag.FlagSet) {
	o.bindGrid(fs)
	v := o.values
	fs.BoolVar(&v.PreserveAspect, "preserve-aspect", v.PreserveAspect, "derive the rectified height from the marker quadrilateral")
	fs.StringVar(&o.crop, "crop", "", "crop of the rectified sheet as x1,y1,x2,y2")
	fs.Float64Var(&v.CellInset, "inset", v.CellInset, "fraction trimmed from each cell side")
	fs.IntVar(&v.DarknessThreshold, "threshold", v.DarknessThreshold, "gray level below which a pixel is ink")
	fs.StringVar(&v.ThresholdMode, "threshold-mode", v.ThresholdMode, "fixed or otsu")
	fs.Float64Var(&v.BlackRatio, "black-ratio", v.BlackRatio, "ink fraction above which a cell is marked")
	fs.IntVar(&v.Workers, "workers", v.Workers, "classifier workers (0 = all CPUs)")
	fs.StringVar(&v.CornerMode, "corner-mode", v.CornerMode, "center or outer")
	fs.StringVar(&o.scales, "scales", "", "detection scales, e.g. 1,0.5")
	fs.BoolVar(&v.Preprocess, "preprocess", v.Preprocess, "median denoise before binarization")
	fs.IntVar(&v.AdaptiveWindow, "adaptive-window", v.AdaptiveWindow, "adaptive threshold window (0 disables)")
	fs.StringVar(&v.DebugMarkers, "debug-markers", "", "write a marker overlay image")
	fs.StringVar(&v.DebugRectified, "debug-rectified", "", "write the rectified sheet image")
	fs.StringVar(&v.DebugGrid, "debug-grid", "", "write a grid overlay image")
}

// load builds the effective configuration: defaults, YAML file, .env,
// environment, then explicitly set flags.
func (o *cliOptions) load(fs *flag.FlagSet) (*config.Config, error) {
	if err := config.LoadDotEnv(o.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	var flagErr error
	v := o.values
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = v.LogLevel
		case "questions":
			cfg.NumQuestions = v.NumQuestions
		case "choices":
			cfg.NumChoices = v.NumChoices
		case "width":
			cfg.OutputWidth = v.OutputWidth
		case "height":
			cfg.OutputHeight = v.OutputHeight
		case "margin":
			cfg.GridMargin = v.GridMargin
		case "preserve-aspect":
			cfg.PreserveAspect = v.PreserveAspect
		case "crop":
			r, err := config.ParseRect(o.crop)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Crop = r
		case "inset":
			cfg.CellInset = v.CellInset
		case "threshold":
			cfg.DarknessThreshold = v.DarknessThreshold
		case "threshold-mode":
			cfg.ThresholdMode = v.ThresholdMode
		case "black-ratio":
			cfg.BlackRatio = v.BlackRatio
		case "workers":
			cfg.Workers = v.Workers
		case "corner-mode":
			cfg.CornerMode = v.CornerMode
		case "scales":
			s, err := config.ParseScales(o.scales)
			if err != nil {
				flagErr = err
				return
			}
			cfg.DetectScales = s
		case "preprocess":
			cfg.Preprocess = v.Preprocess
		case "adaptive-window":
			cfg.AdaptiveWindow = v.AdaptiveWindow
		case "debug-markers":
			cfg.DebugMarkers = v.DebugMarkers
		case "debug-rectified":
			cfg.DebugRectified = v.DebugRectified
		case "debug-grid":
			cfg.DebugGrid = v.DebugGrid
		}
	})
	if flagErr != nil {
		return nil, fmt.Errorf("%w: %v", omr.ErrInvalidConfig, flagErr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to w (stderr); stdout is reserved for results and the MCP
// protocol.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// parseCommand parses flags and loads the configuration, reporting problems
// on stderr. ok is false when the command should exit with code.
func parseCommand(fs *flag.FlagSet, o *cliOptions, args []string, stderr io.Writer) (cfg *config.Config, code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, exitOK, false
		}
		return nil, exitUsage, false
	}
	cfg, err := o.load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return nil, exitUsage, false
	}
	return cfg, exitOK, true
}

func runScan(args []string, stdout, stderr io.Writer) int {
	fs, o := newFlagSet("scan", stderr)
	o.bindScan(fs)
	matrix := fs.String("matrix", "", "also write the bit matrix to this file (at most 8 questions)")
	cfg, code, ok := parseCommand(fs, o, args, stderr)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: sheet-omr scan [flags] <image>")
		return exitUsage
	}

	log := newLogger(stderr, cfg.LogLevel)
	p := omr.New(omr.WithLogger(log))
	res := p.ProcessFile(fs.Arg(0), cfg.Options())

	data, err := res.JSON()
	if err != nil {
		fmt.Fprintf(stderr, "failed to encode result: %v\n", err)
		return exitRejected
	}
	fmt.Fprintln(stdout, string(data))

	if !res.Success {
		return exitRejected
	}
	if *matrix != "" {
		if err := omr.ExportBitMatrix(res, *matrix); err != nil {
			fmt.Fprintf(stderr, "matrix export failed: %v\n", err)
			return exitRejected
		}
	}
	return exitOK
}

func runMarkers(args []string, stdout, stderr io.Writer) int {
	fs, o := newFlagSet("markers", stderr)
	o.bindScan(fs)
	out := fs.String("out", "", "write a marker overlay image to this path")
	cfg, code, ok := parseCommand(fs, o, args, stderr)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: sheet-omr markers [flags] <image>")
		return exitUsage
	}

	log := newLogger(stderr, cfg.LogLevel)
	p := omr.New(omr.WithLogger(log))
	img, err := p.Images().Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRejected
	}

	opts := cfg.Options()
	markers, err := p.DetectMarkers(img, opts)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRejected
	}
	if *out != "" {
		if err := imaging.SaveImage(omr.RenderMarkerOverlay(img, markers), *out); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitRejected
		}
	}

	report := map[string]interface{}{
		"count":   len(markers),
		"markers": markers,
	}
	corners, cerr := omr.ResolveCorners(markers, opts.CornerMode)
	if cerr == nil {
		report["sheet_corners"] = corners
	} else {
		report["error"] = cerr.Error()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "failed to encode markers: %v\n", err)
		return exitRejected
	}
	if cerr != nil {
		return exitRejected
	}
	return exitOK
}

func runSheet(args []string, stdout, stderr io.Writer) int {
	fs, o := newFlagSet("sheet", stderr)
	o.bindGrid(fs)
	def := sheet.DefaultOptions()
	out := fs.String("out", "", "output image path (png or jpg)")
	marks := fs.String("marks", "", "boxes to fill, e.g. 1B,3A")
	shape := fs.String("shape", string(def.MarkShape), "mark shape: rect or ellipse")
	pad := fs.Int("pad", def.Pad, "blank border around the marker area in pixels")
	module := fs.Int("module", def.ModuleSize, "marker module size in pixels")
	noBoxes := fs.Bool("no-boxes", false, "omit choice outlines and labels")
	title := fs.String("title", "", "heading printed above the grid")
	cfg, code, ok := parseCommand(fs, o, args, stderr)
	if !ok {
		return code
	}
	if *out == "" {
		fmt.Fprintln(stderr, "usage: sheet-omr sheet [flags] -out <file>")
		return exitUsage
	}

	parsed, err := parseMarks(*marks)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitUsage
	}

	opts := def
	opts.Questions, opts.Choices = cfg.NumQuestions, cfg.NumChoices
	opts.Width, opts.Height = cfg.OutputWidth, cfg.OutputHeight
	opts.Margin = cfg.GridMargin
	opts.Pad, opts.ModuleSize = *pad, *module
	opts.MarkShape = sheet.Shape(*shape)
	opts.Marks = parsed
	opts.Boxes = !*noBoxes
	opts.Title = *title

	if err := sheet.Save(opts, *out); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRejected
	}
	fmt.Fprintln(stdout, *out)
	return exitOK
}

func runServe(args []string, stderr io.Writer) int {
	fs, o := newFlagSet("serve", stderr)
	o.bindScan(fs)
	cfg, code, ok := parseCommand(fs, o, args, stderr)
	if !ok {
		return code
	}

	log := newLogger(stderr, cfg.LogLevel)
	log.Info().Str("version", Version).Str("built", BuildTime).Str("commit", GitCommit).Msg("sheet-omr MCP server starting")

	srv := server.New(cfg, server.WithLogger(log), server.WithVersion(Version))
	if err := srv.Run(); err != nil {
		log.Error().Err(err).Msg("server error")
		return exitRejected
	}
	return exitOK
}

// parseMarks parses a list such as "1B,3A,10D": a 1-based question number
// followed by a choice letter.
func parseMarks(s string) ([]sheet.Mark, error) {
	var out []sheet.Mark
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if len(part) < 2 {
			return nil, fmt.Errorf("invalid mark %q", part)
		}
		letter := part[len(part)-1]
		if letter < 'A' || letter > 'Z' {
			return nil, fmt.Errorf("invalid choice letter in mark %q", part)
		}
		q, err := strconv.Atoi(part[:len(part)-1])
		if err != nil || q < 1 {
			return nil, fmt.Errorf("invalid question number in mark %q", part)
		}
		out = append(out, sheet.Mark{Question: q, Choice: int(letter - 'A')})
	}
	return out, nil
}
