package server

import (
	"encoding/json"
	"fmt"

	"github.com/ironsheep/sheet-omr/internal/config"
	"github.com/ironsheep/sheet-omr/internal/detection"
	"github.com/ironsheep/sheet-omr/internal/geometry"
	"github.com/ironsheep/sheet-omr/internal/imaging"
	"github.com/ironsheep/sheet-omr/internal/omr"
	"github.com/ironsheep/sheet-omr/internal/sheet"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_process_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// A sheet that cannot be read is not a tool error: omr_process_image returns
// the result with success set to false.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Err(err).Str("tool", params.Name).Msg("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Overlays them on the server configuration
//  3. Loads images from the pipeline cache as needed
//  4. Calls the appropriate omr/sheet function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Scanning
	case "omr_process_image":
		return s.handleProcessImage(args)
	case "omr_detect_markers":
		return s.handleDetectMarkers(args)
	case "omr_export_matrix":
		return s.handleExportMatrix(args)

	// Debug renders
	case "omr_render_markers":
		return s.handleRenderMarkers(args)
	case "omr_render_grid":
		return s.handleRenderGrid(args)

	// Sheet generation
	case "omr_generate_sheet":
		return s.handleGenerateSheet(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Shared Arguments ===

// scanArgs are the per-call overrides accepted by every tool that reads a
// sheet. Absent fields keep the server configuration.
type scanArgs struct {
	Path              string       `json:"path"`
	NumQuestions      *int         `json:"num_questions"`
	NumChoices        *int         `json:"num_choices"`
	OutputWidth       *int         `json:"output_width"`
	OutputHeight      *int         `json:"output_height"`
	PreserveAspect    *bool        `json:"preserve_aspect"`
	Crop              *config.Rect `json:"crop"`
	GridMargin        *float64     `json:"grid_margin"`
	CellInset         *float64     `json:"cell_inset"`
	DarknessThreshold *int         `json:"darkness_threshold"`
	ThresholdMode     *string      `json:"threshold_mode"`
	BlackRatio        *float64     `json:"black_ratio"`
	CornerMode        *string      `json:"corner_mode"`
	DetectScales      []float64    `json:"detect_scales"`
}

// options overlays the arguments on cfg and converts the result.
func (a *scanArgs) options(cfg *config.Config) omr.Options {
	c := *cfg
	if a.NumQuestions != nil {
		c.NumQuestions = *a.NumQuestions
	}
	if a.NumChoices != nil {
		c.NumChoices = *a.NumChoices
	}
	if a.OutputWidth != nil {
		c.OutputWidth = *a.OutputWidth
	}
	if a.OutputHeight != nil {
		c.OutputHeight = *a.OutputHeight
	}
	if a.PreserveAspect != nil {
		c.PreserveAspect = *a.PreserveAspect
	}
	if a.Crop != nil {
		c.Crop = a.Crop
	}
	if a.GridMargin != nil {
		c.GridMargin = *a.GridMargin
	}
	if a.CellInset != nil {
		c.CellInset = *a.CellInset
	}
	if a.DarknessThreshold != nil {
		c.DarknessThreshold = *a.DarknessThreshold
	}
	if a.ThresholdMode != nil {
		c.ThresholdMode = *a.ThresholdMode
	}
	if a.BlackRatio != nil {
		c.BlackRatio = *a.BlackRatio
	}
	if a.CornerMode != nil {
		c.CornerMode = *a.CornerMode
	}
	if len(a.DetectScales) > 0 {
		c.DetectScales = a.DetectScales
	}
	// Debug paths only come from tool arguments.
	c.DebugMarkers, c.DebugRectified, c.DebugGrid = "", "", ""
	return c.Options()
}

func requirePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// === Scanning Handlers ===

type processImageArgs struct {
	scanArgs
	DebugMarkers   string `json:"debug_markers"`
	DebugRectified string `json:"debug_rectified"`
	DebugGrid      string `json:"debug_grid"`
}

func (s *Server) handleProcessImage(args json.RawMessage) (interface{}, error) {
	var a processImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("path", a.Path); err != nil {
		return nil, err
	}
	defer s.evict(a.Path)

	opts := a.options(s.cfg)
	opts.DebugMarkersPath = a.DebugMarkers
	opts.DebugRectifiedPath = a.DebugRectified
	opts.DebugGridPath = a.DebugGrid
	s.evict(a.DebugMarkers, a.DebugRectified, a.DebugGrid)

	return s.pipeline.ProcessFile(a.Path, opts), nil
}

// markerInfo describes one detected marker.
type markerInfo struct {
	ID      int               `json:"id"`
	Corner  string            `json:"corner,omitempty"`
	Center  geometry.Point    `json:"center"`
	Corners [4]geometry.Point `json:"corners"`
}

// markerReport is the result of omr_detect_markers.
type markerReport struct {
	Count        int                    `json:"count"`
	MarkerIDs    []int                  `json:"marker_ids"`
	Markers      []markerInfo           `json:"markers"`
	Complete     bool                   `json:"complete"`
	SheetCorners *geometry.SheetCorners `json:"sheet_corners,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

func newMarkerReport(markers []detection.Marker, mode omr.CornerMode) *markerReport {
	r := &markerReport{
		Count:     len(markers),
		MarkerIDs: []int{},
		Markers:   make([]markerInfo, 0, len(markers)),
	}
	seen := make(map[int]bool)
	for _, m := range markers {
		info := markerInfo{ID: m.ID, Center: m.Center(), Corners: m.Corners}
		if c, ok := omr.CornerOfID(m.ID); ok {
			info.Corner = c.String()
		}
		r.Markers = append(r.Markers, info)
		if !seen[m.ID] {
			seen[m.ID] = true
			r.MarkerIDs = append(r.MarkerIDs, m.ID)
		}
	}

	corners, err := omr.ResolveCorners(markers, mode)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Complete = true
	r.SheetCorners = &corners
	return r
}

func (s *Server) handleDetectMarkers(args json.RawMessage) (interface{}, error) {
	var a scanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("path", a.Path); err != nil {
		return nil, err
	}
	defer s.evict(a.Path)
	img, err := s.pipeline.Images().Load(a.Path)
	if err != nil {
		return nil, err
	}

	opts := a.options(s.cfg)
	markers, err := s.pipeline.DetectMarkers(img, opts)
	if err != nil {
		return nil, err
	}
	return newMarkerReport(markers, opts.CornerMode), nil
}

type exportMatrixArgs struct {
	scanArgs
	OutputPath string `json:"output_path"`
}

// matrixReport is the result of omr_export_matrix.
type matrixReport struct {
	OutputPath string      `json:"output_path,omitempty"`
	Lines      []string    `json:"lines"`
	Result     *omr.Result `json:"result"`
}

func (s *Server) handleExportMatrix(args json.RawMessage) (interface{}, error) {
	var a exportMatrixArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("path", a.Path); err != nil {
		return nil, err
	}
	defer s.evict(a.Path)

	res := s.pipeline.ProcessFile(a.Path, a.options(s.cfg))
	if !res.Success {
		return nil, fmt.Errorf("sheet not processed: %s", res.Error)
	}
	lines, err := omr.BitMatrix(res.Questions)
	if err != nil {
		return nil, err
	}
	if a.OutputPath != "" {
		if err := omr.ExportBitMatrix(res, a.OutputPath); err != nil {
			return nil, err
		}
	}
	return &matrixReport{OutputPath: a.OutputPath, Lines: lines, Result: res}, nil
}

// === Debug Render Handlers ===

type renderArgs struct {
	scanArgs
	OutputPath string `json:"output_path"`
}

func (a *renderArgs) validate() error {
	if err := requirePath("path", a.Path); err != nil {
		return err
	}
	return requirePath("output_path", a.OutputPath)
}

func (s *Server) handleRenderMarkers(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	defer s.evict(a.Path)
	img, err := s.pipeline.Images().Load(a.Path)
	if err != nil {
		return nil, err
	}

	opts := a.options(s.cfg)
	s.evict(a.OutputPath)
	markers, err := s.pipeline.RenderMarkers(img, a.OutputPath, opts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"output_path": a.OutputPath,
		"markers":     newMarkerReport(markers, opts.CornerMode),
	}, nil
}

func (s *Server) handleRenderGrid(args json.RawMessage) (interface{}, error) {
	var a renderArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	defer s.evict(a.Path)
	img, err := s.pipeline.Images().Load(a.Path)
	if err != nil {
		return nil, err
	}

	s.evict(a.OutputPath)
	res, err := s.pipeline.RenderGrid(img, a.OutputPath, a.options(s.cfg))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"output_path": a.OutputPath,
		"result":      res,
	}, nil
}

// === Sheet Generation Handler ===

type generateSheetArgs struct {
	OutputPath string       `json:"output_path"`
	Questions  *int         `json:"num_questions"`
	Choices    *int         `json:"num_choices"`
	Width      *int         `json:"width"`
	Height     *int         `json:"height"`
	Margin     *float64     `json:"grid_margin"`
	Pad        *int         `json:"pad"`
	ModuleSize *int         `json:"module_size"`
	Marks      []sheet.Mark `json:"marks"`
	MarkShape  string       `json:"mark_shape"`
	Boxes      *bool        `json:"boxes"`
	Title      string       `json:"title"`
}

// sheetOptions starts from the server's grid configuration so a generated
// sheet scans with the same settings.
func (a *generateSheetArgs) sheetOptions(cfg *config.Config) sheet.Options {
	o := sheet.DefaultOptions()
	o.Questions, o.Choices = cfg.NumQuestions, cfg.NumChoices
	o.Width, o.Height = cfg.OutputWidth, cfg.OutputHeight
	o.Margin = cfg.GridMargin

	if a.Questions != nil {
		o.Questions = *a.Questions
	}
	if a.Choices != nil {
		o.Choices = *a.Choices
	}
	if a.Width != nil {
		o.Width = *a.Width
	}
	if a.Height != nil {
		o.Height = *a.Height
	}
	if a.Margin != nil {
		o.Margin = *a.Margin
	}
	if a.Pad != nil {
		o.Pad = *a.Pad
	}
	if a.ModuleSize != nil {
		o.ModuleSize = *a.ModuleSize
	}
	if a.MarkShape != "" {
		o.MarkShape = sheet.Shape(a.MarkShape)
	}
	if a.Boxes != nil {
		o.Boxes = *a.Boxes
	}
	o.Marks = a.Marks
	o.Title = a.Title
	return o
}

func (s *Server) handleGenerateSheet(args json.RawMessage) (interface{}, error) {
	var a generateSheetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := requirePath("output_path", a.OutputPath); err != nil {
		return nil, err
	}

	opts := a.sheetOptions(s.cfg)
	img, err := sheet.Generate(opts)
	if err != nil {
		return nil, err
	}
	s.evict(a.OutputPath)
	if err := imaging.SaveImage(img, a.OutputPath); err != nil {
		return nil, err
	}

	b := img.Bounds()
	return map[string]interface{}{
		"output_path":   a.OutputPath,
		"width":         b.Dx(),
		"height":        b.Dy(),
		"num_questions": opts.Questions,
		"num_choices":   opts.Choices,
		"marks":         len(opts.Marks),
	}, nil
}

// evict drops paths from the image cache. Inputs are evicted when a call
// finishes and outputs before they are written, so every call reads the file
// as it is on disk.
func (s *Server) evict(paths ...string) {
	for _, p := range paths {
		if p != "" {
			s.pipeline.Images().Evict(p)
		}
	}
}
