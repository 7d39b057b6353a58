package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// scanProperties are the optional overrides shared by every tool that reads
// a sheet image.
func scanProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the photographed or scanned answer sheet",
		},
		"num_questions": map[string]interface{}{
			"type":        "integer",
			"description": "Number of questions (rows) on the sheet. Default 5",
			"minimum":     1,
		},
		"num_choices": map[string]interface{}{
			"type":        "integer",
			"description": "Number of choices per question, labelled A, B, C... Default 4",
			"minimum":     1,
			"maximum":     26,
		},
		"output_width": map[string]interface{}{
			"type":        "integer",
			"description": "Width of the rectified sheet in pixels. Default 800",
		},
		"output_height": map[string]interface{}{
			"type":        "integer",
			"description": "Height of the rectified sheet in pixels. Default 1000",
		},
		"preserve_aspect": map[string]interface{}{
			"type":        "boolean",
			"description": "Derive the rectified height from the marker quadrilateral instead of output_height",
		},
		"crop": map[string]interface{}{
			"type":        "object",
			"description": "Region of the rectified sheet to grade, in rectified pixels",
			"properties": map[string]interface{}{
				"x1": map[string]interface{}{"type": "integer"},
				"y1": map[string]interface{}{"type": "integer"},
				"x2": map[string]interface{}{"type": "integer"},
				"y2": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"x1", "y1", "x2", "y2"},
		},
		"grid_margin": map[string]interface{}{
			"type":        "number",
			"description": "Border excluded from the grid, as a fraction of the shorter side. Default 0.05",
		},
		"cell_inset": map[string]interface{}{
			"type":        "number",
			"description": "Fraction trimmed from each side of a cell before measuring. Default 0",
		},
		"darkness_threshold": map[string]interface{}{
			"type":        "integer",
			"description": "Gray level below which a pixel counts as ink (fixed mode). Default 128",
			"minimum":     0,
			"maximum":     255,
		},
		"threshold_mode": map[string]interface{}{
			"type":        "string",
			"description": "How the ink level is chosen",
			"enum":        []string{"fixed", "otsu"},
			"default":     "fixed",
		},
		"black_ratio": map[string]interface{}{
			"type":        "number",
			"description": "A cell is marked when its ink fraction exceeds this. Default 0.1",
		},
		"corner_mode": map[string]interface{}{
			"type":        "string",
			"description": "Which point of each corner marker anchors the sheet",
			"enum":        []string{"center", "outer"},
			"default":     "center",
		},
		"detect_scales": map[string]interface{}{
			"type":        "array",
			"description": "Resize factors tried by the marker locator, in order. Default [1, 0.5]",
			"items":       map[string]interface{}{"type": "number"},
		},
	}
}

// withProperties returns scanProperties plus extra.
func withProperties(extra map[string]interface{}) map[string]interface{} {
	props := scanProperties()
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func outputPathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Scanning
		{
			Name:        "omr_process_image",
			Description: "Grade a photographed answer sheet. Locates the four corner markers, rectifies the sheet, classifies every choice box and returns per-question answers. A sheet that cannot be read returns success=false with an error message instead of failing the call.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(map[string]interface{}{
					"debug_markers":   outputPathProperty("Optional path for a marker overlay image"),
					"debug_rectified": outputPathProperty("Optional path for the rectified sheet image"),
					"debug_grid":      outputPathProperty("Optional path for a grid overlay image"),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_detect_markers",
			Description: "Locate the fiducial markers in an image without grading it. Returns each marker's ID, sheet corner, center and outline, and the resolved sheet corners when all four are present.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": scanProperties(),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "omr_export_matrix",
			Description: "Grade a sheet and export the marked matrix as one 0bXXXXXXXX line per choice, question 1 as the most significant bit. Requires at most 8 questions.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(map[string]interface{}{
					"output_path": outputPathProperty("Optional file to write the matrix to"),
				}),
				"required": []string{"path"},
			},
		},

		// Debug renders
		{
			Name:        "omr_render_markers",
			Description: "Draw every detected marker outline and ID onto a copy of the image and save it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(map[string]interface{}{
					"output_path": outputPathProperty("Where to write the overlay (png or jpg)"),
				}),
				"required": []string{"path", "output_path"},
			},
		},
		{
			Name:        "omr_render_grid",
			Description: "Grade a sheet and save the rectified sheet with marked cells outlined green and blank cells red.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(map[string]interface{}{
					"output_path": outputPathProperty("Where to write the overlay (png or jpg)"),
				}),
				"required": []string{"path", "output_path"},
			},
		},

		// Sheet generation
		{
			Name:        "omr_generate_sheet",
			Description: "Render a printable answer sheet with the four corner markers and a choice grid, optionally pre-filled. Defaults follow the server configuration so the sheet scans with the same settings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output_path": outputPathProperty("Where to write the sheet (png or jpg)"),
					"num_questions": map[string]interface{}{
						"type":        "integer",
						"description": "Number of questions",
					},
					"num_choices": map[string]interface{}{
						"type":        "integer",
						"description": "Number of choices per question",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Width of the area between marker centers in pixels",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Height of the area between marker centers in pixels",
					},
					"grid_margin": map[string]interface{}{
						"type":        "number",
						"description": "Grid margin as a fraction of the shorter side",
					},
					"pad": map[string]interface{}{
						"type":        "integer",
						"description": "Blank border around the marker area in pixels. Default 60",
					},
					"module_size": map[string]interface{}{
						"type":        "integer",
						"description": "Side of one marker module in pixels. Default 10",
					},
					"marks": map[string]interface{}{
						"type":        "array",
						"description": "Boxes to fill in; question is 1-based, choice is 0-based",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"question": map[string]interface{}{"type": "integer"},
								"choice":   map[string]interface{}{"type": "integer"},
							},
							"required": []string{"question", "choice"},
						},
					},
					"mark_shape": map[string]interface{}{
						"type":    "string",
						"enum":    []string{"rect", "ellipse"},
						"default": "rect",
					},
					"boxes": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw light choice outlines and labels. Default true",
						"default":     true,
					},
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Optional heading printed above the grid",
					},
				},
				"required": []string{"output_path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
