// Package server implements the MCP (Model Context Protocol) server for
// answer-sheet scanning.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Scanning:
//   - omr_process_image: Grade a sheet and return per-question answers
//   - omr_detect_markers: Locate the corner markers only
//   - omr_export_matrix: Grade a sheet and export the marked bit matrix
//
// Debug renders:
//   - omr_render_markers: Save the image with detected markers outlined
//   - omr_render_grid: Save the rectified sheet with cells outlined
//
// Sheet generation:
//   - omr_generate_sheet: Render a printable, optionally pre-filled sheet
//
// Every scanning tool starts from the server's config.Config and accepts
// per-call overrides (num_questions, black_ratio, threshold_mode and so on).
//
// # Image Caching
//
// Images are decoded through the pipeline's image cache, but the server
// never keeps them between calls: the input path is evicted when a call
// finishes, and paths the server writes to (debug renders, generated sheets)
// are evicted before writing. A photo re-captured to the same path is read
// again on the next call.
//
// # Error Handling
//
// A sheet that cannot be graded is not a protocol error: omr_process_image
// returns a result with success=false and an error message. Bad arguments,
// missing files for the other tools and failed writes are returned as
// JSON-RPC errors with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(cfg, server.WithLogger(logger), server.WithVersion(version))
//	if err := srv.Run(); err != nil {
//	    logger.Fatal().Err(err).Msg("server stopped")
//	}
package server
