// Package tools provides the tool registry and executor consumed by the
// completion loop. The registry is an injected lookup table with per-tool
// timeouts and rate limits; the executor converts every failure into an
// error-shaped ToolResult so a bad tool never aborts a turn.
package tools
