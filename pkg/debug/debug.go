// Package debug provides category-based debug logging for vaultgate.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): controlled via VAULTGATE_DEBUG env or config
//   - Levels (HOW MUCH detail): controlled via VAULTGATE_LOG_LEVEL env or config
//
// Usage:
//
//	debug.Log("backend", "request", "op", op, "url", url)
//	if debug.Enabled("auth") { /* expensive formatting */ }
//
// Categories: auth, ratelimit, backend, tools, transport, config, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
//
// Request text is never logged, only its length.
package debug

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Available before Init so that config loading itself can be debugged.
	categories = parseCategories(os.Getenv("VAULTGATE_DEBUG"))
}

// Init configures categories and installs a default slog logger writing
// to w at the given level. The values come from the resolved config, in
// which the environment already overrides the config file.
func Init(w io.Writer, cats, level string) *slog.Logger {
	categories = parseCategories(cats)

	if level == "" {
		level = "INFO"
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when VAULTGATE_LOG_LEVEL=TRACE.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the list of enabled categories (for startup logging).
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
