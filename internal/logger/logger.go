// Package logger sets up the process-wide structured logger. Grounded on
// the teacher's internal/infrastructure/logger/logger.go.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup creates and installs a process-wide slog.Logger. format selects
// between "json" (the default, for production) and "text" (for local
// development); level parses the usual slog level names.
func Setup(level, format string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// Default returns a ready-to-use info-level JSON logger, for call sites
// (tests, examples) that don't go through Setup.
func Default() *slog.Logger {
	return Setup("info", "json")
}

// WithRun returns a logger annotated with an execution id, the grouping
// every run-scoped log line in this engine carries.
func WithRun(log *slog.Logger, executionID, workflowID string) *slog.Logger {
	return log.With(slog.String("execution_id", executionID), slog.String("workflow_id", workflowID))
}

// WithNode further annotates a run-scoped logger with the node currently
// being dispatched.
func WithNode(log *slog.Logger, nodeID, nodeType string) *slog.Logger {
	return log.With(slog.String("node_id", nodeID), slog.String("node_type", nodeType))
}
