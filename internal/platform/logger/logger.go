package logger

import (
	"log/slog"
	"os"
)

// New returns the JSON slog logger used across handlers and main. Domain
// packages never log; they return typed errors and let callers decide.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
