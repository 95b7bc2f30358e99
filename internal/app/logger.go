// Package app holds the process wiring shared by the surfcast binaries: the
// structured logger, AWS clients and the forecast acquisition stack.
package app

import (
	"io"
	"log/slog"
)

// NewLogger returns a JSON logger writing to w. level takes slog's own
// spelling ("debug", "WARN", "info+2"); anything unparseable means info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
