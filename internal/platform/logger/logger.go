package logger

import (
	"log/slog"
	"os"
)

// New returns a text slog logger writing to stdout. Services accept a
// *slog.Logger via options, so embedders can swap in their own handler.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
