package logging

import (
	"io"
	"log/slog"
	"os"
)

// SetupJSON sets slog's default logger to use JSON output on stdout at the
// given level and returns it.
func SetupJSON(level slog.Level) *slog.Logger {
	return setup(os.Stdout, level)
}

func setup(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	).With("service", "quantum-credits")

	slog.SetDefault(logger)

	return logger
}
