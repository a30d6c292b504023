// Package logging builds the bot's two log streams: a general stream for
// RPC warnings, connection errors and cycle counters, and a profit stream
// dedicated to opportunity/fill/teardown events. The split mirrors the
// original bot's self._logger / self._profit_logger separation.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rin-arb/internal/config"
)

// Streams bundles the two loggers the rest of the codebase takes by
// constructor injection.
type Streams struct {
	General *slog.Logger
	Profit  *slog.Logger
}

// New opens (creating log_dir if necessary) general.log and profit.log under
// cfg.LogDir and returns loggers writing to them, in the format and at the
// level cfg.Logging specifies. Callers own the returned *os.File handles
// indirectly; there is no Close — the process owns them for its lifetime.
func New(cfg config.LoggingConfig, logDir string) (*Streams, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	generalFile, err := os.OpenFile(filepath.Join(logDir, "general.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open general log: %w", err)
	}
	profitFile, err := os.OpenFile(filepath.Join(logDir, "profit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open profit log: %w", err)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	newHandler := func(w *os.File) slog.Handler {
		if cfg.Format == "json" {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	return &Streams{
		General: slog.New(newHandler(generalFile)),
		Profit:  slog.New(newHandler(profitFile)),
	}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
