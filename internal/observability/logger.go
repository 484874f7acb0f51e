package observability

import (
	"io"
	"os"
	"time"

	"github.com/AnatoleLucet/sigtree/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process logger and installs it as log.Logger.
func NewLogger(app string, cfg config.LogConfig) zerolog.Logger {
	return NewLoggerTo(os.Stdout, app, cfg)
}

// NewLoggerTo is NewLogger writing to out.
func NewLoggerTo(out io.Writer, app string, cfg config.LogConfig) zerolog.Logger {
	if cfg.Console {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger

	return logger
}
