package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so callers outside infra can depend on the
// logging contract without importing the module directly.
type Logger = zerolog.Logger

// NewLogger builds the service logger. Development uses the console writer
// at debug level; elsewhere lines are JSON at info. cfg.LogLevel overrides
// the level in both cases.
func NewLogger(cfg *Config) zerolog.Logger {
	return newLogger(cfg.AppEnv, cfg.LogLevel, os.Stdout)
}

func newLogger(appEnv, levelName string, out io.Writer) zerolog.Logger {
	dev := appEnv == "development"
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName))); err == nil && levelName != "" {
		level = parsed
	}

	if dev {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "studio").
		Logger()
}
