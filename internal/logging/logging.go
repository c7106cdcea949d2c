// Package logging builds the zerolog logger shared by the CLI and the dev
// server.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds a logger for cfg, writing to stderr, and installs it as the
// global zerolog logger.
func Setup(cfg config.EnvConfig) zerolog.Logger {
	logger := New(os.Stderr, cfg.GetLogLevel(), cfg.GetEnv())
	log.Logger = logger
	return logger
}

// New returns a logger at level. In DEV it writes human readable console
// output, elsewhere JSON lines. Unknown levels fall back to info.
func New(w io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(env, "DEV") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
