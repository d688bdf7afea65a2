package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DebugEnv is the environment variable that enables debug logging without
// passing -v on every invocation.
const DebugEnv = "FLIPWIRE_DEBUG"

// DebugFromEnv reports whether FLIPWIRE_DEBUG requests debug logging.
func DebugFromEnv() bool {
	v := os.Getenv(DebugEnv)
	return v != "" && v != "0" && v != "false"
}

// NewLogger builds the logger that gets handed to the core components at
// construction time. Debug level is enabled by the -v flag or FLIPWIRE_DEBUG.
// Output goes to stderr so it never mixes with command output on stdout.
func NewLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose || DebugFromEnv() {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
