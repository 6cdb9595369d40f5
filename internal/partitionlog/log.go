// Package partitionlog configures the process-wide zerolog logger.
package partitionlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger, mirroring the single-global-logger shape of
// lesovsky-pgscv's app/log package.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger() //nolint:gochecknoglobals

// SetLevel sets the global logging level from a string such as "debug",
// "info", "warn" or "error". Unknown values fall back to "info".
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// With returns a child logger tagged with a component name, the pattern
// the fill worker and the serve command use to identify their log lines.
func With(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
