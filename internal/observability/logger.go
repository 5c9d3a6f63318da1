// Package observability wires the operational log. Protocol guard failures
// and advisory reports land here, never on the protocol channel.
package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide zerolog logger with a console
// writer on stderr and returns it. Verbose enables debug-level output.
func InitLogger(app string, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
