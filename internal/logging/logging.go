// Package logging wires up the process-wide zerolog logger the way the
// teacher's example binaries do it: level from LOG_LEVEL, console writer
// with microsecond timestamps for interactive use.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger and returns it. component is
// attached as a static field so every log line in a multi-binary deployment
// is attributable.
func Setup(component string) zerolog.Logger {
	lev, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Str("component", component).Logger().Level(lev)

	log.Logger = logger
	return logger
}

// PacketTrace gates per-packet debug logging, mirroring media.RTPDebug in
// the teacher: a package var rather than a per-call level check, so the hot
// path skips formatting entirely when disabled.
var PacketTrace = os.Getenv("RTP_DEBUG") == "true"
