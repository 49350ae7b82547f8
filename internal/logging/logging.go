// Package logging sets up the kernel's structured logger (SPEC_FULL.md
// §7, grounded on intelligencedev-manifold, the only example repo with a
// structured logging dependency).
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger. verbose (the CLI's --verbose flag) selects
// debug level and zerolog's pretty console writer; the default is JSON at
// info level, matching the teacher's JSON-by-default CLI convention.
func New(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var writer = os.Stderr
	if verbose {
		return zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
