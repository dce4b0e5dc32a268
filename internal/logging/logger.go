package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLevel  = "PREVIEW_LOG_LEVEL"
	EnvFormat = "PREVIEW_LOG_FORMAT"
)

// Init configures the global logger from the environment.
// PREVIEW_LOG_LEVEL: debug, info, warn, error (default: info).
// PREVIEW_LOG_FORMAT: console (default) or json.
func Init() {
	zerolog.SetGlobalLevel(Level(os.Getenv(EnvLevel)))
	log.Logger = log.Output(writer(os.Getenv(EnvFormat), os.Stderr))
}

// Level maps a level name to a zerolog level, defaulting to info.
func Level(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func writer(format string, out io.Writer) io.Writer {
	if format == "json" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out}
}
