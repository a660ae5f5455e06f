// Package logging provides the process-wide structured logger every
// long-running component calls into, matching the teacher's logger.Info /
// logger.Infof calling idiom (the teacher's own logger package is not part
// of the retrieval pack, so this reconstructs it here, backed by zerolog).
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Configure replaces the package logger, typically called once at process
// start with the identity and component name baked in as fields.
func Configure(component string, identity string) {
	mu.Lock()
	defer mu.Unlock()
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", component).Str("identity", identity).Logger()
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Info(msg string)                         { current().Info().Msg(msg) }
func Infof(format string, args ...any)        { current().Info().Msgf(format, args...) }
func Warn(msg string)                         { current().Warn().Msg(msg) }
func Warnf(format string, args ...any)        { current().Warn().Msgf(format, args...) }
func Error(msg string)                        { current().Error().Msg(msg) }
func Errorf(format string, args ...any)       { current().Error().Msgf(format, args...) }
func Debug(msg string)                        { current().Debug().Msg(msg) }
func Debugf(format string, args ...any)       { current().Debug().Msgf(format, args...) }

// Logger returns the raw zerolog.Logger for callers that need structured
// fields beyond a formatted message (e.g. attaching a phase or group_id).
func Logger() zerolog.Logger { return current() }
