// Package zerolog adapts a zerolog.Logger to the session.Logger interface.
package zerolog

import (
	"github.com/goliatone/go-session"
	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger.
type Logger struct {
	log zerolog.Logger
}

var _ session.Logger = (*Logger)(nil)

// New returns a session.Logger backed by zl.
func New(zl zerolog.Logger) *Logger {
	return &Logger{log: zl}
}

func (l *Logger) Debug(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
