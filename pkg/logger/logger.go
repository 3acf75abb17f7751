// Package logger provides the structured, category-tagged logging facade
// used across every BasiliskLLM package. The call shape (DebugCF / InfoCF /
// WarnCF / ErrorCF taking a category, a message, and a field map) matches
// the logging facade used throughout the teacher codebase; this package
// just backs it with zerolog instead of an ad-hoc logger.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	Configure(os.Stderr, "INFO")
}

// Configure (re)initialises the package-level logger. level is one of
// DEBUG, INFO, WARNING, ERROR, CRITICAL (per spec §6's --log-level flag);
// unrecognised values fall back to INFO.
func Configure(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	log = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING", "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func emit(level zerolog.Level, category, msg string, fields map[string]any) {
	mu.RLock()
	l := log
	mu.RUnlock()

	evt := l.WithLevel(level).Str("category", category)
	for k, v := range fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg(msg)
}

// DebugCF logs a debug-level message tagged with category and fields.
func DebugCF(category, msg string, fields map[string]any) {
	emit(zerolog.DebugLevel, category, msg, fields)
}

// InfoCF logs an info-level message tagged with category and fields.
func InfoCF(category, msg string, fields map[string]any) {
	emit(zerolog.InfoLevel, category, msg, fields)
}

// WarnCF logs a warning-level message tagged with category and fields.
func WarnCF(category, msg string, fields map[string]any) {
	emit(zerolog.WarnLevel, category, msg, fields)
}

// ErrorCF logs an error-level message tagged with category and fields.
func ErrorCF(category, msg string, fields map[string]any) {
	emit(zerolog.ErrorLevel, category, msg, fields)
}
