// Package logging wires up Titan's structured logging, adapted from
// cuemby-warren/pkg/log/log.go's global-zerolog-plus-child-logger idiom.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger; Init configures it and every
// With* helper derives a child from it.
var Logger zerolog.Logger

// Level is a logging verbosity, matching Titan's logging.level config field.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global Logger's level and sink. Console output is
// human-readable; JSON output is for production log aggregation.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with a component name, e.g.
// "admin", "orchestrator".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorkerID creates a child logger tagged with a worker's numeric ID,
// matching every log line original_source/src/runtime/orchestrator.cpp emits
// with "Worker %d: ...".
func WithWorkerID(workerID int) zerolog.Logger {
	return Logger.With().Str("component", "worker").Int("worker_id", workerID).Logger()
}

// WithCorrelationID creates a child logger tagged with a request correlation
// ID, matching original_source/src/gateway/logging.hpp's
// generate_correlation_id usage.
func WithCorrelationID(correlationID string) zerolog.Logger {
	return Logger.With().Str("correlation_id", correlationID).Logger()
}

// GenerateCorrelationID returns a fresh UUIDv4 correlation ID, replacing
// original_source/src/gateway/logging.hpp's generate_correlation_id so every
// accepted connection and admin request can be traced across log lines.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
