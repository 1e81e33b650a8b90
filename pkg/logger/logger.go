package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLogFile is used when Output is "file" and no path is configured.
const DefaultLogFile = "hookrelay.log"

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output string // stdout, stderr, file
	File   string // file path if Output is "file"
}

// Setup initializes the global logger
func Setup(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writer, err := openWriter(cfg)
	if err != nil {
		return err
	}

	if cfg.Format == "text" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Caller().Logger()

	return nil
}

func openWriter(cfg Config) (io.Writer, error) {
	switch cfg.Output {
	case "file":
		path := cfg.File
		if path == "" {
			path = DefaultLogFile
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		return file, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.Stdout, nil
	}
}

// SetOutput replaces the global logger writer, keeping JSON format.
// Tests use it to capture log lines.
func SetOutput(w io.Writer) {
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// Get returns the global logger
func Get() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Info logs an info message
func Info(msg string) {
	log.Info().Msg(msg)
}

// Error logs an error message
func Error(msg string) {
	log.Error().Msg(msg)
}

// Fatal logs a fatal message and exits
func Fatal(msg string) {
	log.Fatal().Msg(msg)
}

// InfoEvent returns an info event for chaining
func InfoEvent() *zerolog.Event {
	return log.Info()
}

// DebugEvent returns a debug event for chaining
func DebugEvent() *zerolog.Event {
	return log.Debug()
}

// ErrorEvent returns an error event for chaining
func ErrorEvent() *zerolog.Event {
	return log.Error()
}

// WarnEvent returns a warning event for chaining
func WarnEvent() *zerolog.Event {
	return log.Warn()
}
