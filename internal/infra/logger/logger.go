// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output    string // "stdout", "stderr", or file path
	Level     string // "debug", "info", "warn", "error"
	File      string // log file path (used when Output is not stdout/stderr)
	MaxSizeMB int    // Rotate the log file past this size, 0 disables rotation
}

var closer io.Closer

// Init initializes the global zerolog logger with the given configuration.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	console := isConsole(cfg.Output)

	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// File output
		f, err := OpenFile(cfg.File, int64(cfg.MaxSizeMB)*1024*1024)
		if err != nil {
			return err
		}
		writer = f
		closer = f
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, string(filepath.Separator))
		if len(parts) > 1 {
			return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
		}
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	logger := newLogger(writer, level, console)
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	return nil
}

// Close closes the log file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// newLogger uses ConsoleWriter for stdout/stderr (color output) and JSON for files.
// Caller information is added only at DEBUG level.
func newLogger(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		cw := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
		}
		if level == zerolog.DebugLevel {
			cw.PartsOrder = []string{"time", "level", "message", "caller"}
			cw.FormatCaller = func(i interface{}) string {
				return "(" + i.(string) + ")"
			}
			return zerolog.New(cw).With().Timestamp().Caller().Logger()
		}
		return zerolog.New(cw).With().Timestamp().Logger()
	}

	base := zerolog.New(w).With().Timestamp()
	if level == zerolog.DebugLevel {
		return base.Caller().Logger()
	}
	return base.Logger()
}

func isConsole(output string) bool {
	switch strings.ToLower(output) {
	case "stdout", "stderr", "":
		return true
	}
	return false
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
