package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup initializes the global zerolog logger based on environment configuration.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output
//
// Returns the configured logger instance.
func Setup(level, format string) zerolog.Logger {
	return SetupWriter(level, format, os.Stdout)
}

// SetupWriter is Setup with an explicit destination. The CLI tools log to
// stderr so stdout stays clean for command output.
func SetupWriter(level, format string, out io.Writer) zerolog.Logger {
	var writer io.Writer

	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	} else {
		writer = out
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	log := zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	return log
}

// FileLogger is a JSON-lines logger backed by a rotating file. Audit entries
// are written with Log() so LOG_LEVEL never filters them.
type FileLogger struct {
	zerolog.Logger
	Path string
	out  *lumberjack.Logger
}

// NewFileLogger creates dir if needed and returns a logger appending JSON
// lines to dir/name. Files rotate at 50 MB and are kept for 90 days.
func NewFileLogger(dir, name string) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     90,
		Compress:   true,
	}

	return &FileLogger{
		Logger: zerolog.New(out).With().Timestamp().Logger(),
		Path:   path,
		out:    out,
	}, nil
}

// Close closes the underlying file.
func (l *FileLogger) Close() error {
	return l.out.Close()
}
