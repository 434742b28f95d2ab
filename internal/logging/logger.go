// Package logging builds the charm logger used by the CLI. It is
// configured from environment variables and the --debug flag.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a CSA_LOG_LEVEL value to a log level.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a logger writing to w. debug forces the
// debug level regardless of CSA_LOG_LEVEL.
func NewLoggerWithWriter(w io.Writer, debug bool) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	lg.SetLevel(ParseLevel(os.Getenv("CSA_LOG_LEVEL")))
	if debug {
		lg.SetLevel(log.DebugLevel)
	}

	prefix := os.Getenv("CSA_LOG_PREFIX")
	if prefix == "" {
		prefix = "csa "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// CSA_LOG_LEVEL: debug, info, warn, error (default: info)
// CSA_LOG_PREFIX: prefix for log messages (default: "csa ")
// CSA_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
//
// logFile, when non-empty, names the file explicitly.
func NewLogger(logFile string, debug bool) *LoggerCloser {
	output := io.Writer(os.Stderr)

	if logFile == "" && os.Getenv("CSA_LOG_TO_FILE") == "1" {
		logFile = fmt.Sprintf("csa-%s-debug.log", time.Now().Format("20060102-150405"))
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output, debug)
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return strings.EqualFold(os.Getenv("CSA_LOG_LEVEL"), "debug")
}
