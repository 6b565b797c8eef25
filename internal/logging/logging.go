// Package logging configures the process-wide structured logger. Secrets
// and key material are never logged; callers pass identifiers only.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Setup routes the default logger to stderr and, when logFile is
// non-empty, to a 0600 append-only file as well. Returns a close func for
// the file sink.
func Setup(logFile string, verbose bool) (func(), error) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	writer := io.Writer(os.Stderr)
	closer := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	logger := log.NewWithOptions(writer, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	log.SetDefault(logger)
	return closer, nil
}
