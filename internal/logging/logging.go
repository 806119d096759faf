// Package logging builds the diagnostic logger from the [logging] config section.
package logging

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"pkgstore/internal/config"
)

// New returns a leveled logger writing to w in the configured format.
func New(w io.Writer, cfg config.LoggingConfig) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("DOC_CONFIG_LOGGING: %w", err)
	}
	var formatter log.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("DOC_CONFIG_LOGGING: unsupported format %q", cfg.Format)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		Prefix:          "pkgstore",
		ReportTimestamp: cfg.Level == "debug",
	}), nil
}

// Discard is the logger used when a component has none configured.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
