package config

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// NewLogger builds the root logger from the log section.
func (l LogConfig) NewLogger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	formatter := log.TextFormatter
	switch l.Format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		Prefix:          AppName,
	}), nil
}
