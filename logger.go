// FILE: lixenwraith/config/logger.go
package config

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger receives structured key/value events from the config engine.
// *github.com/charmbracelet/log.Logger satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// NewLogger builds a charm logger writing to w at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
// A nil writer means stderr.
func NewLogger(w io.Writer, level string) *charmlog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		Prefix:          "config",
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
}

// discardLogger is the library default: nothing is written unless a logger is configured.
func discardLogger() Logger {
	return charmlog.New(io.Discard)
}
