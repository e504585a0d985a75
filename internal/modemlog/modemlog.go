// Package modemlog is the one place this repository constructs loggers,
// so every component logs through the same charmbracelet/log instance
// and format, tagged with the execution context that produced each line.
package modemlog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Component names used as the "component" key on every derived logger,
// one per concurrent execution context this binary runs.
const (
	ComponentPipeline = "pipeline"
	ComponentAudio    = "audio"
	ComponentSerial   = "serial"
	ComponentMonitor  = "monitor"
	ComponentTUI      = "tui"
	ComponentConfig   = "config"
)

// New builds the root logger at the given level ("debug", "info",
// "warn", "error"); an unrecognized level falls back to info rather than
// failing, since a bad --log-level value shouldn't be a setup failure.
func New(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// For returns a logger scoped to one component (one of the Component*
// constants above), so every log line this repository emits is
// attributable to the execution context that produced it.
func For(root *log.Logger, component string) *log.Logger {
	return root.With("component", component)
}
