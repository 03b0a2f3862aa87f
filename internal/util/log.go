package util

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
)

// logger is the process logger shared by every mesh package, including the
// pion bridge and the stats reporter. Output goes to stderr.
var logger = pterm.DefaultLogger.
	WithTime(true).
	WithTimeFormat("02 Jan 15:04:05").
	WithMaxWidth(1000).
	WithWriter(os.Stderr)

func LogDebug(format string, args ...any) { logf(pterm.LogLevelDebug, format, args...) }

func LogInfo(format string, args ...any) { logf(pterm.LogLevelInfo, format, args...) }

// LogSuccess marks milestones (channel open, peer connected) at info level.
func LogSuccess(format string, args ...any) { logf(pterm.LogLevelInfo, "✓ "+format, args...) }

func LogWarning(format string, args ...any) { logf(pterm.LogLevelWarn, format, args...) }

func LogError(format string, args ...any) { logf(pterm.LogLevelError, format, args...) }

func logf(level pterm.LogLevel, format string, args ...any) {
	if !logger.CanPrint(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		logger.Debug(msg)
	case pterm.LogLevelWarn:
		logger.Warn(msg)
	case pterm.LogLevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	logger.Level = pterm.LogLevelDebug
}

// SetLogOutput redirects log output, e.g. away from an interactive prompt.
func SetLogOutput(w io.Writer) {
	logger.Writer = w
}
