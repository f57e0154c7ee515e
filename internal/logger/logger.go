package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger

	discard = log.New(io.Discard)
)

// CategoryKey tags entries that record a deterministic validation decision,
// so guardrail rejections can be audited separately from genuine failures.
const (
	CategoryKey      = "category"
	CategoryDecision = "validation_decision"
	SubsystemKey     = "subsystem"
)

// Config holds logger configuration
type Config struct {
	Debug  bool
	LogDir string
	// JSON switches the formatter to JSON lines.
	JSON bool
	// Output replaces the rotating log file when set.
	Output io.Writer
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	writer := cfg.Output
	if writer == nil {
		logDir := filepath.Join(cfg.LogDir, "logs")
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}

		// Create rotating file handler
		writer = &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "daylitd.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
		// In debug mode, write to both stderr and the log sink
		writer = io.MultiWriter(os.Stderr, writer)
	}

	formatter := log.TextFormatter
	if cfg.JSON {
		formatter = log.JSONFormatter
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "daylitd",
		Formatter:       formatter,
	})

	return nil
}

// For returns a child logger tagged with the given subsystem name.
func For(subsystem string) *log.Logger {
	if Logger == nil {
		return discard
	}
	return Logger.With(SubsystemKey, subsystem)
}

// Decision records a validation decision (a guardrail acceptance, rejection,
// or coercion) on l.
func Decision(l *log.Logger, msg string, keyvals ...interface{}) {
	if l == nil {
		return
	}
	l.Info(msg, append([]interface{}{CategoryKey, CategoryDecision}, keyvals...)...)
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
