package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel atomic.Int32
	levelOnce    sync.Once
)

// initLevel reads DEBUG and LOG_LEVEL once, unless SetLevel already ran.
func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel.Store(int32(LevelDebug))
				return
			}
		}
		currentLevel.Store(int32(ParseLevel(os.Getenv("LOG_LEVEL"))))
	})
}

// ParseLevel maps a level name to a LogLevel. Unknown names map to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel overrides the level derived from the environment.
func SetLevel(l LogLevel) {
	levelOnce.Do(func() {})
	currentLevel.Store(int32(l))
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return LogLevel(currentLevel.Load())
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(l LogLevel, prefix, format string, args ...any) {
	if GetLevel() <= l {
		log.Printf(prefix+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...any) { logAt(LevelDebug, "[DEBUG] ", format, args...) }

// Info logs an info message
func Info(format string, args ...any) { logAt(LevelInfo, "[INFO] ", format, args...) }

// Warn logs a warning message
func Warn(format string, args ...any) { logAt(LevelWarn, "[WARN] ", format, args...) }

// Error logs an error message
func Error(format string, args ...any) { logAt(LevelError, "[ERROR] ", format, args...) }

// Fatal logs an error message and exits
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf always prints, regardless of level.
func Printf(format string, args ...any) {
	log.Printf(format, args...)
}

// Component returns a Logger that prefixes every line with "[name] ".
func Component(name string) Logger {
	return Logger{prefix: "[" + name + "] "}
}

// Logger is a leveled logger bound to a component name.
type Logger struct {
	prefix string
}

// Debugf logs at debug level.
func (l Logger) Debugf(format string, args ...any) { Debug(l.prefix+format, args...) }

// Infof logs at info level.
func (l Logger) Infof(format string, args ...any) { Info(l.prefix+format, args...) }

// Warnf logs at warn level.
func (l Logger) Warnf(format string, args ...any) { Warn(l.prefix+format, args...) }

// Errorf logs at error level.
func (l Logger) Errorf(format string, args ...any) { Error(l.prefix+format, args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
