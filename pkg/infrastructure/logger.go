package infrastructure

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

// logLevel represents the logging level
type logLevel int

const (
	debugLevel logLevel = iota
	infoLevel
	warnLevel
	errorLevel
)

// logFormat represents the logging format
type logFormat int

const (
	textFormat logFormat = iota
	jsonFormat
)

// simpleLogger implements the domain.Logger interface
type simpleLogger struct {
	level  logLevel
	format logFormat
	logger *log.Logger
}

// NewLogger creates a new logger with the specified level and format
func NewLogger(level, format string) domain.Logger {
	return &simpleLogger{
		level:  parseLogLevel(level),
		format: parseLogFormat(format),
		logger: log.New(os.Stdout, "", 0),
	}
}

// parseLogLevel converts string level to logLevel
func parseLogLevel(level string) logLevel {
	switch strings.ToLower(level) {
	case "debug":
		return debugLevel
	case "info":
		return infoLevel
	case "warn", "warning":
		return warnLevel
	case "error":
		return errorLevel
	default:
		return infoLevel
	}
}

// parseLogFormat converts string format to logFormat
func parseLogFormat(format string) logFormat {
	if strings.ToLower(format) == "json" {
		return jsonFormat
	}
	return textFormat
}

// Debug logs a debug message with key-value pairs
func (l *simpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	if l.level <= debugLevel {
		l.log("DEBUG", msg, keysAndValues...)
	}
}

// Debugf logs a formatted debug message
func (l *simpleLogger) Debugf(format string, args ...interface{}) {
	if l.level <= debugLevel {
		l.log("DEBUG", fmt.Sprintf(format, args...))
	}
}

// Info logs an info message with key-value pairs
func (l *simpleLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.level <= infoLevel {
		l.log("INFO", msg, keysAndValues...)
	}
}

// Infof logs a formatted info message
func (l *simpleLogger) Infof(format string, args ...interface{}) {
	if l.level <= infoLevel {
		l.log("INFO", fmt.Sprintf(format, args...))
	}
}

// Warn logs a warning message with key-value pairs
func (l *simpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	if l.level <= warnLevel {
		l.log("WARN", msg, keysAndValues...)
	}
}

// Warnf logs a formatted warning message
func (l *simpleLogger) Warnf(format string, args ...interface{}) {
	if l.level <= warnLevel {
		l.log("WARN", fmt.Sprintf(format, args...))
	}
}

// Error logs an error message with key-value pairs
func (l *simpleLogger) Error(msg string, keysAndValues ...interface{}) {
	if l.level <= errorLevel {
		l.log("ERROR", msg, keysAndValues...)
	}
}

// Errorf logs a formatted error message
func (l *simpleLogger) Errorf(format string, args ...interface{}) {
	if l.level <= errorLevel {
		l.log("ERROR", fmt.Sprintf(format, args...))
	}
}

// log renders a log line in the configured format
func (l *simpleLogger) log(level, msg string, keysAndValues ...interface{}) {
	timestamp := time.Now().Format(time.RFC3339)

	if l.format == jsonFormat {
		line := fmt.Sprintf(`{"timestamp":%q,"level":%q,"message":%q`, timestamp, level, msg)
		for i := 0; i+1 < len(keysAndValues); i += 2 {
			line += fmt.Sprintf(`,%q:%q`, fmt.Sprintf("%v", keysAndValues[i]), fmt.Sprintf("%v", keysAndValues[i+1]))
		}
		l.logger.Println(line + "}")
		return
	}

	line := fmt.Sprintf("[%s] %s: %s", timestamp, level, msg)
	var pairs []string
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	if len(pairs) > 0 {
		line += " " + strings.Join(pairs, " ")
	}
	l.logger.Println(line)
}

// NopLogger returns a logger that discards everything. Useful in tests.
func NopLogger() domain.Logger {
	return &simpleLogger{level: errorLevel + 1, format: textFormat, logger: log.New(nopWriter{}, "", 0)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
