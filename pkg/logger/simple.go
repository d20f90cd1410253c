package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// SimpleLogger writes one text line per entry through the standard log package
type SimpleLogger struct {
	level  LogLevel
	fields map[string]interface{}
	out    *log.Logger
}

// NewSimpleLogger creates a new simple logger writing to stderr
func NewSimpleLogger() *SimpleLogger {
	return NewSimpleLoggerTo(os.Stderr)
}

// NewSimpleLoggerTo creates a simple logger writing to w
func NewSimpleLoggerTo(w io.Writer) *SimpleLogger {
	return &SimpleLogger{
		level:  InfoLevel,
		fields: make(map[string]interface{}),
		out:    log.New(w, "", log.LstdFlags),
	}
}

// NewDefaultLogger creates a new default logger instance
func NewDefaultLogger() Logger {
	l := NewSimpleLogger()
	l.SetLevel(GetLogLevel())
	return l
}

// Debug logs a debug message
func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info message
func (l *SimpleLogger) Info(msg string, fields map[string]interface{}) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning message
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error message
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) {
	l.log(ErrorLevel, msg, fields)
}

// SetLevel sets the logging level
func (l *SimpleLogger) SetLevel(level string) {
	l.level = ParseLevel(level)
}

// With returns a logger with additional fields
func (l *SimpleLogger) With(fields map[string]interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &SimpleLogger{
		level:  l.level,
		fields: newFields,
		out:    l.out,
	}
}

// log performs the actual logging
func (l *SimpleLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{fmt.Sprintf("[%s]", level), msg}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, merged[k]))
	}

	l.out.Println(strings.Join(parts, " "))
}

// GetLogLevel gets the current log level from environment
func GetLogLevel() string {
	for _, key := range []string{"ILN_LOG_LEVEL", "LOG_LEVEL"} {
		if level := os.Getenv(key); level != "" {
			return level
		}
	}
	return "INFO"
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
