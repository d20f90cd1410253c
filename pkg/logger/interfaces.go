package logger

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// LogLevel represents the logging level
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the upper-case level name.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name onto a LogLevel, defaulting to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch normalize(level) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	}
	return InfoLevel
}

// New builds the logger for a format: "json" selects zap's production
// encoder, anything else the text logger.
func New(format, level string) Logger {
	if normalize(format) == "JSON" {
		if l, err := NewZapLogger(level); err == nil {
			return l
		}
	}
	s := NewSimpleLogger()
	s.SetLevel(level)
	return s
}
