package log

import "strings"

// Level specifies the log level
type Level int

const (
	// InfoLevel indicates Info log level.
	InfoLevel Level = iota
	// WarningLevel indicates Warning log level.
	WarningLevel
	// ErrorLevel indicates Error log level.
	ErrorLevel
	// FatalLevel indicates Fatal log level.
	FatalLevel
	// PanicLevel indicates Panic log level
	PanicLevel
	// DebugLevel indicates Debug log level
	DebugLevel
	Disabled
	numLogLevels = 6
)

// InvalidLevel is reported for a zap level that has no Level equivalent.
const InvalidLevel Level = -1

// levels is internally used to provide the default logger
var levels = [numLogLevels]string{
	InfoLevel:    "INFO",
	WarningLevel: "WARNING",
	ErrorLevel:   "ERROR",
	FatalLevel:   "FATAL",
	PanicLevel:   "PANIC",
	DebugLevel:   "DEBUG",
}

// String returns the canonical uppercase name for level.
func (level Level) String() string {
	if level >= 0 && int(level) < len(levels) {
		return levels[level]
	}
	return "UNKNOWN"
}

// ParseLevel maps a case-insensitive level name (e.g. from a config file
// or the XOSCAR_LOG_LEVEL environment variable) to a Level. Unrecognized names fall back to
// InfoLevel so a config typo degrades to the default instead of failing
// startup outright.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DebugLevel
	case "WARNING", "WARN":
		return WarningLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	case "PANIC":
		return PanicLevel
	case "DISABLED", "NONE", "OFF":
		return Disabled
	default:
		return InfoLevel
	}
}
