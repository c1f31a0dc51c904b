package logger

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Fields is the structured context attached with WithFields.
type Fields = logrus.Fields

var (
	currentLevel LogLevel = INFO
	base                  = newBase()
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

var levelMap = map[LogLevel]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// SetLogLevel sets the current log level
func SetLogLevel(level LogLevel) {
	currentLevel = level
	base.SetLevel(levelMap[level])
}

// SetLogLevelFromString sets log level from string
func SetLogLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		SetLogLevel(DEBUG)
	case "info":
		SetLogLevel(INFO)
	case "warn", "warning":
		SetLogLevel(WARN)
	case "error":
		SetLogLevel(ERROR)
	default:
		SetLogLevel(INFO)
	}
}

// SetOutput redirects every log line, mostly useful in tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// WithFields returns an entry carrying structured context.
func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// WithModule tags every line of the returned entry with the owning package.
func WithModule(name string) *logrus.Entry {
	return base.WithField("module", name)
}

// Debug logs debug messages
func Debug(format string, v ...interface{}) {
	if currentLevel <= DEBUG {
		base.Debugf(format, v...)
	}
}

// Info logs info messages
func Info(format string, v ...interface{}) {
	if currentLevel <= INFO {
		base.Infof(format, v...)
	}
}

// Warn logs warning messages
func Warn(format string, v ...interface{}) {
	if currentLevel <= WARN {
		base.Warnf(format, v...)
	}
}

// Error logs error messages
func Error(format string, v ...interface{}) {
	if currentLevel <= ERROR {
		base.Errorf(format, v...)
	}
}

// Fatal logs fatal messages and exits
func Fatal(format string, v ...interface{}) {
	base.Fatalf(format, v...)
}
