// Package eventlog routes the global logrus logger to a storage root's
// event log.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	// Silent until Setup is called
	logrus.SetOutput(io.Discard)
}

// Levels lists the accepted level names, most verbose first.
var Levels = []string{"trace", "debug", "info", "warn", "error", "none"}

// ParseLevel maps a settings level to a logrus level.
// enabled is false when logging is disabled ("", "none", "off").
// An unknown name returns InfoLevel together with an error.
func ParseLevel(level string) (lvl logrus.Level, enabled bool, err error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "none", "off":
		return logrus.PanicLevel, false, nil
	case "trace":
		return logrus.TraceLevel, true, nil
	case "debug":
		return logrus.DebugLevel, true, nil
	case "info":
		return logrus.InfoLevel, true, nil
	case "warn", "warning":
		return logrus.WarnLevel, true, nil
	case "error":
		return logrus.ErrorLevel, true, nil
	case "fatal":
		return logrus.FatalLevel, true, nil
	}
	return logrus.InfoLevel, true, fmt.Errorf("unknown log level %q: must be one of %s", level, strings.Join(Levels, ", "))
}

// Log is an open event log.
type Log struct {
	file *os.File
}

// Setup truncates the log at path and, unless level disables logging, sends
// logrus output there. The file is reset on every process start.
func Setup(path, level string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	lvl, enabled, levelErr := ParseLevel(level)
	if !enabled {
		logrus.SetOutput(io.Discard)
		return &Log{file: f}, nil
	}

	logrus.SetOutput(f)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logrus.SetLevel(lvl)
	if levelErr != nil {
		logrus.Warnf("%v; logging at info", levelErr)
	}
	return &Log{file: f}, nil
}

// Close detaches logrus and closes the file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	logrus.SetOutput(io.Discard)
	err := l.file.Close()
	l.file = nil
	return err
}
