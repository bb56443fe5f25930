// Package logging configures the shared logrus logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup sets the level and formatter of the standard logger.
// format is "text" or "json".
func Setup(level, format string) error {
	return setup(logrus.StandardLogger(), level, format)
}

func setup(l *logrus.Logger, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	l.SetLevel(lvl)
	return nil
}

// Silence discards everything logged through the standard logger
func Silence() {
	logrus.SetOutput(io.Discard)
}
