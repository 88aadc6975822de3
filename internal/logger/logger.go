// Package logger builds the logrus entries shared by every minutes component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Out    io.Writer // defaults to os.Stderr
}

// New returns a root entry configured from opts.
func New(opts Options) *logrus.Entry {
	base := logrus.New()

	if strings.EqualFold(opts.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)
	base.SetLevel(ParseLevel(opts.Level))

	return logrus.NewEntry(base)
}

// ParseLevel maps a config string to a logrus level, defaulting to info.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns an entry that drops everything. Used in tests.
func Discard() *logrus.Entry {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return logrus.NewEntry(base)
}

// Component tags log with the emitting component name. A nil log yields Discard.
func Component(log *logrus.Entry, name string) *logrus.Entry {
	if log == nil {
		log = Discard()
	}
	return log.WithField("component", name)
}
