// Package logrus adapts sirupsen/logrus to relstate.Logger.
package logrus

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/relstate"
)

var _ relstate.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New returns a JSON logrus logger writing to out at level.
func New(out io.Writer, level string) (Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return Logger{}, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{})
	return Logger{E: logrus.NewEntry(l).WithField("component", "relstate")}, nil
}

func (l Logger) Debug(msg string, f relstate.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f relstate.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f relstate.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f relstate.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f relstate.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}
