// Package zap adapts go.uber.org/zap to relstate.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/relstate"
)

var _ relstate.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New builds a production JSON logger at level ("debug", "info", "warn", "error").
func New(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return Logger{}, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return Logger{}, err
	}
	return Logger{L: l.Named("relstate")}, nil
}

func (z Logger) Debug(msg string, f relstate.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f relstate.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f relstate.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f relstate.Fields) { z.L.Error(msg, fields(f)...) }

// Sync flushes buffered entries.
func (z Logger) Sync() error { return z.L.Sync() }

func fields(f relstate.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
