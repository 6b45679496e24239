//go:build go1.21

// Package slog adapts log/slog to relstate.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/relstate"
)

var _ relstate.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New wraps h, tagging every record with component=relstate.
func New(h stdslog.Handler) Logger {
	return Logger{L: stdslog.New(h).With("component", "relstate")}
}

func (s Logger) Debug(msg string, f relstate.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f relstate.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f relstate.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f relstate.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(lvl stdslog.Level, msg string, f relstate.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, lvl) {
		return
	}
	attrs := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		attrs = append(attrs, stdslog.Any(k, v))
	}
	s.L.LogAttrs(ctx, lvl, msg, attrs...)
}
