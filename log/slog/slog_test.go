package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/relstate"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))

	l.Debug("dropped", relstate.Fields{"k": 1})
	l.Info("cache cleared", relstate.Fields{"ns": "banner"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("want exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "cache cleared" || rec["ns"] != "banner" || rec["component"] != "relstate" {
		t.Fatalf("record=%v", rec)
	}
}
