package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("probe", WithOutput(&buf), WithLevel(zapcore.InfoLevel))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	log.Debug("hidden")
	log.Info("hello", zap.String("k", "v"))
	_ = log.Sync()

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q err=%v", buf.String(), err)
	}
	if line["service"] != "probe" || line["msg"] != "hello" || line["k"] != "v" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("WARN", zapcore.InfoLevel); got != zapcore.WarnLevel {
		t.Fatalf("ParseLevel(WARN) got=%v", got)
	}
	if got := ParseLevel("loud", zapcore.InfoLevel); got != zapcore.InfoLevel {
		t.Fatalf("ParseLevel(loud) got=%v", got)
	}
}

func TestFromFallsBack(t *testing.T) {
	fb := zap.NewNop()
	if got := From(context.Background(), fb); got != fb {
		t.Fatalf("expected fallback logger")
	}
	l := zap.NewExample()
	ctx := With(context.Background(), l)
	if got := From(ctx, fb); got != l {
		t.Fatalf("expected logger from context")
	}
}
