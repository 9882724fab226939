package heartbeat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestTouchAndFresh(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "heartbeat"))

	if err := f.Fresh(time.Minute); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing before Touch, got %v", err)
	}
	if err := f.Touch(); err != nil {
		t.Fatalf("Touch() err=%v", err)
	}
	if err := f.Fresh(time.Minute); err != nil {
		t.Fatalf("Fresh() after Touch err=%v", err)
	}

	b, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64); err != nil {
		t.Fatalf("expected unix timestamp, got %q", b)
	}
}

func TestFreshReportsStale(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "heartbeat"))
	if err := f.Touch(); err != nil {
		t.Fatalf("Touch() err=%v", err)
	}
	f.now = func() time.Time { return time.Now().Add(time.Hour) }

	err := f.Fresh(30 * time.Minute)
	var se *StaleError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StaleError, got %v", err)
	}
	if se.Age < 59*time.Minute {
		t.Fatalf("unexpected age %v", se.Age)
	}
}

func TestWatchdogFiresOnStale(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "heartbeat"))
	if err := f.Touch(); err != nil {
		t.Fatalf("Touch() err=%v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(f.Path, old, old); err != nil {
		t.Fatalf("chtimes err=%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := f.Watchdog(ctx, time.Minute, 5*time.Millisecond)
	var se *StaleError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StaleError, got %v", err)
	}
}

func TestWatchdogIgnoresMissingUntilCancel(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "never-touched"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := f.Watchdog(ctx, time.Minute, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
