package probe

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pgprobe/internal/heartbeat"
)

func TestMonitor_CheckBeforeFirstRun(t *testing.T) {
	m := NewMonitor(New(Options{Dialer: newFakeServer()}), scenarioA, MonitorOptions{})
	if err := m.Check(context.Background()); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if _, ok := m.Last(); ok {
		t.Fatalf("expected no status")
	}
}

func TestMonitor_RunOnceTracksResult(t *testing.T) {
	srv := newFakeServer()
	cfg := scenarioA
	m := NewMonitor(New(Options{Dialer: srv}), cfg, MonitorOptions{})

	st := m.RunOnce(context.Background())
	if !st.Result.OK() || st.CheckedAt.IsZero() {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check() after success err=%v", err)
	}

	srv.password = "rotated"
	m.RunOnce(context.Background())
	err := m.Check(context.Background())
	if err == nil || err.Error() != `password authentication failed for user "alice"` {
		t.Fatalf("Check() should surface failure message, got %v", err)
	}
}

func TestMonitor_RunTouchesHeartbeatAndNotifies(t *testing.T) {
	hb := heartbeat.New(filepath.Join(t.TempDir(), "heartbeat"))

	var mu sync.Mutex
	var seen []Status
	done := make(chan struct{})

	m := NewMonitor(New(Options{Dialer: newFakeServer()}), scenarioA, MonitorOptions{
		Interval:  5 * time.Millisecond,
		Heartbeat: hb,
		OnStatus: func(st Status) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, st)
			if len(seen) == 3 {
				close(done)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("monitor did not run three times")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() err=%v", err)
	}

	if err := hb.Fresh(time.Minute); err != nil {
		t.Fatalf("heartbeat not fresh: %v", err)
	}
}

func TestStatusJSON(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := json.Marshal(Status{Result: Failure{Message: "boom"}, CheckedAt: at, Latency: 1500 * time.Millisecond})
	if err != nil {
		t.Fatalf("Marshal err=%v", err)
	}
	want := `{"ok":false,"error":"boom","checked_at":"2026-01-02T03:04:05Z","latency_ms":1500}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
}
