package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pgprobe/internal/platform/logging"
)

type fakeConn struct{ closed bool }

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

// fakeServer accepts exactly one user/password/database triple.
type fakeServer struct {
	user, password, database string

	mu    sync.Mutex
	conns []*fakeConn
}

func (s *fakeServer) Dial(_ context.Context, cfg ConnectionConfig) (Conn, error) {
	if cfg.Host != "db" {
		return nil, errors.New("dial tcp: lookup " + cfg.Host + ": no such host")
	}
	if cfg.User == "" {
		return nil, errors.New("no user specified")
	}
	if cfg.User != s.user || cfg.Password != s.password {
		return nil, errors.New(`password authentication failed for user "` + cfg.User + `"`)
	}
	if cfg.Database != s.database {
		return nil, errors.New(`database "` + cfg.Database + `" does not exist`)
	}
	c := &fakeConn{}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	return c, nil
}

type recorded struct {
	source string
	ok     bool
}

type fakeRecorder struct{ got []recorded }

func (r *fakeRecorder) RecordProbe(_ context.Context, source string, ok bool, _ time.Duration) {
	r.got = append(r.got, recorded{source, ok})
}

var scenarioA = ConnectionConfig{Host: "db", Port: 5432, Database: "testdb", User: "alice", Password: "correct"}

func newFakeServer() *fakeServer {
	return &fakeServer{user: "alice", password: "correct", database: "testdb"}
}

func TestRun_Success(t *testing.T) {
	srv := newFakeServer()
	rec := &fakeRecorder{}
	p := New(Options{Dialer: srv, Recorder: rec, Source: "test"})

	res := p.Run(context.Background(), scenarioA)
	s, ok := res.(Success)
	if !ok {
		t.Fatalf("expected Success, got %#v", res)
	}
	if s.User != "alice" || s.Greeting != Greeting {
		t.Fatalf("unexpected success %+v", s)
	}
	if !strings.Contains(RenderString(res), "alice") {
		t.Fatalf("rendered output missing user")
	}
	if len(srv.conns) != 1 || !srv.conns[0].closed {
		t.Fatalf("expected the connection to be closed")
	}
	if len(rec.got) != 1 || rec.got[0] != (recorded{"test", true}) {
		t.Fatalf("unexpected recordings %+v", rec.got)
	}
}

func TestRun_Idempotent(t *testing.T) {
	p := New(Options{Dialer: newFakeServer()})
	for i := 0; i < 2; i++ {
		if res := p.Run(context.Background(), scenarioA); !res.OK() {
			t.Fatalf("run %d: expected Success, got %#v", i, res)
		}
	}
}

func TestRun_Failures(t *testing.T) {
	p := New(Options{Dialer: newFakeServer()})

	cases := map[string]ConnectionConfig{
		"unreachable host": {Host: "unreachable-host", Database: "x", User: "y", Password: "z"},
		"bad password":     {Host: "db", Database: "testdb", User: "alice", Password: "wrong"},
		"all empty":        {},
	}
	for name, cfg := range cases {
		res := p.Run(context.Background(), cfg)
		f, ok := res.(Failure)
		if !ok {
			t.Fatalf("%s: expected Failure, got %#v", name, res)
		}
		if f.Message == "" {
			t.Fatalf("%s: expected non-empty message", name)
		}
		if !strings.HasPrefix(RenderString(res), FailurePrefix) {
			t.Fatalf("%s: rendered output missing failure marker", name)
		}
	}
}

func TestRun_MessageIsVerbatim(t *testing.T) {
	want := "FATAL: the database system is starting up (SQLSTATE 57P03)"
	p := New(Options{Dialer: DialerFunc(func(context.Context, ConnectionConfig) (Conn, error) {
		return nil, errors.New(want)
	})})
	res := p.Run(context.Background(), scenarioA)
	if f, ok := res.(Failure); !ok || f.Message != want {
		t.Fatalf("expected verbatim message, got %#v", res)
	}
}

func TestRun_ConnectTimeout(t *testing.T) {
	hang := DialerFunc(func(ctx context.Context, _ ConnectionConfig) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p := New(Options{Dialer: hang, ConnectTimeout: 20 * time.Millisecond})

	start := time.Now()
	res := p.Run(context.Background(), scenarioA)
	if res.OK() {
		t.Fatalf("expected Failure on timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
	if f := res.(Failure); !strings.Contains(f.Message, "deadline exceeded") {
		t.Fatalf("unexpected message %q", f.Message)
	}
}

func TestRun_RealDialerRefused(t *testing.T) {
	p := New(Options{ConnectTimeout: 5 * time.Second})
	res := p.Run(context.Background(), ConnectionConfig{
		Host: "127.0.0.1", Port: 1, Database: "x", User: "y", Password: "z", SSLMode: "disable",
	})
	f, ok := res.(Failure)
	if !ok || f.Message == "" {
		t.Fatalf("expected Failure with message, got %#v", res)
	}
}

func TestRun_LogsThroughContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logging.With(context.Background(), zap.New(core).With(zap.String("request_id", "r-1")))

	p := New(Options{Dialer: newFakeServer(), Log: zap.NewNop()})
	p.Run(ctx, scenarioA)

	entries := logs.FilterMessage("probe succeeded").All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	if entries[0].ContextMap()["request_id"] != "r-1" {
		t.Fatalf("request_id missing: %v", entries[0].ContextMap())
	}
}
