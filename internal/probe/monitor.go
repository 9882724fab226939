package probe

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pgprobe/internal/heartbeat"
)

// ErrNoResult is returned by Monitor.Check before the first run completes.
var ErrNoResult = errors.New("probe: no result yet")

// Status is the outcome of one monitored run.
type Status struct {
	Result    Result
	CheckedAt time.Time
	Latency   time.Duration
}

type statusJSON struct {
	OK        bool      `json:"ok"`
	User      string    `json:"user,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	LatencyMs int64     `json:"latency_ms"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{
		CheckedAt: s.CheckedAt,
		LatencyMs: s.Latency.Milliseconds(),
	}
	switch v := s.Result.(type) {
	case Success:
		out.OK = true
		out.User = v.User
	case Failure:
		out.Error = v.Message
	}
	return json.Marshal(out)
}

type MonitorOptions struct {
	// Interval between probes. Defaults to 30s.
	Interval time.Duration

	// Heartbeat, if set, is touched before every probe and every
	// HeartbeatEvery while idle. A probe that hangs stops the touches.
	Heartbeat      *heartbeat.File
	HeartbeatEvery time.Duration

	// OnStatus is called from the monitor goroutine after every run.
	OnStatus func(Status)

	Log *zap.Logger
}

// Monitor probes on a fixed interval and keeps the latest Status.
type Monitor struct {
	probe *Probe
	cfg   ConnectionConfig
	opts  MonitorOptions
	last  atomic.Pointer[Status]
}

func NewMonitor(p *Probe, cfg ConnectionConfig, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = 5 * time.Second
	}
	if opts.HeartbeatEvery > opts.Interval {
		opts.HeartbeatEvery = opts.Interval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Monitor{probe: p, cfg: cfg, opts: opts}
}

// Run probes immediately and then every Interval until ctx is done.
// It always returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	probeTick := time.NewTicker(m.opts.Interval)
	defer probeTick.Stop()
	beatTick := time.NewTicker(m.opts.HeartbeatEvery)
	defer beatTick.Stop()

	m.touch()
	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-beatTick.C:
			m.touch()
		case <-probeTick.C:
			m.touch()
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single monitored probe and publishes its Status.
func (m *Monitor) RunOnce(ctx context.Context) Status {
	start := time.Now()
	res := m.probe.Run(ctx, m.cfg)
	st := Status{
		Result:    res,
		CheckedAt: start.UTC(),
		Latency:   time.Since(start),
	}
	m.last.Store(&st)
	if m.opts.OnStatus != nil {
		m.opts.OnStatus(st)
	}
	return st
}

func (m *Monitor) touch() {
	if m.opts.Heartbeat == nil {
		return
	}
	if err := m.opts.Heartbeat.Touch(); err != nil {
		m.opts.Log.Warn("heartbeat touch failed", zap.Error(err))
	}
}

// Last returns the most recent Status, if any.
func (m *Monitor) Last() (Status, bool) {
	st := m.last.Load()
	if st == nil {
		return Status{}, false
	}
	return *st, true
}

// Check reports the latest result as a health check: nil after a Success,
// the failure message as an error otherwise.
func (m *Monitor) Check(context.Context) error {
	st, ok := m.Last()
	if !ok {
		return ErrNoResult
	}
	if f, isFailure := st.Result.(Failure); isFailure {
		return errors.New(f.Message)
	}
	return nil
}
