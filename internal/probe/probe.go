package probe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pgprobe/internal/db"
	"pgprobe/internal/platform/logging"
)

// Conn is an open connection. *pgx.Conn satisfies it.
type Conn interface {
	Close(ctx context.Context) error
}

// Dialer opens a connection for cfg.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectionConfig) (Conn, error)
}

type DialerFunc func(ctx context.Context, cfg ConnectionConfig) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, cfg ConnectionConfig) (Conn, error) {
	return f(ctx, cfg)
}

// Recorder receives one observation per run. *metrics.ProbeMetrics satisfies it.
type Recorder interface {
	RecordProbe(ctx context.Context, source string, ok bool, d time.Duration)
}

type Options struct {
	// ConnectTimeout bounds each attempt. Zero means the attempt blocks
	// until ctx is done.
	ConnectTimeout time.Duration

	// ApplicationName is sent to the server by the default dialer.
	ApplicationName string

	// Source labels metrics ("cli", "live", "monitor").
	Source string

	Log      *zap.Logger
	Recorder Recorder

	// Dialer replaces the pgx dialer, mainly in tests.
	Dialer Dialer
}

// Probe checks that a database accepts a connection. It holds no state
// between runs and is safe for concurrent use.
type Probe struct {
	timeout  time.Duration
	source   string
	log      *zap.Logger
	recorder Recorder
	dialer   Dialer
	tracer   trace.Tracer
}

func New(opts Options) *Probe {
	p := &Probe{
		timeout:  opts.ConnectTimeout,
		source:   opts.Source,
		log:      opts.Log,
		recorder: opts.Recorder,
		dialer:   opts.Dialer,
		tracer:   otel.Tracer("pgprobe/probe"),
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.dialer == nil {
		p.dialer = pgDialer(db.Options{ApplicationName: opts.ApplicationName})
	}
	return p
}

func pgDialer(opts db.Options) Dialer {
	return DialerFunc(func(ctx context.Context, cfg ConnectionConfig) (Conn, error) {
		conn, err := db.Connect(ctx, cfg.target(), opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Run makes one connection attempt with cfg. Opening the connection is the
// whole check; no query is sent. A successful connection is closed before
// returning. Every error becomes a Failure carrying its message.
func (p *Probe) Run(ctx context.Context, cfg ConnectionConfig) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := p.tracer.Start(ctx, "probe.run", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("server.address", cfg.Host),
		attribute.Int("server.port", int(cfg.Port)),
		attribute.String("db.namespace", cfg.Database),
		attribute.String("db.user", cfg.User),
		attribute.String("probe.source", p.source),
	))
	defer span.End()

	dialCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	lg := logging.WithTrace(ctx, logging.From(ctx, p.log))

	start := time.Now()
	conn, err := p.dialer.Dial(dialCtx, cfg)
	elapsed := time.Since(start)

	var res Result
	if err != nil {
		res = Failure{Message: err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		lg.Warn("probe failed",
			zap.Object("db", cfg),
			zap.String("source", p.source),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
	} else {
		res = Success{Greeting: Greeting, User: cfg.User}
		p.closeConn(ctx, conn)
		lg.Info("probe succeeded",
			zap.Object("db", cfg),
			zap.String("source", p.source),
			zap.Duration("duration", elapsed),
		)
	}

	if p.recorder != nil {
		p.recorder.RecordProbe(ctx, p.source, res.OK(), elapsed)
	}
	return res
}

func (p *Probe) closeConn(ctx context.Context, conn Conn) {
	if conn == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		p.log.Debug("probe close", zap.Error(err))
	}
}
