package boot

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"pgprobe/internal/platform/admin"
	"pgprobe/internal/platform/config"
	"pgprobe/internal/platform/health"
	"pgprobe/internal/platform/logging"
	"pgprobe/internal/platform/otel"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Main represents the service's own servers and loops.
//
// Serve blocks until ctx (the one passed to build) is canceled or something
// fails; a non-nil error makes Run exit with that error. Shutdown is called
// once after Serve's context is canceled.
type Main struct {
	Serve    func() error
	Shutdown func(context.Context) error
}

// Deps are the shared platform dependencies provided to each service.
type Deps struct {
	Log       *zap.Logger
	Metrics   http.Handler
	ReadyRoot *health.Node
	Serving   *atomic.Bool

	// AdminExtra handlers are mounted on the admin listener. build may add
	// entries; the admin server starts after build returns.
	AdminExtra map[string]http.Handler
}

// Options configures the platform boot.
type Options struct {
	ServiceName string

	// AdminAddrEnv is the env var for the admin listener (defaults to <SERVICE>_ADMIN_ADDR).
	// AdminAddrFallback is used if env var is empty (defaults to :8081).
	AdminAddrEnv      string
	AdminAddrFallback string

	// TraceExporter is the default for OTEL_TRACES_EXPORTER.
	TraceExporter string

	// OTELExtraAttrs are added to both tracing + metrics resources.
	OTELExtraAttrs []attribute.KeyValue

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Run boots common platform pieces (logger, OTEL, metrics, readiness root),
// builds the service, starts the admin server and blocks until the service
// exits or a shutdown signal arrives.
func Run(ctx context.Context, opts Options, build func(ctx context.Context, deps Deps) (Main, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.ServiceName == "" {
		return errors.New("boot: ServiceName is required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.AdminAddrEnv == "" {
		opts.AdminAddrEnv = upperServiceEnvPrefix(opts.ServiceName) + "_ADMIN_ADDR"
	}
	if opts.AdminAddrFallback == "" {
		opts.AdminAddrFallback = ":8081"
	}

	log, err := logging.New(opts.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Canceled on SIGINT/SIGTERM or when Serve returns.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	shutdownTrace, err := otel.Init(runCtx, opts.ServiceName, otel.TraceOptions{
		DefaultExporter: opts.TraceExporter,
		ExtraAttrs:      opts.OTELExtraAttrs,
	})
	if err != nil {
		return err
	}
	metricsH, shutdownMetrics, err := otel.InitMetricsPrometheus(runCtx, opts.ServiceName, opts.OTELExtraAttrs...)
	if err != nil {
		_ = shutdownTrace(context.Background())
		return err
	}

	ready := health.NewReadyGraph()
	ready.Add("otel", health.CheckAlwaysReady())
	ready.Add("metrics", health.CheckAlwaysReady())

	var serving atomic.Bool
	serving.Store(true)

	deps := Deps{
		Log:        log,
		Metrics:    metricsH,
		ReadyRoot:  ready,
		Serving:    &serving,
		AdminExtra: map[string]http.Handler{},
	}

	main, err := build(runCtx, deps)
	if err != nil {
		_ = shutdownMetrics(context.Background())
		_ = shutdownTrace(context.Background())
		return err
	}
	if main.Serve == nil || main.Shutdown == nil {
		_ = shutdownMetrics(context.Background())
		_ = shutdownTrace(context.Background())
		return errors.New("boot: Main.Serve and Main.Shutdown are required")
	}

	adminSrv, err := admin.Start(log, admin.Options{
		Addr:        config.Getenv(opts.AdminAddrEnv, opts.AdminAddrFallback),
		ServiceName: opts.ServiceName,
		Metrics:     metricsH,
		ReadyRoot:   ready,
		ServingFn:   serving.Load,
		Extra:       deps.AdminExtra,
	})
	if err != nil {
		cancel()
		_ = shutdownWithin(opts.ShutdownTimeout, main.Shutdown)
		_ = shutdownMetrics(context.Background())
		_ = shutdownTrace(context.Background())
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- main.Serve() }()

	var errs []error
	serveDone := false
	select {
	case <-runCtx.Done():
		// parent canceled
	case sig := <-sigc:
		log.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		serveDone = true
		if err != nil {
			log.Error("service exited", zap.Error(err))
			errs = append(errs, err)
		}
	}

	// Stop advertising readiness before shutdown.
	serving.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer shutdownCancel()

	if err := main.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if !serveDone {
		select {
		case err := <-errCh:
			if err != nil {
				errs = append(errs, err)
			}
		case <-shutdownCtx.Done():
			errs = append(errs, errors.New("boot: service did not stop before shutdown timeout"))
		}
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownTrace(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func shutdownWithin(d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return fn(ctx)
}

func upperServiceEnvPrefix(service string) string {
	// "probed" -> "PROBE" (strip trailing d), "my-svc" -> "MY_SVC".
	s := service
	if len(s) > 1 && s[len(s)-1] == 'd' {
		s = s[:len(s)-1]
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			b = append(b, c-('a'-'A'))
		case c == '-' || c == ' ':
			b = append(b, '_')
		default:
			b = append(b, c)
		}
	}
	return string(b)
}
