package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"pgprobe/internal/heartbeat"
	"pgprobe/internal/platform/boot"
	"pgprobe/internal/platform/config"
	"pgprobe/internal/platform/grpcutil"
	"pgprobe/internal/platform/httpmw"
	"pgprobe/internal/platform/metrics"
	"pgprobe/internal/platform/otel"
	"pgprobe/internal/probe"
	probesrv "pgprobe/internal/services/probe/server"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const service = "probed"

// grpcHealthServices follow the monitor: "" is the whole server.
var grpcHealthServices = []string{"", "postgres"}

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "probed: load .env:", err)
	}
	err := boot.Run(context.Background(), boot.Options{
		ServiceName:    service,
		TraceExporter:  otel.ExporterConsole,
		OTELExtraAttrs: resourceAttrs(probe.ConfigFromEnv(os.LookupEnv)),
	}, build)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probed:", err)
		os.Exit(1)
	}
}

func build(ctx context.Context, deps boot.Deps) (boot.Main, error) {
	log := deps.Log
	cfg := probe.ConfigFromEnv(os.LookupEnv)

	probeMetrics, err := metrics.NewProbeMetrics(service)
	if err != nil {
		return boot.Main{}, err
	}
	httpMetrics, err := metrics.NewHTTPServerMetrics(service)
	if err != nil {
		return boot.Main{}, err
	}

	connectTimeout := config.GetenvDuration("PROBE_CONNECT_TIMEOUT", 10*time.Second)
	newProbe := func(source string) *probe.Probe {
		return probe.New(probe.Options{
			ConnectTimeout:  connectTimeout,
			ApplicationName: "pgprobe",
			Source:          source,
			Log:             log,
			Recorder:        probeMetrics,
		})
	}

	hb := heartbeat.New(config.Getenv("PROBE_HEARTBEAT_PATH", "/tmp/heartbeat"))
	watchdogTimeout := config.GetenvDuration("PROBE_WATCHDOG_TIMEOUT", 5*time.Minute)

	hs := grpchealth.NewServer()
	setHealth := func(s healthpb.HealthCheckResponse_ServingStatus) {
		for _, name := range grpcHealthServices {
			hs.SetServingStatus(name, s)
		}
	}
	setHealth(healthpb.HealthCheckResponse_NOT_SERVING)

	mon := probe.NewMonitor(newProbe("monitor"), cfg, probe.MonitorOptions{
		Interval:  config.GetenvDuration("PROBE_INTERVAL", 30*time.Second),
		Heartbeat: hb,
		Log:       log,
		OnStatus: func(st probe.Status) {
			setHealth(servingStatus(st, deps.Serving))
		},
	})

	deps.ReadyRoot.Add("postgres", mon.Check)
	deps.ReadyRoot.Add("heartbeat", hb.Check(watchdogTimeout))

	pageTimeout := pageTimeoutFor(connectTimeout, config.GetenvDuration("PROBE_PAGE_TIMEOUT", 0))
	page := probesrv.New(log, newProbe("live"), cfg, mon, probesrv.WithPageTimeout(pageTimeout))
	deps.AdminExtra["/status"] = http.HandlerFunc(page.Status)

	limiter := httpmw.NewIPLimiter(
		rate.Limit(config.GetenvFloat("PROBE_RATELIMIT_RPS", 5)),
		config.GetenvInt("PROBE_RATELIMIT_BURST", 10),
		2*time.Minute,
	)
	handler := pageHandler(log, page, pageTimeout, httpMetrics.Middleware, limiter.Middleware)

	httpSrv := &http.Server{
		Addr:              config.Getenv("PROBE_HTTP_ADDR", ":8080"),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcAddr := config.Getenv("PROBE_GRPC_ADDR", ":50051")
	gs := grpc.NewServer(grpcutil.ServerOptionsWithNameAndLimits(service, log, grpcutil.Limits{
		DefaultTimeout: 5 * time.Second,
		MaxInFlight:    config.GetenvInt("PROBE_GRPC_MAX_INFLIGHT", 256),
	})...)
	healthpb.RegisterHealthServer(gs, hs)

	httpLn, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return boot.Main{}, fmt.Errorf("listen http: %w", err)
	}
	grpcLn, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		_ = httpLn.Close()
		return boot.Main{}, fmt.Errorf("listen grpc: %w", err)
	}

	serve := func() error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			log.Info("probe page listening",
				zap.String("addr", httpLn.Addr().String()),
				zap.Object("db", cfg),
			)
			if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			log.Info("grpc health listening", zap.String("addr", grpcLn.Addr().String()))
			if err := gs.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return ignoreCanceled(mon.Run(gctx))
		})
		g.Go(func() error {
			err := hb.Watchdog(gctx, watchdogTimeout, 30*time.Second)
			if err := ignoreCanceled(err); err != nil {
				log.Error("watchdog fired", zap.Error(err))
				return fmt.Errorf("watchdog: %w", err)
			}
			return nil
		})
		// If one task fails, unblock the listeners so Wait can return.
		g.Go(func() error {
			<-gctx.Done()
			stopServers(context.Background(), httpSrv, gs, hs)
			return nil
		})

		return g.Wait()
	}

	shutdown := func(ctx context.Context) error {
		err := stopServers(ctx, httpSrv, gs, hs)
		// Serve may never have run if the admin listener failed.
		_ = httpLn.Close()
		_ = grpcLn.Close()
		return err
	}

	return boot.Main{Serve: serve, Shutdown: shutdown}, nil
}

// stopServers marks the health service NOT_SERVING, then drains gRPC and
// HTTP. Safe to call more than once.
func stopServers(ctx context.Context, httpSrv *http.Server, gs *grpc.Server, hs *grpchealth.Server) error {
	hs.Shutdown()

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := httpSrv.Shutdown(shutdownCtx)
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}
	return err
}

// pageTimeoutFor bounds live page probes. An explicit PROBE_PAGE_TIMEOUT
// wins; otherwise the connect timeout, or 30s when connects are unbounded.
func pageTimeoutFor(connect, page time.Duration) time.Duration {
	switch {
	case page > 0:
		return page
	case connect > 0:
		return connect
	default:
		return 30 * time.Second
	}
}

// pageHandler wraps the page routes in the edge policy. The edge timeout
// sits past the page timeout so a slow probe still renders as a Failure.
func pageHandler(log *zap.Logger, page *probesrv.Server, pageTimeout time.Duration, routeMW, leaf httpmw.Middleware) http.Handler {
	router := mux.NewRouter()
	if routeMW != nil {
		router.Use(mux.MiddlewareFunc(routeMW))
	}
	page.Routes(router)

	return httpmw.BuildEdgeHandler(log, httpmw.EdgePolicy{
		ServiceName: service,
		Timeout:     pageTimeout + 5*time.Second,
		MaxInFlight: config.GetenvInt("PROBE_MAX_INFLIGHT", 64),
		Leaf:        httpmw.Chain{leaf},
	}, router)
}

// servingStatus maps a monitor result to gRPC health. Once shutdown has
// begun (serving false) everything reports NOT_SERVING.
func servingStatus(st probe.Status, serving *atomic.Bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving != nil && !serving.Load() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	if st.Result == nil || !st.Result.OK() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// resourceAttrs tag traces and metrics with the monitored database. The
// password never leaves ConnectionConfig.
func resourceAttrs(cfg probe.ConnectionConfig) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("server.address", cfg.Host),
		attribute.Int("server.port", int(cfg.Port)),
		attribute.String("db.namespace", cfg.Database),
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
