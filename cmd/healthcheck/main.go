// Command healthcheck is the container HEALTHCHECK for probed. It exits 0
// when the monitor heartbeat is fresh (and, if configured, the gRPC health
// service reports SERVING) and 1 otherwise.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"pgprobe/internal/heartbeat"
	"pgprobe/internal/platform/config"
	"pgprobe/internal/platform/health"
	"pgprobe/internal/platform/logging"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	code := run(ctx, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, stderr io.Writer) int {
	if err := config.Load(); err != nil {
		fmt.Fprintln(stderr, "healthcheck: load .env:", err)
	}
	log, err := logging.New("healthcheck", logging.WithOutput(stderr))
	if err != nil {
		fmt.Fprintln(stderr, "healthcheck:", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	root := &health.Node{Name: "healthcheck"}

	hb := heartbeat.New(config.Getenv("PROBE_HEARTBEAT_PATH", "/tmp/heartbeat"))
	root.Add("heartbeat", hb.Check(config.GetenvDuration("PROBE_WATCHDOG_TIMEOUT", 5*time.Minute)))

	if addr := config.Getenv("HEALTHCHECK_GRPC_ADDR", ""); addr != "" {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Error("grpc dial", zap.String("addr", addr), zap.Error(err))
			return 1
		}
		defer func() { _ = conn.Close() }()
		root.Add("grpc", health.GRPCHealthCheck(conn, config.Getenv("HEALTHCHECK_GRPC_SERVICE", "")))
	}

	res := health.Evaluate(ctx, root)
	if !res.Healthy {
		fields := []zap.Field{zap.Duration("duration", res.Duration)}
		for name, d := range res.Deps {
			if !d.Healthy {
				fields = append(fields, zap.String(name, d.Error))
			}
		}
		log.Error("unhealthy", fields...)
		return 1
	}
	log.Debug("healthy", zap.Duration("duration", res.Duration))
	return 0
}
