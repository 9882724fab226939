// Command probe connects once to the database named by the PHP_DB_*
// environment variables and prints the greeting page fragment to stdout.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pgprobe/internal/platform/config"
	"pgprobe/internal/platform/logging"
	"pgprobe/internal/platform/otel"
	"pgprobe/internal/probe"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. A failed probe is still a successful
// run unless PROBE_STRICT_EXIT is set.
func run(ctx context.Context, stdout, stderr io.Writer) int {
	if err := config.Load(); err != nil {
		fmt.Fprintln(stderr, "probe: load .env:", err)
	}

	log, err := logging.New("probe", logging.WithOutput(stderr))
	if err != nil {
		fmt.Fprintln(stderr, "probe:", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	shutdownTrace, err := otel.Init(ctx, "probe", otel.TraceOptions{
		DefaultExporter: otel.ExporterNone,
		Console:         stderr,
	})
	if err != nil {
		log.Error("otel init", zap.Error(err))
		return 2
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTrace(sctx)
	}()

	cfg := probe.ConfigFromEnv(os.LookupEnv)
	p := probe.New(probe.Options{
		ConnectTimeout:  config.GetenvDuration("PROBE_CONNECT_TIMEOUT", 10*time.Second),
		ApplicationName: "pgprobe",
		Source:          "cli",
		Log:             log,
	})

	res := p.Run(ctx, cfg)
	if err := probe.Render(stdout, res); err != nil {
		log.Error("write output", zap.Error(err))
		return 2
	}
	fmt.Fprintln(stdout)

	if !res.OK() && config.GetenvBool("PROBE_STRICT_EXIT", false) {
		return 1
	}
	return 0
}
