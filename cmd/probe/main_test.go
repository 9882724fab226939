package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func setUnreachable(t *testing.T) {
	t.Helper()
	t.Setenv("PHP_DB_HOST", "127.0.0.1")
	t.Setenv("PHP_DB_PORT", "1")
	t.Setenv("PHP_DB_NAME", "app")
	t.Setenv("PHP_DB_USER", "app")
	t.Setenv("PHP_DB_PASS", "s3cret")
	t.Setenv("PROBE_CONNECT_TIMEOUT", "5s")
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func TestRun_FailurePrintsMessageAndExitsZero(t *testing.T) {
	setUnreachable(t)
	t.Setenv("PROBE_STRICT_EXIT", "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%s", code, stderr.String())
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "Błąd: ") {
		t.Fatalf("stdout=%q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("missing trailing newline: %q", out)
	}
	if strings.Contains(out, "Hello, world!") {
		t.Fatalf("greeting printed on failure: %q", out)
	}
	if strings.Contains(stderr.String(), "s3cret") {
		t.Fatalf("password leaked to stderr: %s", stderr.String())
	}
}

func TestRun_StrictExit(t *testing.T) {
	setUnreachable(t)
	t.Setenv("PROBE_STRICT_EXIT", "true")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	if code := run(ctx, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
}
