package probe

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestConfigFromEnv(t *testing.T) {
	cfg := ConfigFromEnv(lookupFrom(map[string]string{
		EnvDBName: "testdb",
		EnvDBUser: "alice",
		EnvDBPass: "correct",
	}))
	want := ConnectionConfig{
		Host:     "db",
		Port:     5432,
		Database: "testdb",
		User:     "alice",
		Password: "correct",
		SSLMode:  "prefer",
	}
	if cfg != want {
		t.Fatalf("ConfigFromEnv() got=%+v want=%+v", cfg, want)
	}
}

func TestConfigFromEnv_UnsetIsEmpty(t *testing.T) {
	cfg := ConfigFromEnv(lookupFrom(nil))
	if cfg.Database != "" || cfg.User != "" || cfg.Password != "" {
		t.Fatalf("expected empty identity, got %+v", cfg)
	}
	if cfg.Host != DefaultHost {
		t.Fatalf("expected host %q, got %q", DefaultHost, cfg.Host)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	cfg := ConfigFromEnv(lookupFrom(map[string]string{
		EnvDBHost:    "localhost",
		EnvDBPort:    "15432",
		EnvDBSSLMode: "disable",
	}))
	if cfg.Host != "localhost" || cfg.Port != 15432 || cfg.SSLMode != "disable" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	cfg = ConfigFromEnv(lookupFrom(map[string]string{EnvDBPort: "99999"}))
	if cfg.Port != DefaultPort {
		t.Fatalf("out of range port should fall back, got %d", cfg.Port)
	}
}

func TestConnectionConfig_RedactsPassword(t *testing.T) {
	cfg := ConnectionConfig{Host: "db", Port: 5432, User: "alice", Password: "hunter2"}
	if s := cfg.String(); strings.Contains(s, "hunter2") {
		t.Fatalf("String() leaks password: %s", s)
	}

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("x", zap.Object("db", cfg))
	fields := logs.All()[0].ContextMap()["db"].(map[string]any)
	if fields["password"] != "***" || fields["user"] != "alice" {
		t.Fatalf("unexpected logged config %v", fields)
	}
}
