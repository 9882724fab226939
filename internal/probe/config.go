package probe

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"

	"pgprobe/internal/db"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDBName = "PHP_DB_NAME"
	EnvDBUser = "PHP_DB_USER"
	EnvDBPass = "PHP_DB_PASS"

	EnvDBHost    = "PHP_DB_HOST"
	EnvDBPort    = "PHP_DB_PORT"
	EnvDBSSLMode = "PHP_DB_SSLMODE"
)

const (
	// DefaultHost is the compose network alias of the database service.
	DefaultHost    = "db"
	DefaultPort    = 5432
	DefaultSSLMode = "prefer"
)

// ConnectionConfig is what the probe connects with. It is built once and
// passed by value.
type ConnectionConfig struct {
	Host     string
	Port     uint16
	Database string
	User     string
	Password string
	SSLMode  string
}

// ConfigFromEnv reads the connection parameters through lookup (usually
// os.LookupEnv). PHP_DB_NAME, PHP_DB_USER and PHP_DB_PASS have no defaults:
// unset reads as the empty string and is passed on unchanged.
func ConfigFromEnv(lookup func(string) (string, bool)) ConnectionConfig {
	get := func(k string) string {
		if lookup == nil {
			return ""
		}
		v, _ := lookup(k)
		return v
	}
	orDefault := func(k, d string) string {
		if v := strings.TrimSpace(get(k)); v != "" {
			return v
		}
		return d
	}

	port := uint16(DefaultPort)
	if v := strings.TrimSpace(get(EnvDBPort)); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil && p > 0 {
			port = uint16(p)
		}
	}

	return ConnectionConfig{
		Host:     orDefault(EnvDBHost, DefaultHost),
		Port:     port,
		Database: get(EnvDBName),
		User:     get(EnvDBUser),
		Password: get(EnvDBPass),
		SSLMode:  orDefault(EnvDBSSLMode, DefaultSSLMode),
	}
}

func (c ConnectionConfig) target() db.Target {
	return db.Target{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
		SSLMode:  c.SSLMode,
	}
}

// String never includes the password.
func (c ConnectionConfig) String() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, redact(c.Password), c.SSLMode)
}

func (c ConnectionConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", c.Host)
	enc.AddUint16("port", c.Port)
	enc.AddString("database", c.Database)
	enc.AddString("user", c.User)
	enc.AddString("password", redact(c.Password))
	enc.AddString("sslmode", c.SSLMode)
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
