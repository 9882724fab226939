package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	out   io.Writer
	level zapcore.Level
}

type Option func(*options)

// WithOutput redirects log output. Defaults to stdout; the one-shot CLI
// uses stderr because stdout carries the probe result.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithLevel overrides the level read from LOG_LEVEL.
func WithLevel(l zapcore.Level) Option {
	return func(o *options) { o.level = l }
}

// New returns a JSON logger tagged with the service name.
func New(service string, opts ...Option) (*zap.Logger, error) {
	o := options{
		out:   os.Stdout,
		level: ParseLevel(os.Getenv("LOG_LEVEL"), zapcore.InfoLevel),
	}
	for _, fn := range opts {
		fn(&o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(o.out)),
		o.level,
	)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", service)), nil
}

// ParseLevel maps "debug", "warn", etc. to a zap level, falling back to d.
func ParseLevel(s string, d zapcore.Level) zapcore.Level {
	s = strings.TrimSpace(s)
	if s == "" {
		return d
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return d
	}
	return l
}
