package httpmw

import (
	"net/http"
	"time"

	"pgprobe/internal/platform/logging"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Wrap adds OpenTelemetry spans + structured access logging. Liveness
// polls (/healthz) are logged at debug.
func Wrap(service string, log *zap.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	accessLog := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		lg := logging.WithTrace(r.Context(), log).With(
			zap.String("http.method", r.Method),
			zap.String("http.path", r.URL.Path),
			zap.Int("http.status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)

		if rid := r.Header.Get("x-request-id"); rid != "" {
			lg = lg.With(zap.String("request_id", rid))
		}
		if ua := r.Header.Get("user-agent"); ua != "" {
			lg = lg.With(zap.String("user_agent", ua))
		}
		if r.RemoteAddr != "" {
			lg = lg.With(zap.String("client.addr", r.RemoteAddr))
		}

		if r.URL.Path == "/healthz" {
			lg.Debug("http")
			return
		}
		lg.Info("http")
	})

	// accessLog runs inside otelhttp so its Context() carries the span.
	return otelhttp.NewHandler(accessLog, service,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
