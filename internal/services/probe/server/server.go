package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"pgprobe/internal/platform/logging"
	"pgprobe/internal/probe"
)

// Prober runs one connectivity check. *probe.Probe satisfies it.
type Prober interface {
	Run(ctx context.Context, cfg probe.ConnectionConfig) probe.Result
}

// StatusSource exposes the last monitored status. *probe.Monitor satisfies it.
type StatusSource interface {
	Last() (probe.Status, bool)
}

// Server serves the probe page: every GET runs a live probe and writes the
// rendered result, with status 200 for both outcomes.
type Server struct {
	log    *zap.Logger
	prober Prober
	cfg    probe.ConnectionConfig
	status StatusSource

	pageTimeout time.Duration
}

type Option func(*Server)

// WithPageTimeout bounds the live probe behind each page request. A probe
// cut short by it is rendered as a Failure like any other. Zero leaves the
// request context as the only bound.
func WithPageTimeout(d time.Duration) Option {
	return func(s *Server) { s.pageTimeout = d }
}

func New(log *zap.Logger, p Prober, cfg probe.ConnectionConfig, status StatusSource, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log, prober: p, cfg: cfg, status: status}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes registers the page, status and healthz endpoints on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/", s.Page).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/hello.php", s.Page).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/status", s.Status).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

func (s *Server) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if rid := r.Header.Get("x-request-id"); rid != "" {
		ctx = logging.With(ctx, s.log.With(zap.String("request_id", rid)))
	}
	if s.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pageTimeout)
		defer cancel()
	}
	res := s.prober.Run(ctx, s.cfg)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := probe.Render(w, res); err != nil {
		logging.WithTrace(r.Context(), s.log).Debug("write probe page", zap.Error(err))
	}
}

// Status returns the monitor's latest result as JSON, or 503 before the
// first run.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	var st probe.Status
	ok := false
	if s.status != nil {
		st, ok = s.status.Last()
	}
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"no result yet"}` + "\n"))
		return
	}
	if !st.Result.OK() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
