package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBuildEdgeHandler_PanicRecoveredAndHeadersPresent(t *testing.T) {
	log := zap.NewNop()

	h := BuildEdgeHandler(log, EdgePolicy{
		ServiceName: "testsvc",
		Timeout:     250 * time.Millisecond,
		MaxInFlight: 8,
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, rr.Code)
	}

	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}

	// Security headers should be present even on errors.
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options=DENY, got %q", got)
	}
	if got := rr.Header().Get("Referrer-Policy"); got != "no-referrer" {
		t.Fatalf("expected Referrer-Policy=no-referrer, got %q", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatalf("expected Content-Security-Policy header")
	}
}

func TestBuildEdgeHandler_LeafAndTimeout(t *testing.T) {
	leafRan := false
	leaf := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			leafRan = true
			next.ServeHTTP(w, r)
		})
	}

	h := BuildEdgeHandler(zap.NewNop(), EdgePolicy{
		ServiceName: "testsvc",
		Timeout:     20 * time.Millisecond,
		Leaf:        Chain{leaf},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/", nil))

	if !leafRan {
		t.Fatalf("leaf middleware not applied")
	}
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected %d from TimeoutHandler, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}
