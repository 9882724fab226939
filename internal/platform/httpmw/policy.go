package httpmw

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// EdgePolicy is the middleware policy for the public probe listener. Every
// page request opens a database connection, so the defaults bound both time
// and concurrency.
type EdgePolicy struct {
	// ServiceName is used for OpenTelemetry span names + access log fields.
	ServiceName string

	// Timeout bounds total handler time.
	Timeout time.Duration

	// MaxInFlight limits concurrent requests processed by the server handler.
	MaxInFlight int

	// Leaf is applied closest to the handler, inside the default edge chain
	// (per-IP rate limiting for the probe page).
	Leaf Chain
}

// DefaultEdge returns the default "edge" chain, excluding Wrap() and excluding any leaf middleware.
func DefaultEdge(log *zap.Logger, timeout time.Duration, maxInFlight int) Chain {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return Chain{
		RequestID,
		WithRecover(log),
		SecurityHeaders,
		WithTimeout(timeout),
		WithInFlightLimit(maxInFlight),
	}
}

// BuildEdgeHandler composes a policy-driven middleware stack around next.
//
// Final order (outer -> inner):
//
//	Wrap, RequestID, Recover, SecurityHeaders, Timeout, InFlightLimit, Leaf..., next
func BuildEdgeHandler(log *zap.Logger, p EdgePolicy, next http.Handler) http.Handler {
	if p.ServiceName == "" {
		p.ServiceName = "service"
	}

	leaf := p.Leaf.Then(next)

	h := DefaultEdge(log, p.Timeout, p.MaxInFlight).Then(leaf)

	// Tracing + access logging sit outside the policy chain so they see
	// timeouts and shed requests too.
	return WithWrap(p.ServiceName, log)(h)
}
