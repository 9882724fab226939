package health

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// WithTimeout bounds c to d. A non-positive d returns c unchanged.
func WithTimeout(d time.Duration, c Check) Check {
	if d <= 0 || c == nil {
		return c
	}
	return func(ctx context.Context) error {
		ctx2, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c(ctx2)
	}
}

// GRPCHealthCheck checks a peer through the standard gRPC health service.
func GRPCHealthCheck(conn grpc.ClientConnInterface, service string) Check {
	return WithTimeout(time.Second, func(ctx context.Context) error {
		if conn == nil {
			return fmt.Errorf("grpc conn is nil")
		}
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("health status: %s", resp.GetStatus().String())
		}
		return nil
	})
}
