package grpcutil

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestServerOptions_HealthRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	gs := grpc.NewServer(ServerOptionsWithNameAndLimits("test", zap.NewNop(), Limits{
		DefaultTimeout: time.Second,
		MaxInFlight:    4,
	})...)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("postgres", healthpb.HealthCheckResponse_NOT_SERVING)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "postgres"})
	if err != nil {
		t.Fatalf("Check err=%v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected status %v", resp.GetStatus())
	}
}

func TestUnaryInFlightLimit(t *testing.T) {
	lim := UnaryInFlightLimit(1)
	info := &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}

	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_, _ = lim(context.Background(), nil, info, func(context.Context, any) (any, error) {
			close(entered)
			<-release
			return nil, nil
		})
	}()
	<-entered

	_, err := lim(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, nil })
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	close(release)
}

func TestUnaryTimeoutAddsDeadline(t *testing.T) {
	to := UnaryTimeout(50 * time.Millisecond)
	_, _ = to(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected a deadline")
		}
		return nil, nil
	})
}
