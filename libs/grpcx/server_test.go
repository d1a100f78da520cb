package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServing(t *testing.T) {
	s := NewServer("scheduling-service", slog.New(slog.NewTextHandler(io.Discard, nil)))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.srv.Serve(lis) }()
	t.Cleanup(s.srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "scheduling-service"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before start, got %s", resp.Status)
	}

	s.SetServing(true)
	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDMetadataKey, "req-1")
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "scheduling-service"}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.Status)
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-1" {
		t.Fatalf("expected echoed request id, got %v", got)
	}
}
