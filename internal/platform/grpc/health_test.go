package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, services ...string) (string, func(string, grpc_health_v1.HealthCheckResponse_ServingStatus)) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server, healthServer := NewHealthServer(services...)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)
	return lis.Addr().String(), healthServer.SetServingStatus
}

func TestWaitForHealthServing(t *testing.T) {
	addr, _ := startServer(t, "narrator.runtime")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, addr, "narrator.runtime", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	addr, set := startServer(t)
	set("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	go func() {
		time.Sleep(200 * time.Millisecond)
		set("", grpc_health_v1.HealthCheckResponse_SERVING)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, addr, "", nil); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	addr, set := startServer(t)
	set("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var logged int
	err := WaitForHealth(ctx, addr, "", func(string, ...any) { logged++ })
	if err == nil {
		t.Fatal("expected context error")
	}
	if logged == 0 {
		t.Fatal("expected progress logs")
	}
}
