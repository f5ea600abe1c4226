package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

// ComponentService returns the gRPC health service name of a component.
func ComponentService(name string) string {
	return "component/" + name
}

// GRPCHealth mirrors system and component health onto the standard gRPC
// health service. The overall service ("") is NOT_SERVING in CRITICAL and EMERGENCY.
type GRPCHealth struct {
	health *grpchealth.Server
	server *grpc.Server
	addr   string
	log    *slog.Logger
}

// NewGRPCHealth registers every component as SERVING.
func NewGRPCHealth(port int, components []string) *GRPCHealth {
	hs := grpchealth.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range components {
		hs.SetServingStatus(ComponentService(name), healthpb.HealthCheckResponse_SERVING)
	}

	return &GRPCHealth{
		health: hs,
		server: gs,
		addr:   fmt.Sprintf(":%d", port),
		log:    slog.Default().With("component", "grpc-health"),
	}
}

// HealthServer returns the underlying health service.
func (g *GRPCHealth) HealthServer() healthpb.HealthServer {
	return g.health
}

// Notify implements recovery.EventSink.
func (g *GRPCHealth) Notify(e recovery.Event) {
	switch e.Kind {
	case recovery.EventTransition:
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if e.To == domain.ComponentHealthy {
			status = healthpb.HealthCheckResponse_SERVING
		}
		g.health.SetServingStatus(ComponentService(e.Component), status)
	case recovery.EventHealthChanged, recovery.EventCritical, recovery.EventEmergency:
		g.health.SetServingStatus("", levelStatus(e.Level))
	}
}

func levelStatus(l health.Level) healthpb.HealthCheckResponse_ServingStatus {
	if l == health.LevelCritical || l == health.LevelEmergency {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Listen binds the configured address.
func (g *GRPCHealth) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", g.addr, err)
	}
	return ln, nil
}

// Serve serves on ln until Stop. A stopped server returns nil.
func (g *GRPCHealth) Serve(ln net.Listener) error {
	g.log.Info("gRPC health listening", "addr", ln.Addr().String())
	if err := g.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
