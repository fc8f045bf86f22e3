// internal/handler/grpc/health.grpc.go
package handler

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// SettlementService is the health service name for the settlement engine.
const SettlementService = "auction.Settlement"

// Readiness reports whether settlement can run, i.e. the escrow account
// was resolved.
type Readiness interface {
	Ready() bool
}

type HealthHandler struct {
	server *health.Server
	ready  Readiness
}

func NewHealthHandler(ready Readiness) *HealthHandler {
	h := &HealthHandler{server: health.NewServer(), ready: ready}
	h.Refresh()
	return h
}

// Refresh publishes the current readiness for the overall server and the
// settlement service.
func (h *HealthHandler) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.ready != nil && h.ready.Ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(SettlementService, status)
}

// Shutdown flips every service to NOT_SERVING ahead of a graceful stop.
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthHandler) Server() healthpb.HealthServer {
	return h.server
}

// NewGRPCServer registers health and reflection.
func NewGRPCServer(h *HealthHandler, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
	return s
}
