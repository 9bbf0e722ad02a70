package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "orderledger.OrderService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer reports SERVING for the order service while its store answers
// pings, and NOT_SERVING otherwise.
type HealthServer struct {
	log      *slog.Logger
	store    Pinger
	health   *health.Server
	interval time.Duration
}

func NewHealthServer(log *slog.Logger, store Pinger, interval time.Duration) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{log: log, store: store, health: hs, interval: interval}
}

// Check probes the store once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Watch probes the store every interval until ctx is cancelled, then marks
// every service as shutting down.
func (h *HealthServer) Watch(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthServer) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.health)
}

func Run(log *slog.Logger, addr string, hs *HealthServer) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	hs.Register(gs)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server stopped", "err", err)
		}
	}()
	log.Info("grpc health listening", "addr", addr)
	return gs, nil
}
