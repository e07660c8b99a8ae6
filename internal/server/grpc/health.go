package grpcserver

import (
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the named health entry next to the overall ("") one.
const ServiceName = "fieldsync.v1.Sync"

// Health serves grpc.health.v1.Health. It starts NOT_SERVING until MarkServing.
type Health struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger
}

// NewHealth builds the gRPC server with the recover/logging interceptor chain.
func NewHealth(log *zap.Logger) *Health {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	h := &Health{srv: s, hs: hs, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// MarkServing flips both entries to SERVING.
func (h *Health) MarkServing() { h.set(healthpb.HealthCheckResponse_SERVING) }

// MarkNotServing flips both entries to NOT_SERVING.
func (h *Health) MarkNotServing() { h.set(healthpb.HealthCheckResponse_NOT_SERVING) }

// Serve blocks serving on lis.
func (h *Health) Serve(lis net.Listener) error {
	h.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return h.srv.Serve(lis)
}

// Stop reports NOT_SERVING, then stops gracefully, forcing after timeout.
func (h *Health) Stop(timeout time.Duration) {
	h.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.srv.Stop()
	}
}
