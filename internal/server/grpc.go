package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RegisterServices registers grpc.health.v1 and server reflection with s and returns the health
// server whose status the caller keeps current (see health/handler.WatchReadiness).
// Every service starts NOT_SERVING until the first readiness pass.
func RegisterServices(s grpc.ServiceRegistrar) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if rs, ok := s.(reflection.GRPCServer); ok {
		reflection.Register(rs)
	}
	return hs
}

// NewGRPCServer returns a gRPC server traced with otelgrpc and the registered health server.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	return s, RegisterServices(s)
}
