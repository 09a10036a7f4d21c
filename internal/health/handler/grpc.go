package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the grpc.health.v1 service name reported alongside the overall ("") status.
const ServiceName = "fleet.authz"

// WatchReadiness sets the serving status of hs from checker every interval until ctx is done,
// then marks every service NOT_SERVING. The first pass runs immediately.
func WatchReadiness(ctx context.Context, hs *health.Server, checker *Checker, interval time.Duration) {
	update := func() {
		r := checker.Check(ctx)
		status := healthpb.HealthCheckResponse_SERVING
		if !r.Ready {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Printf("health: not ready: %v", r.Checks)
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			update()
		}
	}
}
