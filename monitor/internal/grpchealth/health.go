// Package grpchealth exposes the monitor's liveness over the standard gRPC
// health checking protocol (grpc.health.v1), so orchestrators can probe the
// service without going through the REST API.
//
// The overall service ("") and ServiceName report SERVING while the poll loop
// runs and its last cycle is recent. Each collection is reported under
// ServiceName + "/" + collection and goes NOT_SERVING while its last fetch is
// failing.
package grpchealth

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/prisminsights/prism/monitor/internal/auth"
	"github.com/prisminsights/prism/monitor/internal/config"
	"github.com/prisminsights/prism/monitor/internal/monitor"
	"github.com/prisminsights/prism/pkg/types"
)

// ServiceName is the health service name of the alert monitor.
const ServiceName = "prism.monitor.v1.AlertMonitor"

// staleCycles is how many poll intervals may pass without a cycle before the
// monitor is reported as not serving.
const staleCycles = 3

// CollectionService returns the health service name for c.
func CollectionService(c types.Collection) string {
	return ServiceName + "/" + string(c)
}

// Reporter translates monitor.Status into health serving states.
type Reporter struct {
	hs     *health.Server
	status func() monitor.Status
	now    func() time.Time
}

// NewReporter returns a Reporter reading from status. Every service starts
// as NOT_SERVING until the first Update.
func NewReporter(status func() monitor.Status) *Reporter {
	r := &Reporter{
		hs:     health.NewServer(),
		status: status,
		now:    time.Now,
	}
	r.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	r.hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range types.Collections {
		r.hs.SetServingStatus(CollectionService(c), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return r
}

// Update recomputes every serving status from the current monitor status.
func (r *Reporter) Update() {
	st := r.status()

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if st.Running && !st.LastCycle.IsZero() && r.now().Sub(st.LastCycle) <= staleCycles*st.Interval {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	r.hs.SetServingStatus("", overall)
	r.hs.SetServingStatus(ServiceName, overall)

	for _, c := range types.Collections {
		cs, ok := st.Collections[c]
		s := healthpb.HealthCheckResponse_NOT_SERVING
		if ok && cs.LastError == "" && !cs.LastSuccess.IsZero() {
			s = healthpb.HealthCheckResponse_SERVING
		}
		r.hs.SetServingStatus(CollectionService(c), s)
	}
}

// Run calls Update every interval until ctx is cancelled, then marks every
// service NOT_SERVING so that watchers see the shutdown.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Update()
	for {
		select {
		case <-ctx.Done():
			r.hs.Shutdown()
			return
		case <-ticker.C:
			r.Update()
		}
	}
}

// NewServer returns a gRPC server with the health service registered and the
// API key interceptors from cfg installed.
func NewServer(cfg config.GRPCConfig, r *Reporter) *grpc.Server {
	header, key := cfg.Auth.EffectiveHeader(), cfg.Auth.Key()
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(cfg.Auth.Mode, header, key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(cfg.Auth.Mode, header, key)),
	)
	healthpb.RegisterHealthServer(srv, r.hs)
	return srv
}
