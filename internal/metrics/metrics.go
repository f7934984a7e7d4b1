// Package metrics exposes update counters over a Prometheus registry.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"updagent/internal/logging"
)

// Set holds the agent's counters on a private registry, so tests can build
// isolated instances. A nil *Set is safe to use and records nothing.
type Set struct {
	registry *prometheus.Registry

	passes        prometheus.Counter
	updated       *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	fetchFailures prometheus.Counter
}

func NewSet() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updagent_passes_total",
			Help: "Completed update passes.",
		}),
		updated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updagent_services_updated_total",
			Help: "Service executables replaced or reinstalled.",
		}, []string{"service"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "updagent_rollbacks_total",
			Help: "Replacements rolled back to the previous build.",
		}, []string{"service"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "updagent_fetch_failures_total",
			Help: "Package downloads that exhausted their retries.",
		}),
	}
	s.registry.MustRegister(s.passes, s.updated, s.rollbacks, s.fetchFailures)
	return s
}

func (s *Set) Pass() {
	if s != nil {
		s.passes.Inc()
	}
}

func (s *Set) ServiceUpdated(name string) {
	if s != nil {
		s.updated.WithLabelValues(name).Inc()
	}
}

func (s *Set) Rollback(name string) {
	if s != nil {
		s.rollbacks.WithLabelValues(name).Inc()
	}
}

func (s *Set) FetchFailure() {
	if s != nil {
		s.fetchFailures.Inc()
	}
}

// Gather exposes the raw registry, used by tests and the status command.
func (s *Set) Gather() prometheus.Gatherer {
	if s == nil {
		return prometheus.NewRegistry()
	}
	return s.registry
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the listener.
func (s *Set) Serve(ctx context.Context, addr string) error {
	if s == nil || addr == "" {
		<-ctx.Done()
		return nil
	}
	log := logging.New("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.WithField("addr", addr).Info("metrics listener up")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
