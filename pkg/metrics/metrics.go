// Package metrics records snapshooter run metrics and pushes them to a
// Prometheus Pushgateway at the end of a batch run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "snapshooter"

// Recorder holds the metrics of one run. All methods are safe for
// concurrent use and a nil Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	SnapshotsCreated   *prometheus.CounterVec // labels: tier
	SnapshotsDestroyed *prometheus.CounterVec // labels: reason
	Errors             *prometheus.CounterVec // labels: command
	TenantsProcessed   prometheus.Counter
	TenantsSkipped     prometheus.Counter
	RunDuration        prometheus.Gauge
	LastSuccess        prometheus.Gauge
}

// New creates a Recorder on its own registry
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		SnapshotsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_created_total",
			Help:      "Automatic snapshots created, by retention tier",
		}, []string{"tier"}),
		SnapshotsDestroyed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_destroyed_total",
			Help:      "Automatic snapshots destroyed, by reason (expired, errored)",
		}, []string{"reason"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Per-entity errors counted by the processors",
		}, []string{"command"}),
		TenantsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenants_processed_total",
			Help:      "Tenants processed to completion",
		}),
		TenantsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenants_skipped_total",
			Help:      "Tenants skipped because the caller has no rights on them",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// Registry returns the registry holding the run metrics
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Created records a created snapshot
func (r *Recorder) Created(tier string) {
	if r == nil {
		return
	}
	r.SnapshotsCreated.WithLabelValues(tier).Inc()
}

// Destroyed records a destroyed snapshot
func (r *Recorder) Destroyed(reason string) {
	if r == nil {
		return
	}
	r.SnapshotsDestroyed.WithLabelValues(reason).Inc()
}

// Error records a per-entity error
func (r *Recorder) Error(command string) {
	if r == nil {
		return
	}
	r.Errors.WithLabelValues(command).Inc()
}

// TenantDone records a tenant processed to completion
func (r *Recorder) TenantDone() {
	if r == nil {
		return
	}
	r.TenantsProcessed.Inc()
}

// TenantSkipped records a tenant skipped for lack of rights
func (r *Recorder) TenantSkipped() {
	if r == nil {
		return
	}
	r.TenantsSkipped.Inc()
}

// Finish records the run duration and, on success, the completion time
func (r *Recorder) Finish(duration time.Duration, success bool, now time.Time) {
	if r == nil {
		return
	}
	r.RunDuration.Set(duration.Seconds())
	if success {
		r.LastSuccess.Set(float64(now.Unix()))
	}
}

// Push sends the run metrics to the Pushgateway at url under job, grouped by
// the command name
func (r *Recorder) Push(url, job, command string) error {
	if r == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("command", command).
		Push()
	if err != nil {
		return fmt.Errorf("error pushing metrics to %s: %w", url, err)
	}
	return nil
}
