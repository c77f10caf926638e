// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics records convergence activity for the node exporter
// textfile collector.
package metrics

import (
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/internal/reactive"
)

const metricsNamespace = "manila_charm"

var workloadStatuses = []status.Status{
	status.Active,
	status.Blocked,
	status.Maintenance,
	status.Waiting,
	status.Unknown,
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Collector is a prometheus.Collector for convergence ticks.
type Collector struct {
	clock clock.Clock

	ticks         *prometheus.CounterVec
	invocations   *prometheus.CounterVec
	lastTick      prometheus.Gauge
	workload      *prometheus.GaugeVec
	artifactWrite *prometheus.CounterVec
	restarts      *prometheus.CounterVec
}

var _ reactive.TickObserver = (*Collector)(nil)

// NewCollector returns a new Collector.
func NewCollector(clock clock.Clock) *Collector {
	return &Collector{
		clock: clock,
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ticks_total",
				Help:      "The number of convergence ticks run.",
			}, []string{"result"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "handler_invocations_total",
				Help:      "The number of handler invocations.",
			}, []string{"handler", "result"},
		),
		lastTick: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_tick_timestamp_seconds",
				Help:      "When the last convergence tick completed.",
			},
		),
		workload: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "workload_status",
				Help:      "Set to 1 for the current workload status of the unit.",
			}, []string{"status"},
		),
		artifactWrite: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "artifact_writes_total",
				Help:      "The number of configuration file writes.",
			}, []string{"path"},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "service_restarts_total",
				Help:      "The number of service restarts caused by configuration changes.",
			}, []string{"service"},
		),
	}
}

// HandlerInvoked is part of the reactive.TickObserver interface.
func (c *Collector) HandlerInvoked(handler string, err error) {
	c.invocations.WithLabelValues(handler, result(err)).Inc()
}

// TickCompleted is part of the reactive.TickObserver interface.
func (c *Collector) TickCompleted(_ []reactive.Invocation, err error) {
	c.ticks.WithLabelValues(result(err)).Inc()
	c.lastTick.Set(float64(c.clock.Now().Unix()))
}

// SetStatus records the workload status.
func (c *Collector) SetStatus(info status.StatusInfo) {
	for _, st := range workloadStatuses {
		v := 0.0
		if st == info.Status {
			v = 1
		}
		c.workload.WithLabelValues(st.String()).Set(v)
	}
}

// ArtifactsWritten records configuration files written and the services
// restarted as a result.
func (c *Collector) ArtifactsWritten(paths, restarted []string) {
	for _, p := range paths {
		c.artifactWrite.WithLabelValues(p).Inc()
	}
	for _, svc := range restarted {
		c.restarts.WithLabelValues(svc).Inc()
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ticks.Describe(ch)
	c.invocations.Describe(ch)
	c.lastTick.Describe(ch)
	c.workload.Describe(ch)
	c.artifactWrite.Describe(ch)
	c.restarts.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ticks.Collect(ch)
	c.invocations.Collect(ch)
	c.lastTick.Collect(ch)
	c.workload.Collect(ch)
	c.artifactWrite.Collect(ch)
	c.restarts.Collect(ch)
}

// WriteTextfile writes the metrics of the collector to path in the text
// exposition format, atomically.
func WriteTextfile(path string, c prometheus.Collector) error {
	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(c); err != nil {
		return errors.Annotate(err, "registering collector")
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return errors.Annotatef(err, "writing metrics to %q", path)
	}
	return nil
}
