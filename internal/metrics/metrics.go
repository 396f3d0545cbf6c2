// SPDX-License-Identifier: MPL-2.0

// Package metrics collects per-run resolver counters and can export them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of one parcel process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tierHits        *prometheus.CounterVec
	builds          *prometheus.CounterVec
	downloads       *prometheus.CounterVec
	downloadBytes   prometheus.Counter
	installs        prometheus.Counter
	checksumFailure prometheus.Counter
	resolveDuration prometheus.Histogram
}

// New registers parcel collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tierHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_resolver_tier_hits_total",
			Help: "Dependencies satisfied per acquisition tier",
		}, []string{"tier"}),
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_builds_total",
			Help: "Source builds by toolchain and result",
		}, []string{"toolchain", "result"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_downloads_total",
			Help: "Artifacts downloaded per remote",
		}, []string{"remote"}),
		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "parcel_download_bytes_total",
			Help: "Bytes downloaded from all remotes",
		}),
		installs: factory.NewCounter(prometheus.CounterOpts{
			Name: "parcel_installed_packages_total",
			Help: "Packages unpacked into dependency folders",
		}),
		checksumFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "parcel_checksum_mismatches_total",
			Help: "Downloads whose MD5 did not match the registry",
		}),
		resolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parcel_resolve_duration_seconds",
			Help:    "Wall time of a full resolve",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Registry exposes the underlying gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// TierHit records that a dependency was satisfied by the named tier.
func (m *Metrics) TierHit(tier string) {
	if m == nil {
		return
	}
	m.tierHits.WithLabelValues(tier).Inc()
}

// Build records a finished source build.
func (m *Metrics) Build(toolchain string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.builds.WithLabelValues(toolchain, result).Inc()
}

// Download records a completed artifact download.
func (m *Metrics) Download(remote string, size int) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(remote).Inc()
	m.downloadBytes.Add(float64(size))
}

// ChecksumMismatch records a download whose MD5 did not match.
func (m *Metrics) ChecksumMismatch() {
	if m == nil {
		return
	}
	m.checksumFailure.Inc()
}

// Installed records n packages unpacked into a dependency folder.
func (m *Metrics) Installed(n int) {
	if m == nil {
		return
	}
	m.installs.Add(float64(n))
}

// ObserveResolve records the duration of a resolve started at start.
func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.resolveDuration.Observe(time.Since(start).Seconds())
}

// WriteTextfile writes every collector to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
