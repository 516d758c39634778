// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates the pipeline's Prometheus metrics.  All methods are
// safe for concurrent use.
type Collector struct {
	scansTotal      *prometheus.CounterVec
	extractionTiers *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	safetyFlags     *prometheus.CounterVec
	cardFallbacks   prometheus.Counter
}

// Scan result labels.
const (
	ScanCacheHit  = "cache_hit"
	ScanExtracted = "extracted"
	ScanFailed    = "failed"
)

// NewCollector builds the Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxlens",
			Name:      "scans_total",
			Help:      "Prescription scans by outcome.",
		}, []string{"result"}),
		extractionTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxlens",
			Name:      "extraction_tier_total",
			Help:      "Successful extractions by tier.",
		}, []string{"strategy"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rxlens",
			Name:      "scan_duration_seconds",
			Help:      "End-to-end scan latency for cache misses.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
		}),
		safetyFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxlens",
			Name:      "safety_flags_total",
			Help:      "Per-medication safety flags assigned.",
		}, []string{"flag"}),
		cardFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxlens",
			Name:      "card_fallbacks_total",
			Help:      "Patient cards served from the template because generation or the readability gate failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.scansTotal, c.extractionTiers, c.scanDuration,
			c.safetyFlags, c.cardFallbacks)
	}
	return c
}

// ObserveScan records one scan outcome and, for cache misses, its duration.
func (c *Collector) ObserveScan(result string, elapsed time.Duration) {
	c.scansTotal.WithLabelValues(result).Inc()
	if result == ScanExtracted {
		c.scanDuration.Observe(elapsed.Seconds())
	}
}

// ObserveExtractionTier records which tier served a successful scan.
func (c *Collector) ObserveExtractionTier(strategy string) {
	c.extractionTiers.WithLabelValues(strategy).Inc()
}

// ObserveSafetyFlag records one assigned flag.
func (c *Collector) ObserveSafetyFlag(flag string) {
	c.safetyFlags.WithLabelValues(flag).Inc()
}

// ObserveCardFallback records one template card served in place of generated
// text.
func (c *Collector) ObserveCardFallback() {
	c.cardFallbacks.Inc()
}
