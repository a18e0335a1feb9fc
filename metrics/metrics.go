// Package metrics wraps the broker's Prometheus instrumentation.
// Grounded on common/metrics.Collector: a struct of pre-created
// CounterVec/GaugeVec fields, each registered once at construction
// and updated by small observer methods on the owning component.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "compilebroker"

// Collector holds every metric the broker exports, plus the registry
// it is registered against. A nil *Collector is valid everywhere its
// observer methods are called: components hold an optional collector
// field and call it unconditionally rather than guarding every call
// site. Each Collector owns its own *prometheus.Registry instead of
// registering against the package-level default registry, per
// spec.md §9's "wire as an explicit environment value" note — it also
// means a process (or a test) can build more than one Collector
// without a duplicate-registration panic.
type Collector struct {
	Registry *prometheus.Registry

	CompileRequests *prometheus.CounterVec
	CompileDuration *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ActiveCompiles  *prometheus.GaugeVec
	SandboxRuns     *prometheus.CounterVec
	RegistrySize    prometheus.Gauge
}

// NewCollector builds every metric and registers it against a fresh
// registry.
func NewCollector() *Collector {
	c := &Collector{Registry: prometheus.NewRegistry()}

	c.CompileRequests = c.createCounter(
		"compile_requests_total",
		"Number of compile requests handled, labeled by compiler id and outcome",
		"compiler", "result",
	)
	c.CompileDuration = c.createCounter(
		"compile_duration_seconds_sum",
		"Total wall-clock time spent in the compile pipeline, labeled by compiler id",
		"compiler",
	)
	c.CacheLookups = c.createCounter(
		"cache_lookups_total",
		"Number of result-cache lookups, labeled by hit/miss",
		"outcome",
	)
	c.ActiveCompiles = c.createGauge(
		"active_compiles",
		"Number of compiles currently in flight, labeled by compiler id",
		"compiler",
	)
	c.SandboxRuns = c.createCounter(
		"sandbox_runs_total",
		"Number of sandboxed execute runs, labeled by outcome",
		"outcome",
	)
	c.RegistrySize = c.createGaugeNoLabels(
		"registry_compilers",
		"Number of compilers currently published by the registry",
	)

	return c
}

func (c *Collector) createCounter(name, help string, labels ...string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
		labels,
	)
	c.Registry.MustRegister(counter)
	return counter
}

func (c *Collector) createGauge(name, help string, labels ...string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		labels,
	)
	c.Registry.MustRegister(gauge)
	return gauge
}

func (c *Collector) createGaugeNoLabels(name, help string) prometheus.Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	c.Registry.MustRegister(gauge)
	return gauge
}

// ObserveCompile records one finished compile: its outcome ("ok",
// "compiler_error", "timeout", "error") and how long the pipeline
// took end to end.
func (c *Collector) ObserveCompile(compiler, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.CompileRequests.WithLabelValues(compiler, result).Inc()
	c.CompileDuration.WithLabelValues(compiler).Add(duration.Seconds())
}

// ObserveCacheLookup records a single-flight cache outcome.
func (c *Collector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.CacheLookups.WithLabelValues(outcome).Inc()
}

// IncActive and DecActive bracket one compiler id's in-flight compile
// count; callers pair them with a defer.
func (c *Collector) IncActive(compiler string) {
	if c == nil {
		return
	}
	c.ActiveCompiles.WithLabelValues(compiler).Inc()
}

func (c *Collector) DecActive(compiler string) {
	if c == nil {
		return
	}
	c.ActiveCompiles.WithLabelValues(compiler).Dec()
}

// ObserveSandboxRun records one sandboxed execute attempt.
func (c *Collector) ObserveSandboxRun(ok bool) {
	if c == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	c.SandboxRuns.WithLabelValues(outcome).Inc()
}

// SetRegistrySize publishes the current compiler count after a
// rescan.
func (c *Collector) SetRegistrySize(n int) {
	if c == nil {
		return
	}
	c.RegistrySize.Set(float64(n))
}
