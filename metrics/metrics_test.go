package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCompileIncrementsLabeledCounters(t *testing.T) {
	c := NewCollector()
	c.ObserveCompile("gcc", "ok", 250*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.CompileRequests.WithLabelValues("gcc", "ok")))
}

func TestObserveCacheLookupSplitsHitAndMiss(t *testing.T) {
	c := NewCollector()
	c.ObserveCacheLookup(true)
	c.ObserveCacheLookup(false)
	c.ObserveCacheLookup(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.CacheLookups.WithLabelValues("miss")))
}

func TestActiveGaugeIncDec(t *testing.T) {
	c := NewCollector()
	c.IncActive("clang")
	c.IncActive("clang")
	c.DecActive("clang")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.ActiveCompiles.WithLabelValues("clang")))
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCompile("gcc", "ok", time.Second)
		c.ObserveCacheLookup(true)
		c.IncActive("gcc")
		c.DecActive("gcc")
		c.ObserveSandboxRun(true)
		c.SetRegistrySize(3)
	})
}
