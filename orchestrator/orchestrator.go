// Package orchestrator implements C9, the request orchestrator:
// route registration, response content negotiation, and the
// transparent remote-descriptor proxy. Grounded on the teacher's
// master/handler.go for the gin handler shape and on
// lib/connector.RespErr for error-path responses (spec.md §7's "4xx
// plus a diagnostic string").
package orchestrator

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compilebroker/driver"
	"compilebroker/metrics"
	"compilebroker/registry"
)

// Orchestrator wires C9 on top of an already-built Registry and
// Driver. It holds no state of its own beyond its outbound proxy
// client.
type Orchestrator struct {
	registry *registry.Registry
	driver   *driver.Driver
	proxy    *resty.Client
	sources  SourceStore
	metrics  *metrics.Collector
}

// New builds an Orchestrator. proxyTimeout bounds a single
// remote-descriptor proxy round trip.
func New(reg *registry.Registry, drv *driver.Driver, proxyTimeout time.Duration) *Orchestrator {
	if proxyTimeout <= 0 {
		proxyTimeout = 5 * time.Second
	}
	return &Orchestrator{
		registry: reg,
		driver:   drv,
		proxy:    resty.New().SetTimeout(proxyTimeout),
		sources:  noSourceStore{},
	}
}

// WithSourceStore swaps in a backing store for GET
// /source/{handler}/{action}/..., spec.md §6's "pluggable
// source-snippet store (external)". The default has no backing store
// and answers 501.
func (o *Orchestrator) WithSourceStore(s SourceStore) *Orchestrator {
	o.sources = s
	return o
}

// WithMetrics attaches a metrics collector and exposes it at
// GET /metrics once Register runs. Not part of spec.md §6's HTTP
// surface table; the teacher's own common/metrics.Collector is never
// bound to a handler either, but a registered-and-unreachable
// collector is dead weight, so this repo adds the one binding
// promhttp provides.
func (o *Orchestrator) WithMetrics(m *metrics.Collector) *Orchestrator {
	o.metrics = m
	return o
}

// Register attaches every C9 route to router.
func (o *Orchestrator) Register(router *gin.Engine) {
	router.GET("/healthcheck", o.handleHealthcheck)
	router.GET("/api/compilers", o.handleListCompilers)
	router.GET("/api/asm/:opcode", o.handleAsmDoc)
	router.GET("/client-options.json", o.handleClientOptions)
	router.POST("/api/compiler/:id/compile", o.handleCompile)
	router.POST("/compile", o.handleLegacyCompile)
	router.GET("/source/:handler/:action/*rest", o.handleSource)

	if o.metrics != nil {
		handler := promhttp.HandlerFor(o.metrics.Registry, promhttp.HandlerOpts{})
		router.GET("/metrics", gin.WrapH(handler))
	}
}
