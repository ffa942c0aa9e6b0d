/*
Package metrics provides Prometheus-based instrumentation for the
channel, router, manifold, control-plane, and pipeline-manager layers of
an executor.

# Overview

Every component that participates in data movement reports through a
single shared *Metrics value constructed once per executor and threaded
through constructors — there is no package-level global collector.

# Usage

	m := metrics.NewMetrics()
	router.Use(metrics.Middleware(m))

	m.SetChannelLevels("source->sink", 12, 64)
	m.RecordRouterDispatch("tagged_router", "a")

# Metrics Endpoint

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package metrics
