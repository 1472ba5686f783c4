// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the bridge's own operational counters and
// gauges for Prometheus scraping. A sibling system might query a Prometheus
// server for cluster metric data (internal/metricdata/prometheus.go);
// here the same client_golang dependency is used the other way around,
// to expose this process's own counters, which is the role
// prometheus/client_golang plays in most of the ecosystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plcbridge",
		Subsystem: "ingestion",
		Name:      "connections_active",
		Help:      "Number of PLC TCP connections currently held open.",
	})

	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plcbridge",
		Subsystem: "ingestion",
		Name:      "connections_accepted_total",
		Help:      "PLC TCP connections accepted since startup.",
	})

	AccumulatorDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plcbridge",
		Subsystem: "ingestion",
		Name:      "accumulator_drops_total",
		Help:      "Frame fragments discarded because the accumulator exceeded its size cap.",
	})

	TagCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plcbridge",
		Subsystem: "tagcache",
		Name:      "entries",
		Help:      "Current number of tags held in the smart tag cache.",
	})

	BroadcastClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "plcbridge",
		Subsystem: "broadcaster",
		Name:      "clients_active",
		Help:      "Number of connected websocket clients.",
	})

	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plcbridge",
		Subsystem: "broadcaster",
		Name:      "client_drops_total",
		Help:      "Batches dropped because a client's outbound queue was full.",
	})

	HarvesterLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plcbridge",
		Subsystem: "broadcaster",
		Name:      "harvester_tick_seconds",
		Help:      "Wall time spent per harvester tick, by harvester name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"harvester"})
)
