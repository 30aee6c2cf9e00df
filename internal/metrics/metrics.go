// Package metrics exposes the server's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRequests counts node sync polls handled.
	SyncRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licsync_sync_requests_total",
		Help: "Total number of node sync requests handled.",
	})

	// SyncPayloads counts responses that carried a payload.
	SyncPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licsync_sync_payloads_total",
		Help: "Total number of sync responses that included a payload.",
	})

	// SyncPayloadBytes totals payload bytes sent to nodes.
	SyncPayloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licsync_sync_payload_bytes_total",
		Help: "Total payload bytes sent to nodes.",
	})

	// Decisions counts arbitration outcomes per domain.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licsync_freshness_decisions_total",
		Help: "Total number of freshness decisions by domain and outcome.",
	}, []string{"domain", "decision"})

	// SnapshotRefreshes counts snapshot rebuilds per domain.
	SnapshotRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "licsync_snapshot_refreshes_total",
		Help: "Total number of snapshot refreshes by domain.",
	}, []string{"domain"})
)
