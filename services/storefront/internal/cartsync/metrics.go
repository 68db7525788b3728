package cartsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync sources reported by SyncCart.
const (
	SourceRemoteUser = "remote_user"
	SourceRemoteRows = "remote_rows"
	SourceMirror     = "mirror"
	SourceGuest      = "guest"
)

var (
	remoteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_remote_failures_total",
			Help: "Total number of failed calls to the cart backend, by operation",
		},
		[]string{"op"},
	)

	syncSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_sync_source_total",
			Help: "Total number of cart syncs, by the source the cart was taken from",
		},
		[]string{"source"},
	)

	mergedLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_guest_merge_lines_total",
			Help: "Guest cart lines processed by login merges, by outcome",
		},
		[]string{"outcome"},
	)
)
