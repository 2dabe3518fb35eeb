// Package metrics holds the ledger's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlements counts settlement calls by protocol and outcome kind.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "settlements_total",
		Help:      "Settlement calls by protocol and outcome.",
	}, []string{"protocol", "outcome"})

	// Recomputes counts materializer passes by trigger.
	Recomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "balance_recomputes_total",
		Help:      "Balance materializer passes by trigger.",
	}, []string{"trigger"})

	// BalanceRowsWritten counts balance rows rewritten by the materializer.
	BalanceRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "balance_rows_written_total",
		Help:      "Balance rows rewritten by the materializer.",
	})

	// OutboxPublished counts outbox events handed to Kafka.
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "outbox_published_total",
		Help:      "Outbox events published, by result.",
	}, []string{"result"})
)

