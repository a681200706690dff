package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_ingested_total",
		Help: "Inbound events recorded, labeled by stream",
	}, []string{"stream"})

	eventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_duplicate_total",
		Help: "Inbound events ignored because the provider event id was already recorded",
	}, []string{"stream"})

	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_applied_total",
		Help: "Events processed by the worker, labeled by whether they changed state",
	}, []string{"stream", "type", "result"})

	eventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_failed_total",
		Help: "Events whose unit of work rolled back; they stay unprocessed",
	}, []string{"stream", "type"})

	transfersEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_transfers_escalated_total",
		Help: "Unknown transfers moved to manual_review after the SLA expired",
	})

	idempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_idempotent_replays_total",
		Help: "Requests answered from a stored idempotent response",
	}, []string{"scope"})
)
