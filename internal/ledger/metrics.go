package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var journalsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_journals_posted_total",
	Help: "Journals handed to the store, labeled by reference type",
}, []string{"ref_type"})
