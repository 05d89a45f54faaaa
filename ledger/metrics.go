package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_ledger_commits",
	Help: "Number of new ledger entries persisted",
}, []string{"kind"})

var commitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_ledger_commit_failures",
	Help: "Number of ledger entries which failed to persist",
}, []string{"kind"})
