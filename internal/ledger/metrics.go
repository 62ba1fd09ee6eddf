package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var compensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_compensations_total",
	Help: "Compensating writes by outcome: applied, queued, resolved, abandoned.",
}, []string{"result"})
