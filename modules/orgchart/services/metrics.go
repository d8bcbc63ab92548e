package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgchartImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgchart",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of roster rows imported broken down by result.",
	}, []string{"result"})

	orgchartCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgchart",
		Subsystem: "resolution",
		Name:      "commits_total",
		Help:      "Total number of resolution commits broken down by result.",
	}, []string{"result"})

	orgchartPositionsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgchart",
		Subsystem: "resolution",
		Name:      "positions_updated_total",
		Help:      "Total number of positions filled by resolution commits broken down by field.",
	}, []string{"field"})

	orgchartWeightRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orgchart",
		Subsystem: "ledger",
		Name:      "weight_rejections_total",
		Help:      "Total number of assignment saves refused because weights did not sum to 100.",
	})

	orgchartCyclesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orgchart",
		Subsystem: "validator",
		Name:      "cycles_detected_total",
		Help:      "Total number of superior cycles found during validation.",
	})

	orgchartPendingItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orgchart",
		Subsystem: "session",
		Name:      "pending_items",
		Help:      "Positions still missing a value broken down by field.",
	}, []string{"field"})
)

func recordImportRows(result string, n int) {
	if n <= 0 {
		return
	}
	orgchartImportRows.WithLabelValues(result).Add(float64(n))
}

func recordCommit(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	orgchartCommits.WithLabelValues(result).Inc()
}

func recordPositionsUpdated(field string, n int) {
	if n <= 0 {
		return
	}
	orgchartPositionsUpdated.WithLabelValues(field).Add(float64(n))
}

func recordPending(missingLevels, missingSuperiors int) {
	orgchartPendingItems.WithLabelValues("level").Set(float64(missingLevels))
	orgchartPendingItems.WithLabelValues("superior").Set(float64(missingSuperiors))
}
