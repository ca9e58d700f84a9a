package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talentbridge-backend/core/escrow"
)

var (
	approvalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentbridge_approvals_total",
		Help: "Submissions that reached a fully mirrored settlement.",
	})
	conflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentbridge_conflicts_total",
		Help: "Requests refused because a guarded state check failed.",
	})
	chainErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentbridge_chain_errors_total",
		Help: "Escrow contract calls that failed outright.",
	})
	reconcileRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentbridge_reconcile_runs_total",
		Help: "Completed reconciliation passes.",
	})
	reconcileRepairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talentbridge_reconcile_repairs_total",
		Help: "Ledger repairs applied by the reconciler, by drift kind.",
	}, []string{"kind"})
	approvalsResumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talentbridge_approvals_resumed_total",
		Help: "Checkpointed approvals completed by a resume pass.",
	})
)

func init() {
	prometheus.MustRegister(approvalsTotal, conflictsTotal, chainErrorsTotal,
		reconcileRunsTotal, reconcileRepairsTotal, approvalsResumedTotal)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveReconcile feeds a reconcile report into the metrics. Wired as the
// reconcile loop's observer.
func ObserveReconcile(report escrow.ReconcileReport) {
	reconcileRunsTotal.Inc()
	for _, f := range report.Findings {
		if f.Repaired {
			reconcileRepairsTotal.WithLabelValues(f.Kind).Inc()
		}
	}
	if report.Resumed > 0 {
		approvalsResumedTotal.Add(float64(report.Resumed))
	}
}
