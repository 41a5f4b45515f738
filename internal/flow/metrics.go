// internal/flow/metrics.go
package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFlowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xoflow",
		Name:      "flows_started_total",
		Help:      "Flows committed to a navigation plan, by transport.",
	}, []string{"transport"})
	metricFlowsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xoflow",
		Name:      "flows_completed_total",
		Help:      "Flows whose completion fragment was observed, by transport.",
	}, []string{"transport"})
	metricFlowsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xoflow",
		Name:      "flows_closed_total",
		Help:      "Sessions torn down, by the phase they were in and the cause.",
	}, []string{"phase", "cause"})
	metricContextUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xoflow",
		Name:      "context_unavailable_total",
		Help:      "Popup opens or navigations refused by the browser.",
	})
	metricSuppressedSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xoflow",
		Name:      "suppressed_signals_total",
		Help:      "Watcher signals dropped because their session was no longer waiting.",
	})
)

const (
	causeCloseFlow   = "close_flow"
	causeSuperseded  = "superseded"
	causeUserClosed  = "user_closed"
	causeUnavailable = "context_unavailable"
)

func recordStarted(transport string) {
	metricFlowsStarted.WithLabelValues(transport).Inc()
}

func recordCompleted(transport string) {
	metricFlowsCompleted.WithLabelValues(transport).Inc()
}

func recordClosed(phase Phase, cause string) {
	metricFlowsClosed.WithLabelValues(phase.String(), cause).Inc()
}

func recordUnavailable() {
	metricContextUnavailable.Inc()
}

func recordSuppressed() {
	metricSuppressedSignals.Inc()
}
