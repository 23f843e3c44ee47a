// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Detention events ───────────────────────────────────────────────────────

var CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "events",
	Name:      "check_ins_total",
	Help:      "Total check-ins by event type.",
}, []string{"type"})

var CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "events",
	Name:      "check_outs_total",
	Help:      "Total check-outs.",
})

// ActiveEvents is 1 while the driver is checked in somewhere.
var ActiveEvents = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dwell",
	Subsystem: "events",
	Name:      "active",
	Help:      "Number of open detention events.",
})

// DetentionMinutes observes billable minutes per settled event.
var DetentionMinutes = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "dwell",
	Subsystem: "events",
	Name:      "detention_minutes",
	Help:      "Billable detention minutes per settled event.",
	Buckets:   []float64{0, 15, 30, 60, 120, 240, 480, 960},
})

var BilledAmount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "events",
	Name:      "billed_dollars_total",
	Help:      "Total detention billed at check-out, in dollars.",
})

// ─── Invoices ───────────────────────────────────────────────────────────────

var InvoicesGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "invoices",
	Name:      "generated_total",
	Help:      "Total invoices generated.",
})

var InvoiceEmails = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "invoices",
	Name:      "emails_total",
	Help:      "Invoice emails by result (sent, failed, disabled).",
}, []string{"result"})

// ─── Notifications ──────────────────────────────────────────────────────────

var PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dwell",
	Subsystem: "notify",
	Name:      "publish_failures_total",
	Help:      "MQTT publish failures by event type.",
}, []string{"type"})

// ObserveSettlement records a completed check-out.
func ObserveSettlement(detentionMinutes int64, amount float64) {
	CheckOuts.Inc()
	DetentionMinutes.Observe(float64(detentionMinutes))
	if amount > 0 {
		BilledAmount.Add(amount)
	}
}
