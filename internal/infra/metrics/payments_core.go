package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		fulfillmentsTotal,
		verifyDuration,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment intents by status (pending/completed/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total minor-unit value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	fulfillmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_fulfillments_total",
			Help: "Fulfillment attempts by purpose and result (applied/already_processed/error).",
		},
		[]string{"purpose", "result"},
	)

	verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of verify-and-fulfill in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncFulfillment(purpose, result string) {
	fulfillmentsTotal.WithLabelValues(norm(purpose), norm(result)).Inc()
}

func ObserveVerifyDuration(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	verifyDuration.WithLabelValues(result).Observe(d.Seconds())
}
