package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookEventsTotal)
}

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook deliveries by provider and result (accepted/ignored/bad_signature/bad_payload).",
	},
	[]string{"provider", "result"},
)

func IncWebhookEvent(provider, result string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}
