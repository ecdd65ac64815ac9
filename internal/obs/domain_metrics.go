package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentLinkTotal counts payment-link generation outcomes per flow.
	PaymentLinkTotal *prometheus.CounterVec
	// FoxyWebhookTotal counts inbound transaction webhook processing outcomes.
	FoxyWebhookTotal *prometheus.CounterVec
	// CallbackTotal counts checkout-callback processing outcomes.
	CallbackTotal *prometheus.CounterVec
	// SubscriptionRenewalTotal counts subscription renewal attempts by outcome.
	SubscriptionRenewalTotal *prometheus.CounterVec
	// FoxyRequestDuration records latency of outbound provider API calls in milliseconds.
	FoxyRequestDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentLinkTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_link_total",
			Help:      "Count of payment-link generation outcomes.",
		}, []string{"flow", "result"})
		FoxyWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "foxy_webhook_total",
			Help:      "Count of processed transaction webhooks by event and outcome.",
		}, []string{"event", "result"})
		CallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_total",
			Help:      "Count of checkout callback outcomes.",
		}, []string{"result"})
		SubscriptionRenewalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_renewal_total",
			Help:      "Count of subscription renewal attempts by outcome.",
		}, []string{"result"})
		FoxyRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "foxy_request_duration_ms",
			Help:      "Latency of outbound Foxy API requests in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000},
		}, []string{"method", "result"})

		mustRegisterCollector(reg, PaymentLinkTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentLinkTotal = v
			}
		})
		mustRegisterCollector(reg, FoxyWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FoxyWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, CallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CallbackTotal = v
			}
		})
		mustRegisterCollector(reg, SubscriptionRenewalTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SubscriptionRenewalTotal = v
			}
		})
		mustRegisterCollector(reg, FoxyRequestDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				FoxyRequestDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
