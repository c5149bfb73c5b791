package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the workflow and HTTP collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	SectionUpdates       *prometheus.CounterVec
	Submissions          *prometheus.CounterVec
	CheckoutSessions     *prometheus.CounterVec
	PaymentsConfirmed    prometheus.Counter
	WebhookEvents        *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SectionUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_section_updates_total",
			Help: "Section update attempts by section and outcome",
		}, []string{"section", "outcome"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_submissions_total",
			Help: "Application submission attempts by outcome",
		}, []string{"outcome"}),
		CheckoutSessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_checkout_sessions_total",
			Help: "Checkout session requests by outcome",
		}, []string{"outcome"}),
		PaymentsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "softhire_payments_confirmed_total",
			Help: "Applications transitioned to paid",
		}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_webhook_events_total",
			Help: "Payment webhook events by type and outcome",
		}, []string{"type", "outcome"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_notifications_total",
			Help: "Notification deliveries by kind and outcome",
		}, []string{"kind", "outcome"}),
		ProviderCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "softhire_provider_call_duration_seconds",
			Help:    "Duration of calls to external providers",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "operation"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "softhire_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "softhire_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) SectionUpdate(section, outcome string) {
	if m == nil {
		return
	}
	m.SectionUpdates.WithLabelValues(section, outcome).Inc()
}

func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutSessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentConfirmed() {
	if m == nil {
		return
	}
	m.PaymentsConfirmed.Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) Notification(kind, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}

// ObserveProviderCall records the duration of an outbound call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProviderCall(provider, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(route, method, status string, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
}
