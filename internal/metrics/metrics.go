package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters exported by the recovery and verification
// flows. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TokensIssuedTotal      *prometheus.CounterVec
	TokensConsumedTotal    *prometheus.CounterVec
	TokensPurgedTotal      prometheus.Counter
	RateLimitDeniedTotal   *prometheus.CounterVec
	NotificationsSentTotal *prometheus.CounterVec
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_tokens_issued_total",
			Help: "Total number of single-use tokens issued",
		}, []string{"kind"}),
		TokensConsumedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_tokens_consumed_total",
			Help: "Total number of token consumption attempts by result",
		}, []string{"kind", "result"}),
		TokensPurgedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idm_tokens_purged_total",
			Help: "Total number of expired tokens removed",
		}),
		RateLimitDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_ratelimit_denied_total",
			Help: "Total number of requests denied by a per-identifier rate limiter",
		}, []string{"scope"}),
		NotificationsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idm_notifications_sent_total",
			Help: "Total number of notification attempts by template and status",
		}, []string{"template", "status"}),
	}
}

func (m *Metrics) IncTokensIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncTokensConsumed(kind, result string) {
	if m == nil {
		return
	}
	m.TokensConsumedTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) AddTokensPurged(n int64) {
	if m == nil {
		return
	}
	m.TokensPurgedTotal.Add(float64(n))
}

func (m *Metrics) IncRateLimitDenied(scope string) {
	if m == nil {
		return
	}
	m.RateLimitDeniedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncNotifications(template, status string) {
	if m == nil {
		return
	}
	m.NotificationsSentTotal.WithLabelValues(template, status).Inc()
}
