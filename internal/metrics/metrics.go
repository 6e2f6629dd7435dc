package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the bot's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Updates     *prometheus.CounterVec
	Searches    *prometheus.CounterVec
	RateLimited prometheus.Counter
	Denied      prometheus.Counter
	Upstream    *prometheus.CounterVec
	Deletions   *prometheus.CounterVec
	Sessions    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "updates_total",
			Help:      "Inbound updates by kind.",
		}, []string{"kind"}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "searches_total",
			Help:      "Searches by outcome.",
		}, []string{"outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		}),
		Denied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "membership_denied_total",
			Help:      "Requests rejected by the membership gate.",
		}),
		Upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "upstream_requests_total",
			Help:      "Metadata provider requests by path and result.",
		}, []string{"path", "result"}),
		Deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviebot",
			Name:      "scheduled_deletions_total",
			Help:      "Fired message deletions by result.",
		}, []string{"result"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moviebot",
			Name:      "search_sessions",
			Help:      "Live search sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates, m.Searches, m.RateLimited, m.Denied, m.Upstream, m.Deletions, m.Sessions)
	}
	return m
}

func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) Search(outcome string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) Unauthorized() {
	if m == nil {
		return
	}
	m.Denied.Inc()
}

func (m *Metrics) UpstreamRequest(path, result string) {
	if m == nil {
		return
	}
	m.Upstream.WithLabelValues(path, result).Inc()
}

func (m *Metrics) Deletion(result string) {
	if m == nil {
		return
	}
	m.Deletions.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}
