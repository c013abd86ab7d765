package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Reporter exposes the same counts the flusher sends to the history DB as
// Prometheus series, for ops scraping -- an ambient addition alongside the
// spec-mandated history flush, not a replacement for it.
type Reporter struct {
	apiCalls      *prometheus.CounterVec
	ipConnections *prometheus.CounterVec
	clientVersion *prometheus.CounterVec
}

// NewReporter registers its collectors against reg and returns the Reporter.
// Call once at startup; registering twice against the same registry panics,
// matching client_golang's own contract.
func NewReporter(reg prometheus.Registerer) *Reporter {
	r := &Reporter{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskline_api_calls_total",
			Help: "Total API calls observed per account and route since startup.",
		}, []string{"account", "route"}),
		ipConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskline_ip_connections_total",
			Help: "Total connections observed per source country since startup.",
		}, []string{"country"}),
		clientVersion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duskline_client_version_total",
			Help: "Total connections observed per client type and version since startup.",
		}, []string{"client_type", "version"}),
	}
	reg.MustRegister(r.apiCalls, r.ipConnections, r.clientVersion)
	return r
}

func (r *Reporter) ObserveAPICall(account, route string) {
	r.apiCalls.WithLabelValues(account, route).Inc()
}

func (r *Reporter) ObserveIPConnection(country string) {
	r.ipConnections.WithLabelValues(country).Inc()
}

func (r *Reporter) ObserveClientVersion(clientType uint8, version string) {
	r.clientVersion.WithLabelValues(strconv.Itoa(int(clientType)), version).Inc()
}
