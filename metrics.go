package vetis

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// serverMetrics tracks request volume and latency per listener, the same
// counter+histogram pairing Caddy's metrics app registers per server.
type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newServerMetrics registers a counter and histogram labeled with
// listenerName against reg. If reg already holds collectors for the same
// listenerName (a listener started again after Stop), those are reused.
// reg may be nil, in which case metrics are tracked in memory but never
// exported.
func newServerMetrics(reg prometheus.Registerer, listenerName string) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "vetis",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Count of HTTP requests handled, by method and status.",
			ConstLabels: prometheus.Labels{"listener": listenerName},
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "vetis",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Request handling latency, by method.",
			ConstLabels: prometheus.Labels{"listener": listenerName},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		var are prometheus.AlreadyRegisteredError
		if err := reg.Register(m.requests); errors.As(err, &are) {
			m.requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else if err != nil {
			panic(err)
		}
		if err := reg.Register(m.duration); errors.As(err, &are) {
			m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else if err != nil {
			panic(err)
		}
	}
	return m
}

func (m *serverMetrics) observe(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}
