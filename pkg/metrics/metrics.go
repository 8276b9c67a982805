package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-payment-service/pkg/breaker"
)

const namespace = "payment"

// Collector owns every Prometheus series of the service. It satisfies the
// recorder interfaces of pkg/cache and pkg/resilient and the breaker
// state-change hook.
type Collector struct {
	cacheRequests  *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamRetries *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	jobsEnqueued     *prometheus.CounterVec
	jobsPublishFail  *prometheus.CounterVec
	jobsDelivered    *prometheus.CounterVec
	jobsRetried      *prometheus.CounterVec
	jobsDead         *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector registers all series on reg. A nil reg uses the default
// registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by resource type and result",
		}, []string{"resource_type", "result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Cache entries removed by resource type and reason",
		}, []string{"resource_type", "reason"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Outbound calls by upstream and outcome",
		}, []string{"upstream", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Outbound call duration including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Outbound retry attempts by upstream",
		}, []string{"upstream"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
		}, []string{"upstream"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker transitions per upstream",
		}, []string{"upstream", "from", "to"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_enqueued_total",
			Help:      "Notification jobs published by kind",
		}, []string{"kind"}),
		jobsPublishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_publish_failures_total",
			Help:      "Notification jobs that could not be published",
		}, []string{"kind"}),
		jobsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_delivered_total",
			Help:      "Notification jobs delivered by kind",
		}, []string{"kind"}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_retried_total",
			Help:      "Notification jobs scheduled for another attempt",
		}, []string{"kind"}),
		jobsDead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_dead_total",
			Help:      "Notification jobs moved to the dead letter queue",
		}, []string{"kind"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_delivery_duration_seconds",
			Help:      "Notification delivery attempt duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.cacheRequests,
		c.cacheEvictions,
		c.upstreamCalls,
		c.upstreamLatency,
		c.upstreamRetries,
		c.breakerState,
		c.breakerTransitions,
		c.jobsEnqueued,
		c.jobsPublishFail,
		c.jobsDelivered,
		c.jobsRetried,
		c.jobsDead,
		c.deliveryDuration,
		c.httpRequests,
		c.httpLatency,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}
	return c
}

/**** cache ****/

func (c *Collector) CacheHit(resourceType string) {
	c.cacheRequests.WithLabelValues(resourceType, "hit").Inc()
}

func (c *Collector) CacheMiss(resourceType string) {
	c.cacheRequests.WithLabelValues(resourceType, "miss").Inc()
}

func (c *Collector) CacheEviction(resourceType, reason string) {
	c.cacheEvictions.WithLabelValues(resourceType, reason).Inc()
}

/**** upstream ****/

func (c *Collector) UpstreamCall(upstream, outcome string, elapsed time.Duration) {
	c.upstreamCalls.WithLabelValues(upstream, outcome).Inc()
	if elapsed > 0 {
		c.upstreamLatency.WithLabelValues(upstream).Observe(elapsed.Seconds())
	}
}

func (c *Collector) UpstreamRetry(upstream string) {
	c.upstreamRetries.WithLabelValues(upstream).Inc()
}

// BreakerStateChange matches breaker.Settings.OnStateChange.
func (c *Collector) BreakerStateChange(name string, from, to breaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(to))
	c.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

/**** notification ****/

func (c *Collector) JobEnqueued(kind string) {
	c.jobsEnqueued.WithLabelValues(kind).Inc()
}

func (c *Collector) JobPublishFailed(kind string) {
	c.jobsPublishFail.WithLabelValues(kind).Inc()
}

func (c *Collector) JobDelivered(kind string, elapsed time.Duration) {
	c.jobsDelivered.WithLabelValues(kind).Inc()
	c.deliveryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (c *Collector) JobRetried(kind string) {
	c.jobsRetried.WithLabelValues(kind).Inc()
}

func (c *Collector) JobDeadLettered(kind string) {
	c.jobsDead.WithLabelValues(kind).Inc()
}

/**** http ****/

func (c *Collector) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
