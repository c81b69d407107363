package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the dispatch
// engine.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	messagesSentTotal       prometheus.Counter
	messagesFailedTotal     prometheus.Counter
	messageSendDuration     prometheus.Histogram
	engineInvocationsTotal  *prometheus.CounterVec
	campaignsFinalizedTotal *prometheus.CounterVec
	pacingSleepSecondsTotal prometheus.Counter
	staleSendingMessages    prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "campaign_scheduler",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		messagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "messages_sent_total",
				Help:      "Total number of campaign messages delivered successfully.",
			},
		),
		messagesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "messages_failed_total",
				Help:      "Total number of campaign messages that ended in failed state.",
			},
		),
		messageSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "campaign_scheduler",
				Name:      "message_send_duration_seconds",
				Help:      "Transport send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		engineInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "engine_invocations_total",
				Help:      "Total number of dispatch engine invocations by trigger.",
			},
			[]string{"trigger"},
		),
		campaignsFinalizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "campaigns_finalized_total",
				Help:      "Total number of campaigns finalized, split by clean/with_errors.",
			},
			[]string{"outcome"},
		),
		pacingSleepSecondsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "campaign_scheduler",
				Name:      "pacing_sleep_seconds_total",
				Help:      "Cumulative seconds spent sleeping for pacing delays.",
			},
		),
		staleSendingMessages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "campaign_scheduler",
				Name:      "stale_sending_messages",
				Help:      "Messages stuck in SENDING past the staleness threshold.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.messagesSentTotal,
		m.messagesFailedTotal,
		m.messageSendDuration,
		m.engineInvocationsTotal,
		m.campaignsFinalizedTotal,
		m.pacingSleepSecondsTotal,
		m.staleSendingMessages,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncMessageSent() {
	if m == nil {
		return
	}
	m.messagesSentTotal.Inc()
}

func (m *Metrics) IncMessageFailed() {
	if m == nil {
		return
	}
	m.messagesFailedTotal.Inc()
}

func (m *Metrics) ObserveMessageSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.messageSendDuration.Observe(seconds)
}

func (m *Metrics) IncEngineInvocation(trigger string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(trigger))
	if label == "" {
		label = "unknown"
	}
	m.engineInvocationsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) IncCampaignFinalized(withErrors bool) {
	if m == nil {
		return
	}
	outcome := "clean"
	if withErrors {
		outcome = "with_errors"
	}
	m.campaignsFinalizedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddPacingSleep(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		return
	}
	m.pacingSleepSecondsTotal.Add(seconds)
}

func (m *Metrics) SetStaleSendingMessages(count int) {
	if m == nil {
		return
	}
	m.staleSendingMessages.Set(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
