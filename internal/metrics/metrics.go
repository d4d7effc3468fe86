// Package metrics exposes prometheus collectors for the webhook server, the
// update handlers and broadcast jobs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worq1337/bot228-repo/internal/broadcast"
	"github.com/worq1337/bot228-repo/internal/logger"
)

// Metrics owns a private registry with all collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	webhookRequests   *prometheus.CounterVec
	updateDuration    *prometheus.HistogramVec
	deliveries        *prometheus.CounterVec
	jobs              *prometheus.CounterVec
	cachedClients     prometheus.Gauge
	registeredMirrors prometheus.Gauge
}

// New creates the collectors. Process and Go runtime collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorbot",
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by route and response status.",
		}, []string{"route", "status"}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mirrorbot",
			Name:      "update_duration_seconds",
			Help:      "Time spent handling one update, by update type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorbot",
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast delivery attempts by mode and result.",
		}, []string{"mode", "result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorbot",
			Name:      "broadcast_jobs_total",
			Help:      "Finished broadcast jobs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		cachedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mirrorbot",
			Name:      "dispatch_cached_clients",
			Help:      "Mirror bot clients held by the dispatcher.",
		}),
		registeredMirrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mirrorbot",
			Name:      "registered_mirrors",
			Help:      "Mirror bots in the credential registry.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookRequests,
		m.updateDuration,
		m.deliveries,
		m.jobs,
		m.cachedClients,
		m.registeredMirrors,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WebhookRequest counts one inbound webhook request.
func (m *Metrics) WebhookRequest(route string, status int) {
	m.webhookRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// CachedClients sets the number of cached mirror clients.
func (m *Metrics) CachedClients(n int) {
	m.cachedClients.Set(float64(n))
}

// RegisteredMirrors sets the number of registered mirror bots.
func (m *Metrics) RegisteredMirrors(n int) {
	m.registeredMirrors.Set(float64(n))
}

// Delivered implements broadcast.Observer.
func (m *Metrics) Delivered(mode broadcast.Mode, err error) {
	result := "success"
	switch {
	case errors.Is(err, broadcast.ErrRecipientUnreachable):
		result = "unreachable"
	case err != nil:
		result = "failure"
	}
	m.deliveries.WithLabelValues(string(mode), result).Inc()
}

// JobFinished implements broadcast.Observer.
func (m *Metrics) JobFinished(s broadcast.Snapshot) {
	outcome := "completed"
	if s.Cancelled {
		outcome = "cancelled"
	}
	m.jobs.WithLabelValues(string(s.Mode), outcome).Inc()
}

// Middleware observes the handling time of every update.
func (m *Metrics) Middleware() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			defer func() {
				m.updateDuration.WithLabelValues(logger.Describe(update).Type).Observe(time.Since(start).Seconds())
			}()
			next(ctx, b, update)
		}
	}
}
