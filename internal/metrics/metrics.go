// Package metrics holds the Prometheus collectors of the bot. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/m3rciful/tempmailbot/core/buildinfo"
)

const namespace = "tempmailbot"

// Metrics groups every collector exported by the bot.
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	BroadcastSends   *prometheus.CounterVec
	TelegramSends    *prometheus.CounterVec
	Updates          *prometheus.CounterVec
	UpdateDuration   *prometheus.HistogramVec
	RateLimited      prometheus.Counter
	KnownUsers       prometheus.Gauge
}

// New registers the collectors on reg, plus a constant build_info series.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata; the value is always 1.",
		ConstLabels: prometheus.Labels{
			"version": buildinfo.Version,
			"commit":  buildinfo.Commit,
		},
	}).Set(1)
	return &Metrics{
		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands handled, by command and outcome.",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent handling a command.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Mail provider calls, by operation and HTTP status (0 for transport errors).",
			},
			[]string{"op", "code"},
		),
		ProviderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Mail provider call latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		BroadcastSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_sends_total",
				Help:      "Broadcast deliveries, by result.",
			},
			[]string{"result"},
		),
		TelegramSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_sends_total",
				Help:      "Outbound Telegram calls, by action and result.",
			},
			[]string{"action", "result"},
		),
		Updates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Incoming Telegram updates, by kind and handler result.",
			},
			[]string{"kind", "result"},
		),
		UpdateDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "update_duration_seconds",
				Help:      "Time spent in the handler chain per update.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		RateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Updates dropped by the per-user rate limit.",
			},
		),
		KnownUsers: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "known_users",
				Help:      "Users with a session in memory.",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// ObserveCommand records a handled command. outcome is a short reply class
// such as "ok" or "not_verified".
func (m *Metrics) ObserveCommand(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveProviderCall matches the mail client observer signature.
func (m *Metrics) ObserveProviderCall(op string, status int, elapsed time.Duration, _ error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveBroadcastSend records one broadcast delivery attempt.
func (m *Metrics) ObserveBroadcastSend(err error) {
	if m == nil {
		return
	}
	m.BroadcastSends.WithLabelValues(result(err)).Inc()
}

// ObserveTelegramSend matches the outbound dispatcher result hook.
func (m *Metrics) ObserveTelegramSend(action string, err error) {
	if m == nil {
		return
	}
	m.TelegramSends.WithLabelValues(action, result(err)).Inc()
}

// ObserveUpdate matches the update middleware hook.
func (m *Metrics) ObserveUpdate(kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(kind, result(err)).Inc()
	m.UpdateDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// IncRateLimited counts one throttled update.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// SetKnownUsers updates the session gauge.
func (m *Metrics) SetKnownUsers(n int) {
	if m == nil {
		return
	}
	m.KnownUsers.Set(float64(n))
}
