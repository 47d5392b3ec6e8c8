package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionsActive gauges the number of live connection sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Current number of active chat sessions.",
		},
	)

	// sessionsSuperseded counts reconnects that replaced a live registration
	// for the same conversation direction.
	sessionsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_superseded_total",
			Help: "Total connections replaced by a newer connect for the same direction.",
		},
	)

	// messagesRouted counts message events fanned out to live connections,
	// including assistant reply chunks.
	messagesRouted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_routed_total",
			Help: "Total message events routed to live connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsActive, sessionsSuperseded, messagesRouted)
}
