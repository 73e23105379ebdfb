package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gusen_messages_sent_total",
		Help: "Total messages accepted by the store.",
	})
	MessagesDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gusen_messages_deduped_total",
		Help: "Total sends answered from an existing row via client key.",
	})
	ReceiptsMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gusen_receipts_marked_total",
		Help: "Total read receipts inserted by mark-read calls.",
	})
	ConversationsResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gusen_conversations_resolved_total",
		Help: "Total direct-conversation find-or-create calls.",
	})
	WSEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gusen_ws_events_total",
		Help: "Total events broadcast over websocket, by type.",
	}, []string{"type"})
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gusen_ws_connections",
		Help: "Current websocket connections.",
	})
)

func Register() {
	prometheus.MustRegister(
		MessagesSent, MessagesDeduped,
		ReceiptsMarked, ConversationsResolved,
		WSEvents, WSConnections,
	)
}
