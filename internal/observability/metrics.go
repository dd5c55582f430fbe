package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpDurationSeconds  *prometheus.HistogramVec
	messagesCreatedTotal *prometheus.CounterVec
	messagesDeletedTotal prometheus.Counter
	retentionSweptTotal  prometheus.Counter
	typingEntries        prometheus.Gauge
	feedConnections      prometheus.Gauge
	botRepliesTotal      *prometheus.CounterVec
	uploadsTotal         *prometheus.CounterVec
	uploadsRejectedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		messagesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_created_total",
			Help: "Messages stored, by message type.",
		}, []string{"type"})

		messagesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_deleted_total",
			Help: "Messages deleted on request.",
		})

		retentionSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_retention_swept_total",
			Help: "Messages removed by the retention sweeper.",
		})

		typingEntries = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_typing_entries",
			Help: "Typing indicators held in memory after the last sweep.",
		})

		feedConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_feed_connections",
			Help: "Open realtime room feed connections.",
		})

		botRepliesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_bot_replies_total",
			Help: "Replies posted by the bot, by command.",
		}, []string{"command"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_uploads_total",
			Help: "Stored uploads, by suggested message type.",
		}, []string{"type"})

		uploadsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_uploads_rejected_total",
			Help: "Rejected uploads, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpDurationSeconds,
			messagesCreatedTotal,
			messagesDeletedTotal,
			retentionSweptTotal,
			typingEntries,
			feedConnections,
			botRepliesTotal,
			uploadsTotal,
			uploadsRejectedTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPDuration exposes the request latency histogram.
func HTTPDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpDurationSeconds
}

// MessagesCreated exposes the created-message counter.
func MessagesCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesCreatedTotal
}

// MessagesDeleted exposes the deleted-message counter.
func MessagesDeleted() prometheus.Counter {
	RegisterMetrics()
	return messagesDeletedTotal
}

// RetentionSwept exposes the retention counter.
func RetentionSwept() prometheus.Counter {
	RegisterMetrics()
	return retentionSweptTotal
}

// TypingEntries exposes the typing gauge.
func TypingEntries() prometheus.Gauge {
	RegisterMetrics()
	return typingEntries
}

// FeedConnections exposes the websocket connection gauge.
func FeedConnections() prometheus.Gauge {
	RegisterMetrics()
	return feedConnections
}

// BotReplies exposes the bot reply counter.
func BotReplies() *prometheus.CounterVec {
	RegisterMetrics()
	return botRepliesTotal
}

// Uploads exposes the stored upload counter.
func Uploads() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}

// UploadsRejected exposes the rejected upload counter.
func UploadsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsRejectedTotal
}
