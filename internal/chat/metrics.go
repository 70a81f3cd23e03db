package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Inbound realtime events by type.",
	}, []string{"type"})

	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_deliveries_dropped_total",
		Help: "Outbound events dropped because a connection buffer was full or closed.",
	})

	sendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_send_failures_total",
		Help: "Rejected or failed sends by error code.",
	}, []string{"reason"})

	presenceConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_presence_connections",
		Help: "Connections currently registered in the presence registry.",
	})

	storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_store_latency_seconds",
		Help:    "Store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Instrument returns a Store that records chat_store_latency_seconds for
// every operation.
func Instrument(inner Store) Store {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner Store
}

func observe(op string, start time.Time) {
	storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) FindConversationByPair(ctx context.Context, pairKey string) (*Conversation, error) {
	defer observe("find_conversation_by_pair", time.Now())
	return m.inner.FindConversationByPair(ctx, pairKey)
}

func (m *metricsStore) InsertConversation(ctx context.Context, c *Conversation) error {
	defer observe("insert_conversation", time.Now())
	return m.inner.InsertConversation(ctx, c)
}

func (m *metricsStore) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, id)
}

func (m *metricsStore) ListConversations(ctx context.Context, p Participant) ([]*Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, p)
}

func (m *metricsStore) AppendMessage(ctx context.Context, msg *Message) error {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, msg)
}

func (m *metricsStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, conversationID)
}

func (m *metricsStore) MarkRead(ctx context.Context, conversationID uuid.UUID, reader string) (int, error) {
	defer observe("mark_read", time.Now())
	return m.inner.MarkRead(ctx, conversationID, reader)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}
