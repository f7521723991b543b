package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventMeta is the metadata every clinic event carries in Kafka headers.
type EventMeta struct {
	EventID   string
	EventType string
}

// NewMessage builds a message on the topic named after the event type, keyed by
// aggregate id so one appointment's events stay ordered within a partition.
func NewMessage(ctx context.Context, meta EventMeta, aggregateID string, payload []byte) kafka.Message {
	msg := kafka.Message{
		Topic: meta.EventType,
		Key:   []byte(aggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(meta.EventID)},
			{Key: HeaderEventType, Value: []byte(meta.EventType)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, HeaderEventID)
	eventType := HeaderValue(msg.Headers, HeaderEventType)
	if eventID == "" {
		eventID = msg.Topic + "/" + string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{EventID: eventID, EventType: eventType}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
