package kafkax

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Header keys written by the outbox publisher on every lesson event.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// Headers is a view over kafka message headers. A *Headers is also the carrier used to
// move trace context between the publisher and consumers.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h Headers) Get(key string) string {
	for _, kv := range h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, kv := range h {
		keys[i] = kv.Key
	}
	return keys
}

// InjectTraceHeaders adds the span in ctx to headers and returns the grown slice.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := Headers(headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	return carrier
}

// ExtractTraceContext continues the producer's trace, if the message carries one.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	carrier := Headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// EventMeta identifies a consumed message for inbox dedupe and logging. LessonID is the
// message key, which the booking service sets to the lesson id.
type EventMeta struct {
	EventID   string
	EventType string
	LessonID  string
}

// ExtractEventMeta reads the publisher headers. Messages produced without them fall back
// to their log position for the id and their topic for the type, so replays of the same
// offset still dedupe.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	h := Headers(msg.Headers)
	meta := EventMeta{
		EventID:   h.Get(HeaderEventID),
		EventType: h.Get(HeaderEventType),
		LessonID:  string(msg.Key),
	}
	if meta.EventID == "" {
		meta.EventID = msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}
