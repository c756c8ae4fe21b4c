package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hamed0406/statusmonitor/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes transitions as JSON events keyed by site name, so every
// site's events stay ordered within one partition.
type Kafka struct {
	w     messageWriter
	topic string
	log   *zap.Logger
}

func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Kafka{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
		log:   log.With(zap.String("component", "kafka.producer"), zap.String("topic", topic)),
	}
}

// TransitionEvent is the message value written to the topic.
type TransitionEvent struct {
	Kind string `json:"kind"`
	domain.Transition
}

func (k *Kafka) Send(ctx context.Context, a Alert) error {
	value, err := json.Marshal(TransitionEvent{Kind: a.Kind, Transition: a.Transition})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	tr := otel.Tracer("notify.kafka")
	ctx, span := tr.Start(ctx, "kafka.produce "+k.topic, trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", k.topic),
		),
	)
	defer span.End()

	hdrs := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, hdrs)

	msg := kafka.Message{Key: []byte(a.Transition.Site), Value: value, Headers: hdrs.toKafka()}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		k.log.Error("kafka_write_failed", zap.String("site", a.Transition.Site), zap.Error(err))
		return fmt.Errorf("kafka write: %w", err)
	}
	k.log.Debug("kafka_event_published", zap.String("site", a.Transition.Site), zap.String("kind", a.Kind))
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }

type headerCarrier map[string]string

func (h headerCarrier) Get(k string) string { return h[k] }
func (h headerCarrier) Set(k, v string)     { h[k] = v }
func (h headerCarrier) Keys() []string {
	ks := make([]string, 0, len(h))
	for k := range h {
		ks = append(ks, k)
	}
	return ks
}

func (h headerCarrier) toKafka() []kafka.Header {
	hs := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	return hs
}
