// Package redpanda publishes task and diagnostics lifecycle events to a
// Redpanda (Kafka API) topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// producer is the part of *kgo.Client the publisher needs.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Publisher implements domain.EventPublisher. Records are produced
// asynchronously; delivery failures are logged, never returned.
type Publisher struct {
	client producer
	topic  string
	now    func() time.Time
	close  func()
	ping   func(context.Context) error
}

// NewPublisher connects to brokers and ensures topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.new: %w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	slog.Info("creating redpanda event publisher", slog.Any("brokers", brokers), slog.String("topic", topic))

	kotelService := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.new: redpanda client: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	p := newPublisher(client, topic)
	p.close = func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Flush(flushCtx); err != nil {
			slog.Warn("failed to flush pending events", slog.Any("error", err))
		}
		client.Close()
	}
	p.ping = client.Ping
	return p, nil
}

func newPublisher(client producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic, now: time.Now}
}

// envelope is the JSON value of every record.
type envelope struct {
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}

// Publish produces ev keyed by its subject so events of one task stay ordered.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	rec, err := p.record(ev)
	if err != nil {
		return fmt.Errorf("op=events.publish: %w", err)
	}
	// the caller's context may end with the request; delivery must not
	p.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			slog.Warn("event delivery failed",
				slog.String("event", ev.Type),
				slog.String("subject", ev.Subject),
				slog.Any("error", err))
		}
	})
	return nil
}

func (p *Publisher) record(ev domain.Event) (*kgo.Record, error) {
	b, err := json.Marshal(envelope{Type: ev.Type, Subject: ev.Subject, OccurredAt: p.now().UTC(), Payload: ev.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.Subject),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// Ping checks that at least one broker answers.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("op=events.ping: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
