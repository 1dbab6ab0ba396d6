package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	gwerrors "storygate/pkg/gateway-errors"
)

// KafkaPublisher produces security events to a Kafka topic. Records are
// produced asynchronously; delivery failures are logged, never surfaced to
// the auth flow that emitted the event.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to brokers and ensures topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.CodeAuditPublishError, "connect audit brokers")
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// ensureTopic creates the audit topic if the cluster does not have it yet.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, -1, nil, topic)
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.CodeAuditPublishError, "create audit topic")
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return gwerrors.Wrap(res.Err, gwerrors.CodeAuditPublishError, fmt.Sprintf("create audit topic %s", res.Topic))
		}
	}
	return nil
}

// Publish encodes the event as JSON keyed by user ID and hands it to the
// producer. Only encoding fails synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, event SecurityEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.CodeAuditPublishError, "encode audit event")
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.UserID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				slog.String("action", string(event.Action)),
				slog.String("error", err.Error()),
			)
		}
	})
	return nil
}

// Close flushes outstanding records and releases the client.
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
