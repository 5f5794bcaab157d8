package rankingpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	nc "github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
)

// MetadataEventType carries the topic on every message so consumers that
// subscribe to a wildcard can dispatch on it.
const MetadataEventType = "event_type"

// NewNATSPublisher connects a watermill publisher to core NATS.
func NewNATSPublisher(natsURL string, logger *slog.Logger) (message.Publisher, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL: natsURL,
		NatsOptions: []nc.Option{
			nc.Name("ranking-engine"),
			nc.MaxReconnects(-1),
			nc.ReconnectWait(2 * time.Second),
		},
		Marshaler:         &wmnats.NATSMarshaler{},
		JetStream:         wmnats.JetStreamConfig{Disabled: true},
		SubjectCalculator: wmnats.DefaultSubjectCalculator,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return pub, nil
}

// EventPublisher turns ranking domain events into watermill messages.
type EventPublisher struct {
	publisher message.Publisher
	limiter   *rate.Limiter
}

var _ rankingservice.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher throttles publishing to ratePerSecond messages. A large
// week fans out one message per moved user, which would otherwise arrive at
// the broker in a single burst.
func NewEventPublisher(publisher message.Publisher, ratePerSecond float64) *EventPublisher {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &EventPublisher{
		publisher: publisher,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, topic string, correlationID string, payload any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	middleware.SetCorrelationID(correlationID, msg)
	msg.Metadata.Set(MetadataEventType, topic)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.publisher.Close()
}
