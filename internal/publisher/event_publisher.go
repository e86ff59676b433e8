package publisher

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/domain/events"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/pubsub"
	"github.com/watercoop/waterbill/internal/types"
)

// EventPublisher publishes billing events to the event bus
type EventPublisher interface {
	Publish(ctx context.Context, event *events.BillingEvent) error
}

type eventPublisher struct {
	pubSub  pubsub.PubSub
	config  *config.EventsConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewEventPublisher creates a publisher on top of the given pubsub
func NewEventPublisher(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) EventPublisher {
	return &eventPublisher{
		pubSub:  pubSub,
		config:  &cfg.Events,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *events.BillingEvent) error {
	if !p.config.Enabled {
		return nil
	}

	if event.UserID == "" {
		event.UserID = types.GetUserID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = types.GetRequestID(ctx)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_name", event.EventName)
	msg.Metadata.Set("client_id", event.ClientID)

	p.logger.Debugw("publishing billing event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"client_id", event.ClientID,
		"bill_id", event.BillID,
		"topic", p.config.Topic,
	)

	if err := p.pubSub.Publish(ctx, p.config.Topic, msg); err != nil {
		p.logger.Errorw("failed to publish billing event",
			"error", err,
			"event_id", event.ID,
			"event_name", event.EventName,
		)
		return err
	}

	if p.metrics != nil {
		p.metrics.EventPublished(event.EventName)
	}
	return nil
}
