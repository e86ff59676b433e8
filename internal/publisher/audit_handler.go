package publisher

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/domain/events"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/pubsub"
	pubsubRouter "github.com/watercoop/waterbill/internal/pubsub/router"
)

// AuditHandler writes every billing event to the structured log
type AuditHandler struct {
	pubSub pubsub.PubSub
	config *config.EventsConfig
	logger *logger.Logger
}

func NewAuditHandler(pubSub pubsub.PubSub, cfg *config.Configuration, logger *logger.Logger) *AuditHandler {
	return &AuditHandler{
		pubSub: pubSub,
		config: &cfg.Events,
		logger: logger,
	}
}

func (h *AuditHandler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"billing_audit_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *AuditHandler) processMessage(msg *message.Message) error {
	var event events.BillingEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal billing event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // Don't retry on unmarshal errors
	}

	h.logger.Infow("billing event",
		"event_id", event.ID,
		"event_name", event.EventName,
		"client_id", event.ClientID,
		"bill_id", event.BillID,
		"user_id", event.UserID,
		"request_id", event.RequestID,
		"timestamp", event.Timestamp,
		"payload", string(event.Payload),
	)
	return nil
}
