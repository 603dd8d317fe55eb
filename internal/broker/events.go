package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"wonderstars/internal/models"
	"wonderstars/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing loyalty domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishVoucherRedeemed publishes VoucherRedeemed event
func (ep *EventPublisher) PublishVoucherRedeemed(ctx context.Context, event *models.VoucherRedeemedEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishBonusAwarded publishes BonusAwarded event
func (ep *EventPublisher) PublishBonusAwarded(ctx context.Context, event *models.BonusAwardedEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStarsAwarded publishes StarsAwarded event
func (ep *EventPublisher) PublishStarsAwarded(ctx context.Context, event *models.StarsAwardedEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishBalanceDrift publishes BalanceDriftDetected event
func (ep *EventPublisher) PublishBalanceDrift(ctx context.Context, event *models.BalanceDriftEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishWalletTopupCompleted publishes WalletTopupCompleted event. Emitted
// by the payment callback path; consumed by the award worker.
func (ep *EventPublisher) PublishWalletTopupCompleted(ctx context.Context, event *models.WalletTopupCompletedEvent) error {
	key := fmt.Sprintf("user-%d", event.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming loyalty events to registered handlers
type EventHandler struct {
	logger            *zap.Logger
	onWalletTopup     func(context.Context, *models.WalletTopupCompletedEvent) error
	onVoucherRedeemed func(context.Context, *models.VoucherRedeemedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnWalletTopupCompleted registers a handler for WalletTopupCompleted events
func (eh *EventHandler) OnWalletTopupCompleted(handler func(context.Context, *models.WalletTopupCompletedEvent) error) {
	eh.onWalletTopup = handler
}

// OnVoucherRedeemed registers a handler for VoucherRedeemed events
func (eh *EventHandler) OnVoucherRedeemed(handler func(context.Context, *models.VoucherRedeemedEvent) error) {
	eh.onVoucherRedeemed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeWalletTopupCompleted:
		if eh.onWalletTopup != nil {
			var event models.WalletTopupCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal WalletTopupCompleted event: %w", err)
			}
			return eh.onWalletTopup(ctx, &event)
		}

	case models.EventTypeVoucherRedeemed:
		if eh.onVoucherRedeemed != nil {
			var event models.VoucherRedeemedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal VoucherRedeemed event: %w", err)
			}
			return eh.onVoucherRedeemed(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
