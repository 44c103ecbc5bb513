package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/idempotency"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
)

const billingNotificationConsumer = "billing-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer watches billing events and fans them out as in-app
// notifications. Delivery is fire and forget relative to the money
// movement: the ledger committed long before this runs.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	dispatcher   Dispatcher
	logg         *logger.Logger
}

// NewConsumer builds a billing notification consumer. The dispatcher
// is optional; without one, notifications are stored but not pushed.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, dispatcher Dispatcher, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("billing subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		dispatcher:   dispatcher,
		logg:         logg,
	}, nil
}

// deliver stores the notification, then pushes it. The push failing
// only logs: the row is the source of truth for the in-app feed.
func (c *Consumer) deliver(ctx context.Context, notification *models.Notification) error {
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Dispatch(ctx, notification); err != nil {
			c.logg.Error(ctx, "push dispatch failed", err)
		}
	}
	return nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		c.logg.Error(logCtx, "missing event id", nil)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, billingNotificationConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, envelope.Data); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, billingNotificationConsumer, envelope.EventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage) error {
	switch eventType {
	case enums.EventOrderCreated:
		return c.onOrderCreated(ctx, data)
	case enums.EventOrderCancelled:
		return c.onOrderCancelled(ctx, data)
	case enums.EventOrderPaid:
		return c.onOrderPaid(ctx, data)
	case enums.EventAdBudgetExhausted:
		return c.onAdBudgetExhausted(ctx, data)
	case enums.EventSubscriptionProcessed:
		return c.onSubscriptionProcessed(ctx, data)
	case enums.EventWalletToppedUp:
		return c.onWalletToppedUp(ctx, data)
	case enums.EventWalletWithdrawal:
		return c.onWalletWithdrawal(ctx, data)
	default:
		// Shortfall events go to operators via metrics and logs, not
		// in-app notifications.
		return nil
	}
}

func (c *Consumer) onOrderCreated(ctx context.Context, data json.RawMessage) error {
	var payload payloads.OrderGroupCreated
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	for _, vendorID := range payload.VendorIDs {
		err := c.deliver(ctx, &models.Notification{
			RecipientID:   vendorID,
			RecipientKind: enums.WalletOwnerKindVendor,
			Type:          enums.NotificationOrderPlaced,
			Title:         "New order received",
			Message:       fmt.Sprintf("You have a new order in group %s.", payload.GroupID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) onOrderCancelled(ctx context.Context, data json.RawMessage) error {
	var payload payloads.OrderCancelled
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	message := fmt.Sprintf("Order %s was cancelled.", payload.OrderID)
	if payload.RefundedCents > 0 {
		message = fmt.Sprintf("Order %s was cancelled and %d cents were refunded to the buyer.", payload.OrderID, payload.RefundedCents)
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.VendorID,
		RecipientKind: enums.WalletOwnerKindVendor,
		Type:          enums.NotificationOrderCancelled,
		Title:         "Order cancelled",
		Message:       message,
	})
}

func (c *Consumer) onOrderPaid(ctx context.Context, data json.RawMessage) error {
	var payload payloads.OrderPaid
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.UserID,
		RecipientKind: enums.WalletOwnerKindUser,
		Type:          enums.NotificationOrderPaid,
		Title:         "Payment confirmed",
		Message:       fmt.Sprintf("Your payment for order group %s was confirmed.", payload.GroupID),
	})
}

func (c *Consumer) onAdBudgetExhausted(ctx context.Context, data json.RawMessage) error {
	var payload payloads.AdBudgetExhausted
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.VendorID,
		RecipientKind: enums.WalletOwnerKindVendor,
		Type:          enums.NotificationAdBudgetExhausted,
		Title:         "Ad budget exhausted",
		Message:       fmt.Sprintf("Your ad %s ran out of budget and was deactivated. Top it up to resume.", payload.AdID),
	})
}

func (c *Consumer) onSubscriptionProcessed(ctx context.Context, data json.RawMessage) error {
	var payload payloads.SubscriptionProcessed
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.UserID,
		RecipientKind: enums.WalletOwnerKindUser,
		Type:          enums.NotificationSubscriptionBill,
		Title:         "Subscription billed",
		Message:       fmt.Sprintf("Your subscription box was billed %d cents and is on its way.", payload.TotalCents),
	})
}

func (c *Consumer) onWalletToppedUp(ctx context.Context, data json.RawMessage) error {
	var payload payloads.WalletToppedUp
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	kind := enums.WalletOwnerKindUser
	if payload.OwnerKind == enums.WalletOwnerKindVendor.String() {
		kind = enums.WalletOwnerKindVendor
	}
	if payload.OwnerID == uuid.Nil {
		return fmt.Errorf("owner id missing")
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.OwnerID,
		RecipientKind: kind,
		Type:          enums.NotificationWalletToppedUp,
		Title:         "Wallet topped up",
		Message:       fmt.Sprintf("%d cents were added to your wallet.", payload.AmountCents),
	})
}

func (c *Consumer) onWalletWithdrawal(ctx context.Context, data json.RawMessage) error {
	var payload payloads.WalletWithdrawalRequested
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if payload.OwnerID == uuid.Nil {
		return fmt.Errorf("owner id missing")
	}
	kind := enums.WalletOwnerKindUser
	if payload.OwnerKind == enums.WalletOwnerKindVendor.String() {
		kind = enums.WalletOwnerKindVendor
	}
	return c.deliver(ctx, &models.Notification{
		RecipientID:   payload.OwnerID,
		RecipientKind: kind,
		Type:          enums.NotificationWalletWithdrawal,
		Title:         "Withdrawal requested",
		Message:       fmt.Sprintf("Your withdrawal of %d cents is being processed.", payload.AmountCents),
	})
}
