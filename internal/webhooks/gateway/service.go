package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	dbpkg "github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	gatewaysig "github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
	redisclient "github.com/bazaarly/bazaarly-backend/pkg/redis"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

const (
	eventTypeTopUp = "wallet.top_up"
	eventTypeOrder = "order.payment"

	dedupeScope = "gateway"
)

// Event is a signed payment confirmation from the external gateway.
type Event struct {
	EventID      string    `json:"eventId"`
	OwnerID      uuid.UUID `json:"ownerId"`
	OwnerKind    string    `json:"ownerKind"`
	IsTopUp      bool      `json:"isTopUp"`
	AmountCents  int64     `json:"amount"`
	OrderGroupID string    `json:"orderGroupId"`
}

// Result reports what a processed event did.
type Result struct {
	EventID     string `json:"event_id"`
	Applied     string `json:"applied"`
	AmountCents int64  `json:"amount_cents"`
}

// Service reconciles gateway payment confirmations: top-ups credit a
// wallet, order payments settle the group and pay the vendors.
type Service interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*Result, error)
}

// ServiceParams wires the reconciliation dependencies.
type ServiceParams struct {
	Repo        Repository
	Verifier    *gatewaysig.Verifier
	Idempotency redisclient.IdempotencyStore
	Wallets     wallet.Service
	Orders      orders.Service
	Tx          txRunner
	Outbox      *outbox.Service
	Logger      *logger.Logger
	EventTTL    time.Duration
}

type service struct {
	repo        Repository
	verifier    *gatewaysig.Verifier
	idempotency redisclient.IdempotencyStore
	wallets     wallet.Service
	orders      orders.Service
	tx          txRunner
	outbox      *outbox.Service
	logg        *logger.Logger
	eventTTL    time.Duration
}

// NewService wires the gateway reconciliation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("gateway repository required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.EventTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &service{
		repo:        params.Repo,
		verifier:    params.Verifier,
		idempotency: params.Idempotency,
		wallets:     params.Wallets,
		orders:      params.Orders,
		tx:          params.Tx,
		outbox:      params.Outbox,
		logg:        params.Logger,
		eventTTL:    ttl,
	}, nil
}

// HandleEvent verifies, dedupes and applies one gateway confirmation.
// Dedupe is two layers: a redis reservation for the fast path, and the
// gateway_events row inserted inside the same transaction as the
// ledger effects for the durable guarantee.
func (s *service) HandleEvent(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if err := s.verifier.Verify(payload, signature); err != nil {
		return nil, err
	}

	event, err := parseEvent(payload)
	if err != nil {
		return nil, err
	}

	reserved, dedupeKey, err := s.reserve(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		// Only trust the reservation when the durable record backs it
		// up. A crash between reservation and commit leaves the key set
		// with no money moved; such redeliveries must reprocess.
		applied, checkErr := s.repo.Exists(ctx, event.EventID)
		if checkErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, checkErr, "checking gateway event record")
		}
		if applied {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateEvent, "gateway event already applied").
				WithDetails(map[string]any{"event_id": event.EventID})
		}
	}

	result, err := s.apply(ctx, event, payload)
	if err != nil {
		// Release the reservation unless the durable record says the
		// event really was applied before.
		if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
			s.release(ctx, dedupeKey)
		}
		return nil, err
	}
	return result, nil
}

func parseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed gateway event")
	}
	if strings.TrimSpace(event.EventID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway event id required")
	}
	if event.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway amount must be positive")
	}
	if event.IsTopUp {
		if event.OwnerID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up event needs an owner id")
		}
	} else if strings.TrimSpace(event.OrderGroupID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order payment event needs an order group id")
	}
	return &event, nil
}

func (s *service) reserve(ctx context.Context, eventID string) (bool, string, error) {
	if s.idempotency == nil {
		return true, "", nil
	}
	key := s.idempotency.IdempotencyKey(dedupeScope, eventID)
	ok, err := s.idempotency.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.eventTTL)
	if err != nil {
		// Redis being down must not stall money movement; the durable
		// gateway_events row still catches duplicates.
		s.logg.Warn(ctx, "gateway dedupe reservation failed, relying on durable record")
		return true, key, nil
	}
	return ok, key, nil
}

func (s *service) release(ctx context.Context, key string) {
	if s.idempotency == nil || key == "" {
		return
	}
	if err := s.idempotency.Del(ctx, key); err != nil {
		s.logg.Warn(ctx, "releasing gateway dedupe reservation failed")
	}
}

func (s *service) apply(ctx context.Context, event *Event, payload []byte) (*Result, error) {
	result := &Result{EventID: event.EventID, AmountCents: event.AmountCents}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		eventType := eventTypeOrder
		if event.IsTopUp {
			eventType = eventTypeTopUp
		}
		err := s.repo.WithTx(tx).Insert(ctx, &models.GatewayEvent{
			EventID: event.EventID,
			Type:    eventType,
			Payload: json.RawMessage(payload),
		})
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "gateway event already applied").
					WithDetails(map[string]any{"event_id": event.EventID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording gateway event")
		}

		if event.IsTopUp {
			result.Applied = "top_up"
			return s.applyTopUp(ctx, tx, event)
		}
		result.Applied = "order_settlement"
		_, err = s.orders.WithTx(tx).SettleGroup(ctx, event.OrderGroupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) applyTopUp(ctx context.Context, tx *gorm.DB, event *Event) error {
	owner := wallet.UserOwner(event.OwnerID)
	if strings.EqualFold(event.OwnerKind, enums.WalletOwnerKindVendor.String()) {
		owner = wallet.VendorOwner(event.OwnerID)
	}

	wallets := s.wallets.WithTx(tx)
	walletRow, err := wallets.GetOrCreate(ctx, owner)
	if err != nil {
		return err
	}
	if _, err := wallets.Credit(ctx, wallet.MovementInput{
		Owner:       owner,
		AmountCents: event.AmountCents,
		Description: "wallet top-up via payment gateway",
		Reference:   event.EventID,
	}); err != nil {
		return err
	}

	if s.outbox != nil {
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletToppedUp,
			AggregateType: enums.AggregateWallet,
			AggregateID:   walletRow.ID.String(),
			Data: payloads.WalletToppedUp{
				WalletID:    walletRow.ID,
				OwnerID:     owner.ID,
				OwnerKind:   owner.Kind.String(),
				AmountCents: event.AmountCents,
				EventID:     event.EventID,
			},
		})
		if err != nil {
			s.logg.Error(ctx, "emitting wallet topped up event", err)
		}
	}
	return nil
}
