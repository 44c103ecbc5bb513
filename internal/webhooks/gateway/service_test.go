package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	gatewaysig "github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type stubEventRepo struct {
	events map[string]struct{}
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{events: make(map[string]struct{})}
}

func (r *stubEventRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubEventRepo) Insert(ctx context.Context, event *models.GatewayEvent) error {
	if _, exists := r.events[event.EventID]; exists {
		return errors.New("duplicate key value violates unique constraint \"gateway_events_pkey\"")
	}
	r.events[event.EventID] = struct{}{}
	return nil
}

func (r *stubEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	_, exists := r.events[eventID]
	return exists, nil
}

type stubIdempotencyStore struct {
	keys map[string]struct{}
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{keys: make(map[string]struct{})}
}

func (s *stubIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	if _, ok := s.keys[key]; ok {
		return "1", nil
	}
	return "", errors.New("redis: nil")
}

func (s *stubIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("bz:idempotency:%s:%s", scope, id)
}

func (s *stubIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

type stubWalletService struct {
	balances map[wallet.OwnerRef]int64
	credits  int
}

func newStubWalletService() *stubWalletService {
	return &stubWalletService{balances: make(map[wallet.OwnerRef]int64)}
}

func (s *stubWalletService) WithTx(tx *gorm.DB) wallet.Service { return s }

func (s *stubWalletService) GetOrCreate(ctx context.Context, owner wallet.OwnerRef) (*models.Wallet, error) {
	return &models.Wallet{ID: uuid.New(), OwnerID: owner.ID, OwnerKind: owner.Kind, BalanceCents: s.balances[owner]}, nil
}

func (s *stubWalletService) Credit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	s.balances[input.Owner] += input.AmountCents
	s.credits++
	return &models.WalletTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubWalletService) Debit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	s.balances[input.Owner] -= input.AmountCents
	return &models.WalletTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubWalletService) ForceDebit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	s.balances[input.Owner] -= input.AmountCents
	return &models.WalletTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubWalletService) Withdraw(ctx context.Context, owner wallet.OwnerRef) (*models.WalletTransaction, error) {
	amount := s.balances[owner]
	s.balances[owner] = 0
	return &models.WalletTransaction{AmountCents: amount}, nil
}

func (s *stubWalletService) Balance(ctx context.Context, owner wallet.OwnerRef) (int64, error) {
	return s.balances[owner], nil
}

func (s *stubWalletService) ListTransactions(ctx context.Context, owner wallet.OwnerRef, params pagination.Params) (pagination.Page[models.WalletTransaction], error) {
	return pagination.Page[models.WalletTransaction]{}, nil
}

type stubOrdersService struct {
	settled []string
}

func (s *stubOrdersService) WithTx(tx *gorm.DB) orders.Service { return s }

func (s *stubOrdersService) Checkout(ctx context.Context, userID uuid.UUID, input orders.CheckoutInput) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrdersService) GetGroup(ctx context.Context, userID uuid.UUID, groupID string) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersService) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{}, nil
}

func (s *stubOrdersService) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{}, nil
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrdersService) CancelGroup(ctx context.Context, userID uuid.UUID, groupID string) (*orders.CancelResult, error) {
	return nil, nil
}

func (s *stubOrdersService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*orders.CancelResult, error) {
	return nil, nil
}

func (s *stubOrdersService) SettleGroup(ctx context.Context, groupID string) (*orders.Settlement, error) {
	s.settled = append(s.settled, groupID)
	return &orders.Settlement{GroupID: groupID}, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type gatewayFixture struct {
	repo        *stubEventRepo
	idempotency *stubIdempotencyStore
	wallets     *stubWalletService
	orders      *stubOrdersService
	verifier    *gatewaysig.Verifier
	service     Service
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	verifier, err := gatewaysig.NewVerifier("test-webhook-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	f := &gatewayFixture{
		repo:        newStubEventRepo(),
		idempotency: newStubIdempotencyStore(),
		wallets:     newStubWalletService(),
		orders:      &stubOrdersService{},
		verifier:    verifier,
	}
	svc, err := NewService(ServiceParams{
		Repo:        f.repo,
		Verifier:    verifier,
		Idempotency: f.idempotency,
		Wallets:     f.wallets,
		Orders:      f.orders,
		Tx:          passthroughTx{},
		Logger:      logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.service = svc
	return f
}

func (f *gatewayFixture) signed(t *testing.T, event Event) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshalling event: %v", err)
	}
	return payload, f.verifier.Sign(payload)
}

// Redelivering the same top-up confirmation twice credits the wallet
// exactly once.
func TestHandleEventTopUpAppliedOnce(t *testing.T) {
	f := newGatewayFixture(t)
	userID := uuid.New()
	payload, signature := f.signed(t, Event{
		EventID:     "evt-1001",
		OwnerID:     userID,
		IsTopUp:     true,
		AmountCents: 2000,
	})

	result, err := f.service.HandleEvent(context.Background(), payload, signature)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Applied != "top_up" {
		t.Fatalf("expected top_up, got %s", result.Applied)
	}
	if got := f.wallets.balances[wallet.UserOwner(userID)]; got != 2000 {
		t.Fatalf("expected balance 2000, got %d", got)
	}

	_, err = f.service.HandleEvent(context.Background(), payload, signature)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
		t.Fatalf("expected DUPLICATE_EVENT, got %v", err)
	}
	if got := f.wallets.balances[wallet.UserOwner(userID)]; got != 2000 {
		t.Fatalf("expected balance still 2000, got %d", got)
	}
	if f.wallets.credits != 1 {
		t.Fatalf("expected exactly one credit, got %d", f.wallets.credits)
	}
}

// Without redis the durable gateway_events row must still catch the
// duplicate.
func TestHandleEventDurableDedupe(t *testing.T) {
	f := newGatewayFixture(t)
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Verifier: f.verifier,
		Wallets:  f.wallets,
		Orders:   f.orders,
		Tx:       passthroughTx{},
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	userID := uuid.New()
	payload, signature := f.signed(t, Event{
		EventID:     "evt-2002",
		OwnerID:     userID,
		IsTopUp:     true,
		AmountCents: 500,
	})
	if _, err := svc.HandleEvent(context.Background(), payload, signature); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	_, err = svc.HandleEvent(context.Background(), payload, signature)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
		t.Fatalf("expected DUPLICATE_EVENT, got %v", err)
	}
	if f.wallets.credits != 1 {
		t.Fatalf("expected exactly one credit, got %d", f.wallets.credits)
	}
}

// A redis reservation with no event row behind it means an earlier
// attempt died before committing. The redelivery must still apply.
func TestHandleEventStaleReservationReprocessed(t *testing.T) {
	f := newGatewayFixture(t)
	userID := uuid.New()
	payload, signature := f.signed(t, Event{
		EventID:     "evt-6006",
		OwnerID:     userID,
		IsTopUp:     true,
		AmountCents: 700,
	})

	key := f.idempotency.IdempotencyKey(dedupeScope, "evt-6006")
	f.idempotency.keys[key] = struct{}{}

	result, err := f.service.HandleEvent(context.Background(), payload, signature)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Applied != "top_up" {
		t.Fatalf("expected top_up, got %s", result.Applied)
	}
	if got := f.wallets.balances[wallet.UserOwner(userID)]; got != 700 {
		t.Fatalf("expected balance 700, got %d", got)
	}

	// Once the durable row exists the reservation is honored again.
	_, err = f.service.HandleEvent(context.Background(), payload, signature)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEvent) {
		t.Fatalf("expected DUPLICATE_EVENT, got %v", err)
	}
	if f.wallets.credits != 1 {
		t.Fatalf("expected exactly one credit, got %d", f.wallets.credits)
	}
}

func TestHandleEventOrderPaymentSettlesGroup(t *testing.T) {
	f := newGatewayFixture(t)
	payload, signature := f.signed(t, Event{
		EventID:      "evt-3003",
		OwnerID:      uuid.New(),
		IsTopUp:      false,
		AmountCents:  800,
		OrderGroupID: "ORD-AB12CD34EF",
	})

	result, err := f.service.HandleEvent(context.Background(), payload, signature)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Applied != "order_settlement" {
		t.Fatalf("expected order_settlement, got %s", result.Applied)
	}
	if len(f.orders.settled) != 1 || f.orders.settled[0] != "ORD-AB12CD34EF" {
		t.Fatalf("expected group settled once, got %v", f.orders.settled)
	}
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	f := newGatewayFixture(t)
	payload, _ := f.signed(t, Event{
		EventID:     "evt-4004",
		OwnerID:     uuid.New(),
		IsTopUp:     true,
		AmountCents: 100,
	})

	_, err := f.service.HandleEvent(context.Background(), payload, "deadbeef")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if len(f.repo.events) != 0 {
		t.Fatal("expected no event recorded")
	}
}

func TestHandleEventValidation(t *testing.T) {
	f := newGatewayFixture(t)
	cases := []Event{
		{EventID: "", OwnerID: uuid.New(), IsTopUp: true, AmountCents: 100},
		{EventID: "evt-a", OwnerID: uuid.New(), IsTopUp: true, AmountCents: 0},
		{EventID: "evt-b", OwnerID: uuid.New(), IsTopUp: false, AmountCents: 100, OrderGroupID: ""},
		{EventID: "evt-c", OwnerID: uuid.Nil, IsTopUp: true, AmountCents: 100},
	}
	for i, event := range cases {
		payload, signature := f.signed(t, event)
		_, err := f.service.HandleEvent(context.Background(), payload, signature)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected VALIDATION_ERROR, got %v", i, err)
		}
	}
}

// A settlement failure must roll back the event record and release
// the redis reservation so the gateway's retry can succeed.
func TestHandleEventReleasesReservationOnFailure(t *testing.T) {
	f := newGatewayFixture(t)
	failing := &failingOrdersService{stubOrdersService: f.orders, fail: true}
	repo := newStubEventRepo()
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Verifier:    f.verifier,
		Idempotency: f.idempotency,
		Wallets:     f.wallets,
		Orders:      failing,
		Tx:          rollbackTx{repo: repo},
		Logger:      logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	payload, signature := f.signed(t, Event{
		EventID:      "evt-5005",
		OwnerID:      uuid.New(),
		AmountCents:  800,
		OrderGroupID: "ORD-RETRY00001",
	})
	if _, err := svc.HandleEvent(context.Background(), payload, signature); err == nil {
		t.Fatal("expected settlement failure")
	}

	failing.fail = false
	if _, err := svc.HandleEvent(context.Background(), payload, signature); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

// rollbackTx mimics transaction semantics for the in-memory event
// repo: a failed unit of work leaves no event record behind.
type rollbackTx struct {
	repo *stubEventRepo
}

func (r rollbackTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := make(map[string]struct{}, len(r.repo.events))
	for key := range r.repo.events {
		snapshot[key] = struct{}{}
	}
	if err := fn(nil); err != nil {
		r.repo.events = snapshot
		return err
	}
	return nil
}

type failingOrdersService struct {
	*stubOrdersService
	fail bool
}

func (s *failingOrdersService) WithTx(tx *gorm.DB) orders.Service { return s }

func (s *failingOrdersService) SettleGroup(ctx context.Context, groupID string) (*orders.Settlement, error) {
	if s.fail {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement failed")
	}
	return s.stubOrdersService.SettleGroup(ctx, groupID)
}
