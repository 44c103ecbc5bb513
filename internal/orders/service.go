package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/products"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// boundTx replays a caller-owned transaction instead of opening a new
// one, so a rebound service joins the caller's unit of work.
type boundTx struct {
	tx *gorm.DB
}

func (b boundTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(b.tx)
}

// CartLine is one product and quantity in a checkout request.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// CheckoutInput is a multi-vendor cart plus the total the client
// displayed to the buyer.
type CheckoutInput struct {
	Lines              []CartLine          `json:"lines" validate:"required,min=1,dive"`
	DeclaredTotalCents int64               `json:"declared_total_cents" validate:"required,gt=0"`
	PaymentMethod      enums.PaymentMethod `json:"payment_method" validate:"required"`
}

// CancelResult reports what one cancellation actually did.
type CancelResult struct {
	CancelledOrders []uuid.UUID `json:"cancelled_orders"`
	SkippedOrders   []uuid.UUID `json:"skipped_orders"`
	RefundedCents   int64       `json:"refunded_cents"`
}

// Settlement reports a gateway-confirmed group payment fan-out.
type Settlement struct {
	GroupID       string
	UserID        uuid.UUID
	TotalCents    int64
	VendorPayouts map[uuid.UUID]int64
}

// Service splits one checkout into per-vendor orders and reverses the
// money on cancellation.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) ([]models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetGroup(ctx context.Context, userID uuid.UUID, groupID string) ([]models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateStatus(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	CancelGroup(ctx context.Context, userID uuid.UUID, groupID string) (*CancelResult, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*CancelResult, error)
	SettleGroup(ctx context.Context, groupID string) (*Settlement, error)
}

// ServiceParams wires the order splitter dependencies.
type ServiceParams struct {
	Repo     Repository
	Products products.Repository
	Wallets  wallet.Service
	Tx       txRunner
	Outbox   *outbox.Service
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products products.Repository
	wallets  wallet.Service
	tx       txRunner
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires the order payment splitter.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		wallets:  params.Wallets,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

// WithTx rebinds the service to a caller-owned transaction. The
// gateway webhook uses this so settlement and event dedupe commit
// together.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{
		repo:     s.repo.WithTx(tx),
		products: s.products.WithTx(tx),
		wallets:  s.wallets,
		tx:       boundTx{tx: tx},
		outbox:   s.outbox,
		logg:     s.logg,
	}
}

// NewGroupID mints the shared identifier for one checkout's sibling
// orders. The subscription scheduler uses it too so settled boxes look
// like any other order group.
func NewGroupID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:10])
}

// Checkout groups the cart by vendor and writes one order row per
// vendor, all sharing a fresh group id. No wallet moves here: cashless
// groups settle when the gateway confirms the charge, cash on delivery
// settles outside the ledger entirely.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if input.DeclaredTotalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "declared total must be positive")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	var created []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalog, err := s.resolveLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}

		groupID := NewGroupID()
		orders, total := buildVendorOrders(groupID, userID, input, catalog)

		// Per-vendor subtotals are bounded by the declared total and
		// the split must account for every declared cent.
		for _, order := range orders {
			if order.TotalCents > input.DeclaredTotalCents {
				return pkgerrors.New(pkgerrors.CodeTotalMismatch, "vendor subtotal exceeds declared total").
					WithDetails(map[string]any{"vendor_id": order.VendorID, "subtotal_cents": order.TotalCents})
			}
		}
		if total != input.DeclaredTotalCents {
			return pkgerrors.New(pkgerrors.CodeTotalMismatch, "vendor subtotals do not add up to declared total").
				WithDetails(map[string]any{"computed_cents": total, "declared_cents": input.DeclaredTotalCents})
		}

		if err := s.repo.WithTx(tx).CreateAll(ctx, orders); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating orders")
		}

		s.emitGroupCreated(ctx, tx, groupID, userID, orders, total)

		created = make([]models.Order, 0, len(orders))
		for _, order := range orders {
			created = append(created, *order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) resolveLines(ctx context.Context, tx *gorm.DB, lines []CartLine) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every cart line needs a product and a positive quantity")
		}
		if _, dup := seen[line.ProductID]; dup {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	rows, err := s.products.WithTx(tx).ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving cart products")
	}
	catalog := make(map[uuid.UUID]models.Product, len(rows))
	for _, product := range rows {
		catalog[product.ID] = product
	}
	for _, id := range ids {
		product, ok := catalog[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id))
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is not available", id))
		}
	}
	return catalog, nil
}

func buildVendorOrders(groupID string, userID uuid.UUID, input CheckoutInput, catalog map[uuid.UUID]models.Product) ([]*models.Order, int64) {
	grouped := make(map[uuid.UUID]*models.Order)
	order := make([]uuid.UUID, 0)
	var total int64

	for _, line := range input.Lines {
		product := catalog[line.ProductID]
		subtotal := product.PriceCents * int64(line.Quantity)
		total += subtotal

		vendorOrder, ok := grouped[product.VendorID]
		if !ok {
			vendorOrder = &models.Order{
				ID:            uuid.New(),
				GroupID:       groupID,
				UserID:        userID,
				VendorID:      product.VendorID,
				Status:        enums.OrderStatusPending,
				PaymentStatus: enums.PaymentStatusUnpaid,
				PaymentMethod: input.PaymentMethod,
			}
			grouped[product.VendorID] = vendorOrder
			order = append(order, product.VendorID)
		}
		vendorOrder.TotalCents += subtotal
		vendorOrder.Items = append(vendorOrder.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        vendorOrder.ID,
			ProductID:      product.ID,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
			SubtotalCents:  subtotal,
		})
	}

	orders := make([]*models.Order, 0, len(order))
	for _, vendorID := range order {
		orders = append(orders, grouped[vendorID])
	}
	return orders, total
}

func (s *service) emitGroupCreated(ctx context.Context, tx *gorm.DB, groupID string, userID uuid.UUID, orders []*models.Order, total int64) {
	if s.outbox == nil {
		return
	}
	vendorIDs := make([]uuid.UUID, 0, len(orders))
	orderIDs := make([]uuid.UUID, 0, len(orders))
	for _, order := range orders {
		vendorIDs = append(vendorIDs, order.VendorID)
		orderIDs = append(orderIDs, order.ID)
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   groupID,
		Actor:         &outbox.ActorRef{UserID: userID},
		Data: payloads.OrderGroupCreated{
			GroupID:    groupID,
			UserID:     userID,
			VendorIDs:  vendorIDs,
			OrderIDs:   orderIDs,
			TotalCents: total,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting order group created event", err)
	}
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

func (s *service) GetGroup(ctx context.Context, userID uuid.UUID, groupID string) ([]models.Order, error) {
	rows, err := s.loadGroup(ctx, s.repo, groupID)
	if err != nil {
		return nil, err
	}
	if rows[0].UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order group belongs to another user")
	}
	return rows, nil
}

func (s *service) loadGroup(ctx context.Context, repo Repository, groupID string) ([]models.Order, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	rows, err := repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order group")
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return rows, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return s.listOrders(ctx, params, func(cursor *pagination.Cursor, limit int) ([]models.Order, error) {
		return s.repo.ListByUser(ctx, userID, cursor, limit)
	})
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return s.listOrders(ctx, params, func(cursor *pagination.Cursor, limit int) ([]models.Order, error) {
		return s.repo.ListByVendor(ctx, vendorID, cursor, limit)
	})
}

func (s *service) listOrders(ctx context.Context, params pagination.Params, fetch func(*pagination.Cursor, int) ([]models.Order, error)) (pagination.Page[models.Order], error) {
	var empty pagination.Page[models.Order]
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := fetch(cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// fulfillmentRank orders the forward-only status progression.
var fulfillmentRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusProcessing: 1,
	enums.OrderStatusShipped:    2,
	enums.OrderStatusDelivered:  3,
}

func (s *service) UpdateStatus(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() || status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid fulfillment status %q", status))
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")
	}
	if fulfillmentRank[status] < fulfillmentRank[order.Status] {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("cannot move order from %s back to %s", order.Status, status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetStatus(ctx, orderID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
		}
		order.Status = status

		// Delivery completes payment: cash on delivery is collected at
		// the door, so the order flips to paid with the status.
		if status == enums.OrderStatusDelivered && order.PaymentStatus == enums.PaymentStatusUnpaid {
			if err := repo.SetPaymentStatus(ctx, orderID, enums.PaymentStatusPaid); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking delivered order paid")
			}
			order.PaymentStatus = enums.PaymentStatusPaid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelGroup cancels every sibling order that has not been delivered
// yet. Paid cashless orders are refunded through the ledger: the
// vendor pays the money back even if that overdraws its wallet, and
// the buyer is credited the same amount.
func (s *service) CancelGroup(ctx context.Context, userID uuid.UUID, groupID string) (*CancelResult, error) {
	result := &CancelResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := s.loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if rows[0].UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order group belongs to another user")
		}
		for i := range rows {
			if err := s.cancelOne(ctx, tx, repo, &rows[i], result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*CancelResult, error) {
	result := &CancelResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		return s.cancelOne(ctx, tx, repo, order, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) cancelOne(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, result *CancelResult) error {
	if order.Status == enums.OrderStatusDelivered || order.Status == enums.OrderStatusCancelled {
		result.SkippedOrders = append(result.SkippedOrders, order.ID)
		return nil
	}

	if err := repo.SetStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order")
	}

	var refunded int64
	if order.PaymentMethod == enums.PaymentMethodCashless && order.PaymentStatus == enums.PaymentStatusPaid {
		wallets := s.wallets.WithTx(tx)
		description := fmt.Sprintf("refund for order %s", order.ID)

		// The vendor was already paid out; reclaim the money even if
		// part of it was spent. A shortfall is flagged by the ledger,
		// never silently skipped.
		if _, err := wallets.ForceDebit(ctx, wallet.MovementInput{
			Owner:       wallet.VendorOwner(order.VendorID),
			AmountCents: order.TotalCents,
			Description: description,
			Reference:   order.GroupID,
		}); err != nil {
			return err
		}
		if _, err := wallets.Credit(ctx, wallet.MovementInput{
			Owner:       wallet.UserOwner(order.UserID),
			AmountCents: order.TotalCents,
			Description: description,
			Reference:   order.GroupID,
		}); err != nil {
			return err
		}
		if err := repo.SetPaymentStatus(ctx, order.ID, enums.PaymentStatusRefunded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order refunded")
		}
		refunded = order.TotalCents
	}

	result.CancelledOrders = append(result.CancelledOrders, order.ID)
	result.RefundedCents += refunded
	s.emitCancelled(ctx, tx, order, refunded)
	return nil
}

func (s *service) emitCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, refunded int64) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   order.GroupID,
		Data: payloads.OrderCancelled{
			OrderID:       order.ID,
			GroupID:       order.GroupID,
			UserID:        order.UserID,
			VendorID:      order.VendorID,
			RefundedCents: refunded,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting order cancelled event", err)
	}
}

// SettleGroup applies a gateway payment confirmation: every sibling
// order flips to paid and each vendor is credited its subtotal from
// the order line items. Callers run this on a rebound service so the
// settlement shares the webhook's transaction.
func (s *service) SettleGroup(ctx context.Context, groupID string) (*Settlement, error) {
	var settlement *Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := s.loadGroup(ctx, repo, groupID)
		if err != nil {
			return err
		}

		flipped, err := repo.MarkGroupPaid(ctx, groupID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order group paid")
		}
		if flipped == 0 {
			return pkgerrors.New(pkgerrors.CodeDuplicateEvent, "order group already settled")
		}

		wallets := s.wallets.WithTx(tx)
		payouts := make(map[uuid.UUID]int64, len(rows))
		var total int64
		for _, order := range rows {
			if order.PaymentStatus != enums.PaymentStatusUnpaid {
				continue
			}
			var vendorTotal int64
			for _, item := range order.Items {
				vendorTotal += item.SubtotalCents
			}
			if _, err := wallets.Credit(ctx, wallet.MovementInput{
				Owner:       wallet.VendorOwner(order.VendorID),
				AmountCents: vendorTotal,
				Description: fmt.Sprintf("payout for order %s", order.ID),
				Reference:   groupID,
			}); err != nil {
				return err
			}
			payouts[order.VendorID] += vendorTotal
			total += vendorTotal
		}

		settlement = &Settlement{
			GroupID:       groupID,
			UserID:        rows[0].UserID,
			TotalCents:    total,
			VendorPayouts: payouts,
		}
		s.emitPaid(ctx, tx, settlement)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, settlement *Settlement) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   settlement.GroupID,
		Data: payloads.OrderPaid{
			GroupID:    settlement.GroupID,
			UserID:     settlement.UserID,
			TotalCents: settlement.TotalCents,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting order paid event", err)
	}
}
