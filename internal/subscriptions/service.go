package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/products"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BoxLine is one product and quantity in a subscription box.
type BoxLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// CreateBoxInput describes a new recurring box. Item rows snapshot
// the catalog price at creation for display; each billing run charges
// the catalog price current at that run.
type CreateBoxInput struct {
	Name              string                      `json:"name" validate:"required"`
	Frequency         enums.SubscriptionFrequency `json:"frequency" validate:"required"`
	PaymentMethod     enums.PaymentMethod         `json:"payment_method" validate:"required"`
	FirstDeliveryDate *time.Time                  `json:"first_delivery_date"`
	Lines             []BoxLine                   `json:"lines" validate:"required,min=1,dive"`
}

// UpdateBoxInput mutates an existing box. A nil field is left alone;
// replacing Lines refreshes the item snapshots from the catalog.
type UpdateBoxInput struct {
	Name          *string                      `json:"name"`
	Frequency     *enums.SubscriptionFrequency `json:"frequency"`
	PaymentMethod *enums.PaymentMethod         `json:"payment_method"`
	Lines         []BoxLine                    `json:"lines"`
}

// RunReport summarizes one scheduler pass over due boxes.
type RunReport struct {
	Due       int
	Processed int
	Skipped   int
	Failed    int
}

// Service owns the subscription box lifecycle and the recurring
// billing run.
type Service interface {
	CreateBox(ctx context.Context, userID uuid.UUID, input CreateBoxInput) (*models.SubscriptionBox, error)
	GetBox(ctx context.Context, userID, boxID uuid.UUID) (*models.SubscriptionBox, error)
	ListBoxes(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error)
	UpdateBox(ctx context.Context, userID, boxID uuid.UUID, input UpdateBoxInput) (*models.SubscriptionBox, error)
	PauseBox(ctx context.Context, userID, boxID uuid.UUID) error
	ResumeBox(ctx context.Context, userID, boxID uuid.UUID) error
	ProcessDue(ctx context.Context, now time.Time) (*RunReport, error)
}

// ServiceParams wires the subscription scheduler dependencies.
type ServiceParams struct {
	Repo     Repository
	Products products.Repository
	Orders   orders.Repository
	Wallets  wallet.Service
	Tx       txRunner
	Outbox   *outbox.Service
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products products.Repository
	orders   orders.Repository
	wallets  wallet.Service
	tx       txRunner
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires the subscription billing service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
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
		orders:   params.Orders,
		wallets:  params.Wallets,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *service) CreateBox(ctx context.Context, userID uuid.UUID, input CreateBoxInput) (*models.SubscriptionBox, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid frequency %q", input.Frequency))
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	boxID := uuid.New()
	items, err := s.resolveLines(ctx, boxID, input.Lines)
	if err != nil {
		return nil, err
	}

	next := advanceDate(time.Now(), input.Frequency)
	if input.FirstDeliveryDate != nil {
		next = *input.FirstDeliveryDate
	}

	box := &models.SubscriptionBox{
		ID:               boxID,
		UserID:           userID,
		Name:             input.Name,
		Frequency:        input.Frequency,
		PaymentMethod:    input.PaymentMethod,
		NextDeliveryDate: next,
		IsActive:         true,
		Items:            items,
	}
	if err := s.repo.Create(ctx, box); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription box")
	}
	return box, nil
}

func (s *service) resolveLines(ctx context.Context, boxID uuid.UUID, lines []BoxLine) ([]models.SubscriptionItem, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a box needs at least one item")
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every box line needs a product and a positive quantity")
		}
		ids = append(ids, line.ProductID)
	}
	rows, err := s.products.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving box products")
	}
	catalog := make(map[uuid.UUID]models.Product, len(rows))
	for _, product := range rows {
		catalog[product.ID] = product
	}

	items := make([]models.SubscriptionItem, 0, len(lines))
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
		}
		items = append(items, models.SubscriptionItem{
			ID:         uuid.New(),
			BoxID:      boxID,
			ProductID:  product.ID,
			VendorID:   product.VendorID,
			Quantity:   line.Quantity,
			PriceCents: product.PriceCents,
		})
	}
	return items, nil
}

func (s *service) GetBox(ctx context.Context, userID, boxID uuid.UUID) (*models.SubscriptionBox, error) {
	return s.ownedBox(ctx, userID, boxID)
}

func (s *service) ownedBox(ctx context.Context, userID, boxID uuid.UUID) (*models.SubscriptionBox, error) {
	box, err := s.repo.GetByID(ctx, boxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription box not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription box")
	}
	if box.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription box belongs to another user")
	}
	return box, nil
}

func (s *service) ListBoxes(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscription boxes")
	}
	return rows, nil
}

func (s *service) UpdateBox(ctx context.Context, userID, boxID uuid.UUID, input UpdateBoxInput) (*models.SubscriptionBox, error) {
	box, err := s.ownedBox(ctx, userID, boxID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		box.Name = *input.Name
	}
	if input.Frequency != nil {
		if !input.Frequency.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid frequency %q", *input.Frequency))
		}
		box.Frequency = *input.Frequency
	}
	if input.PaymentMethod != nil {
		if !input.PaymentMethod.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", *input.PaymentMethod))
		}
		box.PaymentMethod = *input.PaymentMethod
	}

	var items []models.SubscriptionItem
	if input.Lines != nil {
		items, err = s.resolveLines(ctx, box.ID, input.Lines)
		if err != nil {
			return nil, err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, box); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating subscription box")
		}
		if items != nil {
			if err := repo.ReplaceItems(ctx, box.ID, items); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replacing box items")
			}
			box.Items = items
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return box, nil
}

func (s *service) PauseBox(ctx context.Context, userID, boxID uuid.UUID) error {
	return s.setActive(ctx, userID, boxID, false)
}

func (s *service) ResumeBox(ctx context.Context, userID, boxID uuid.UUID) error {
	return s.setActive(ctx, userID, boxID, true)
}

func (s *service) setActive(ctx context.Context, userID, boxID uuid.UUID, active bool) error {
	if _, err := s.ownedBox(ctx, userID, boxID); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, boxID, active); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "toggling subscription box")
	}
	return nil
}

// errSkipBox marks a box the run could not afford to bill. The box is
// left untouched and stays due for the next run.
var errSkipBox = errors.New("skip box")

// ProcessDue bills every active box whose delivery date has passed.
// Boxes are independent: a failed or skipped box never blocks the
// rest of the run, and each box commits or rolls back on its own.
func (s *service) ProcessDue(ctx context.Context, now time.Time) (*RunReport, error) {
	due, err := s.repo.ListDue(ctx, now, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing due subscriptions")
	}

	report := &RunReport{Due: len(due)}
	var runErr error
	for i := range due {
		box := &due[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.processBox(ctx, tx, box, now)
		})
		switch {
		case errors.Is(err, errSkipBox):
			report.Skipped++
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"box_id":  box.ID.String(),
				"user_id": box.UserID.String(),
			})
			s.logg.Warn(logCtx, "skipping subscription box, user wallet cannot cover it")
		case err != nil:
			report.Failed++
			runErr = multierr.Append(runErr, fmt.Errorf("box %s: %w", box.ID, err))
		default:
			report.Processed++
		}
	}
	return report, runErr
}

// billedLine is one box item priced against the catalog as of the
// current run.
type billedLine struct {
	productID  uuid.UUID
	vendorID   uuid.UUID
	quantity   int
	priceCents int64
}

func (s *service) processBox(ctx context.Context, tx *gorm.DB, box *models.SubscriptionBox, now time.Time) error {
	if len(box.Items) == 0 {
		return errSkipBox
	}

	// Every run charges the price the catalog carries today, not the
	// snapshot taken when the box was created.
	ids := make([]uuid.UUID, 0, len(box.Items))
	for _, item := range box.Items {
		ids = append(ids, item.ProductID)
	}
	rows, err := s.products.WithTx(tx).ListByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving box products")
	}
	catalog := make(map[uuid.UUID]models.Product, len(rows))
	for _, product := range rows {
		catalog[product.ID] = product
	}

	lines := make([]billedLine, 0, len(box.Items))
	vendorTotals := make(map[uuid.UUID]int64)
	vendorOrder := make([]uuid.UUID, 0)
	var grandTotal int64
	for _, item := range box.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("box product %s no longer in catalog", item.ProductID))
		}
		line := billedLine{
			productID:  product.ID,
			vendorID:   product.VendorID,
			quantity:   item.Quantity,
			priceCents: product.PriceCents,
		}
		lines = append(lines, line)

		subtotal := line.priceCents * int64(line.quantity)
		if _, seen := vendorTotals[line.vendorID]; !seen {
			vendorOrder = append(vendorOrder, line.vendorID)
		}
		vendorTotals[line.vendorID] += subtotal
		grandTotal += subtotal
	}

	wallets := s.wallets.WithTx(tx)
	paymentStatus := enums.PaymentStatusUnpaid
	if box.PaymentMethod == enums.PaymentMethodCashless {
		// One debit covers the whole box. If the user cannot pay, the
		// box is left fully untouched for the next run.
		_, err := wallets.Debit(ctx, wallet.MovementInput{
			Owner:       wallet.UserOwner(box.UserID),
			AmountCents: grandTotal,
			Description: fmt.Sprintf("subscription billing for box %q", box.Name),
			Reference:   box.ID.String(),
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return errSkipBox
			}
			return err
		}

		for _, vendorID := range vendorOrder {
			if _, err := wallets.Credit(ctx, wallet.MovementInput{
				Owner:       wallet.VendorOwner(vendorID),
				AmountCents: vendorTotals[vendorID],
				Description: fmt.Sprintf("subscription payout for box %q", box.Name),
				Reference:   box.ID.String(),
			}); err != nil {
				return err
			}
		}
		paymentStatus = enums.PaymentStatusPaid
	}

	groupID := orders.NewGroupID()
	orderRows := buildBoxOrders(groupID, box, vendorOrder, vendorTotals, lines, paymentStatus)
	if err := s.orders.WithTx(tx).CreateAll(ctx, orderRows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription orders")
	}

	next := advanceDate(box.NextDeliveryDate, box.Frequency)
	if err := s.repo.WithTx(tx).AdvanceNextDelivery(ctx, box.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing next delivery date")
	}

	s.emitProcessed(ctx, tx, box, grandTotal, vendorOrder)
	return nil
}

func buildBoxOrders(groupID string, box *models.SubscriptionBox, vendorOrder []uuid.UUID, vendorTotals map[uuid.UUID]int64, lines []billedLine, paymentStatus enums.PaymentStatus) []*models.Order {
	linesByVendor := make(map[uuid.UUID][]billedLine)
	for _, line := range lines {
		linesByVendor[line.vendorID] = append(linesByVendor[line.vendorID], line)
	}

	rows := make([]*models.Order, 0, len(vendorOrder))
	for _, vendorID := range vendorOrder {
		order := &models.Order{
			ID:            uuid.New(),
			GroupID:       groupID,
			UserID:        box.UserID,
			VendorID:      vendorID,
			TotalCents:    vendorTotals[vendorID],
			Status:        enums.OrderStatusPending,
			PaymentStatus: paymentStatus,
			PaymentMethod: box.PaymentMethod,
		}
		for _, line := range linesByVendor[vendorID] {
			order.Items = append(order.Items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				ProductID:      line.productID,
				Quantity:       line.quantity,
				UnitPriceCents: line.priceCents,
				SubtotalCents:  line.priceCents * int64(line.quantity),
			})
		}
		rows = append(rows, order)
	}
	return rows
}

func (s *service) emitProcessed(ctx context.Context, tx *gorm.DB, box *models.SubscriptionBox, total int64, vendorIDs []uuid.UUID) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionProcessed,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   box.ID.String(),
		Data: payloads.SubscriptionProcessed{
			BoxID:      box.ID,
			UserID:     box.UserID,
			TotalCents: total,
			VendorIDs:  vendorIDs,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting subscription processed event", err)
	}
}

// advanceDate steps one delivery cadence forward. Monthly uses
// calendar months, so Jan 31 rolls to the start of March the way
// time.AddDate normalizes overflow.
func advanceDate(from time.Time, frequency enums.SubscriptionFrequency) time.Time {
	switch frequency {
	case enums.SubscriptionFrequencyDaily:
		return from.AddDate(0, 0, 1)
	case enums.SubscriptionFrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case enums.SubscriptionFrequencyMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}
