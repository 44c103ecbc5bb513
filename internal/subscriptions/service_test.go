package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	ordersrepo "github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/products"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type stubBoxRepo struct {
	boxes map[uuid.UUID]*models.SubscriptionBox
}

func newStubBoxRepo() *stubBoxRepo {
	return &stubBoxRepo{boxes: make(map[uuid.UUID]*models.SubscriptionBox)}
}

func (r *stubBoxRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubBoxRepo) Create(ctx context.Context, box *models.SubscriptionBox) error {
	copied := *box
	r.boxes[box.ID] = &copied
	return nil
}

func (r *stubBoxRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionBox, error) {
	box, ok := r.boxes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *box
	return &copied, nil
}

func (r *stubBoxRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error) {
	var rows []models.SubscriptionBox
	for _, box := range r.boxes {
		if box.UserID == userID {
			rows = append(rows, *box)
		}
	}
	return rows, nil
}

func (r *stubBoxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.SubscriptionBox, error) {
	var rows []models.SubscriptionBox
	for _, box := range r.boxes {
		if box.IsActive && !box.NextDeliveryDate.After(now) {
			rows = append(rows, *box)
		}
	}
	return rows, nil
}

func (r *stubBoxRepo) Update(ctx context.Context, box *models.SubscriptionBox) error {
	stored, ok := r.boxes[box.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	items := stored.Items
	copied := *box
	copied.Items = items
	r.boxes[box.ID] = &copied
	return nil
}

func (r *stubBoxRepo) ReplaceItems(ctx context.Context, boxID uuid.UUID, items []models.SubscriptionItem) error {
	box, ok := r.boxes[boxID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	box.Items = items
	return nil
}

func (r *stubBoxRepo) SetActive(ctx context.Context, boxID uuid.UUID, active bool) error {
	box, ok := r.boxes[boxID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	box.IsActive = active
	return nil
}

func (r *stubBoxRepo) AdvanceNextDelivery(ctx context.Context, boxID uuid.UUID, next time.Time) error {
	box, ok := r.boxes[boxID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	box.NextDeliveryDate = next
	return nil
}

type stubProductsRepo struct {
	products map[uuid.UUID]*models.Product
}

func newStubProductsRepo() *stubProductsRepo {
	return &stubProductsRepo{products: make(map[uuid.UUID]*models.Product)}
}

func (r *stubProductsRepo) WithTx(tx *gorm.DB) products.Repository { return r }

func (r *stubProductsRepo) Create(ctx context.Context, product *models.Product) error {
	copied := *product
	r.products[product.ID] = &copied
	return nil
}

func (r *stubProductsRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *product
	return &copied, nil
}

func (r *stubProductsRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	for _, id := range ids {
		if product, ok := r.products[id]; ok {
			rows = append(rows, *product)
		}
	}
	return rows, nil
}

func (r *stubProductsRepo) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Product, error) {
	return nil, nil
}

func (r *stubProductsRepo) SetBoosted(ctx context.Context, productID uuid.UUID, boosted bool) error {
	return nil
}

type stubOrdersRepo struct {
	created []*models.Order
}

func (r *stubOrdersRepo) WithTx(tx *gorm.DB) ordersrepo.Repository { return r }

func (r *stubOrdersRepo) CreateAll(ctx context.Context, orders []*models.Order) error {
	r.created = append(r.created, orders...)
	return nil
}

func (r *stubOrdersRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubOrdersRepo) ListByGroup(ctx context.Context, groupID string) ([]models.Order, error) {
	return nil, nil
}

func (r *stubOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	return nil, nil
}

func (r *stubOrdersRepo) ListByVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	return nil, nil
}

func (r *stubOrdersRepo) SetStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return nil
}

func (r *stubOrdersRepo) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus) error {
	return nil
}

func (r *stubOrdersRepo) MarkGroupPaid(ctx context.Context, groupID string) (int64, error) {
	return 0, nil
}

type stubWalletService struct {
	balances map[wallet.OwnerRef]int64
	debits   int
	credits  int
}

func newStubWalletService() *stubWalletService {
	return &stubWalletService{balances: make(map[wallet.OwnerRef]int64)}
}

func (s *stubWalletService) WithTx(tx *gorm.DB) wallet.Service { return s }

func (s *stubWalletService) GetOrCreate(ctx context.Context, owner wallet.OwnerRef) (*models.Wallet, error) {
	return &models.Wallet{OwnerID: owner.ID, OwnerKind: owner.Kind, BalanceCents: s.balances[owner]}, nil
}

func (s *stubWalletService) Credit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	s.balances[input.Owner] += input.AmountCents
	s.credits++
	return &models.WalletTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubWalletService) Debit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	balance, ok := s.balances[input.Owner]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if balance < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance below debit amount")
	}
	s.balances[input.Owner] = balance - input.AmountCents
	s.debits++
	return &models.WalletTransaction{AmountCents: input.AmountCents}, nil
}

func (s *stubWalletService) ForceDebit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	s.balances[input.Owner] -= input.AmountCents
	s.debits++
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

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type subsFixture struct {
	repo     *stubBoxRepo
	products *stubProductsRepo
	orders   *stubOrdersRepo
	wallets  *stubWalletService
	service  Service

	userID   uuid.UUID
	vendor1  uuid.UUID
	vendor2  uuid.UUID
	product1 uuid.UUID
	product2 uuid.UUID
}

// Two vendors at 200 a piece: vendor1 ships three units, vendor2 two,
// so one run bills the user exactly 1000.
func newSubsFixture(t *testing.T) *subsFixture {
	t.Helper()
	f := &subsFixture{
		repo:     newStubBoxRepo(),
		products: newStubProductsRepo(),
		orders:   &stubOrdersRepo{},
		wallets:  newStubWalletService(),
		userID:   uuid.New(),
		vendor1:  uuid.New(),
		vendor2:  uuid.New(),
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Products: f.products,
		Orders:   f.orders,
		Wallets:  f.wallets,
		Tx:       passthroughTx{},
		Logger:   logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.service = svc
	return f
}

func (f *subsFixture) seedDueBox(t *testing.T, due time.Time) *models.SubscriptionBox {
	t.Helper()
	p1 := &models.Product{ID: uuid.New(), VendorID: f.vendor1, Name: "granola", PriceCents: 200, IsActive: true}
	p2 := &models.Product{ID: uuid.New(), VendorID: f.vendor2, Name: "yogurt", PriceCents: 200, IsActive: true}
	for _, p := range []*models.Product{p1, p2} {
		if err := f.products.Create(context.Background(), p); err != nil {
			t.Fatalf("seeding product: %v", err)
		}
	}
	f.product1, f.product2 = p1.ID, p2.ID

	boxID := uuid.New()
	box := &models.SubscriptionBox{
		ID:               boxID,
		UserID:           f.userID,
		Name:             "weekly groceries",
		Frequency:        enums.SubscriptionFrequencyWeekly,
		PaymentMethod:    enums.PaymentMethodCashless,
		NextDeliveryDate: due,
		IsActive:         true,
		Items: []models.SubscriptionItem{
			{ID: uuid.New(), BoxID: boxID, ProductID: p1.ID, VendorID: f.vendor1, Quantity: 3, PriceCents: 200},
			{ID: uuid.New(), BoxID: boxID, ProductID: p2.ID, VendorID: f.vendor2, Quantity: 2, PriceCents: 200},
		},
	}
	if err := f.repo.Create(context.Background(), box); err != nil {
		t.Fatalf("seeding box: %v", err)
	}
	return f.repo.boxes[boxID]
}

// One run against a funded wallet: user drained to zero, vendors paid
// 600 and 400, two paid order rows, and the delivery date moves one
// week forward.
func TestProcessDueBillsFundedBox(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	due := now.Add(-2 * time.Hour)
	box := f.seedDueBox(t, due)
	f.wallets.balances[wallet.UserOwner(f.userID)] = 1000

	report, err := f.service.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if report.Due != 1 || report.Processed != 1 || report.Skipped != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.wallets.balances[wallet.UserOwner(f.userID)]; got != 0 {
		t.Fatalf("expected user wallet drained to 0, got %d", got)
	}
	if got := f.wallets.balances[wallet.VendorOwner(f.vendor1)]; got != 600 {
		t.Fatalf("expected vendor1 +600, got %d", got)
	}
	if got := f.wallets.balances[wallet.VendorOwner(f.vendor2)]; got != 400 {
		t.Fatalf("expected vendor2 +400, got %d", got)
	}
	if len(f.orders.created) != 2 {
		t.Fatalf("expected 2 order rows, got %d", len(f.orders.created))
	}
	for _, order := range f.orders.created {
		if order.PaymentStatus != enums.PaymentStatusPaid {
			t.Fatalf("expected paid order, got %s", order.PaymentStatus)
		}
		if order.GroupID != f.orders.created[0].GroupID {
			t.Fatal("expected box orders to share a group id")
		}
	}
	wantNext := due.AddDate(0, 0, 7)
	if !box.NextDeliveryDate.Equal(wantNext) {
		t.Fatalf("expected next delivery %s, got %s", wantNext, box.NextDeliveryDate)
	}
}

// An underfunded box is skipped whole: no debit, no credits, no
// orders, date untouched, box still active and due next run.
func TestProcessDueSkipsUnderfundedBox(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	due := now.Add(-2 * time.Hour)
	box := f.seedDueBox(t, due)
	f.wallets.balances[wallet.UserOwner(f.userID)] = 500

	report, err := f.service.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if report.Skipped != 1 || report.Processed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.wallets.balances[wallet.UserOwner(f.userID)]; got != 500 {
		t.Fatalf("expected user wallet untouched, got %d", got)
	}
	if f.wallets.credits != 0 {
		t.Fatalf("expected no vendor credits, got %d", f.wallets.credits)
	}
	if len(f.orders.created) != 0 {
		t.Fatalf("expected no order rows, got %d", len(f.orders.created))
	}
	if !box.NextDeliveryDate.Equal(due) {
		t.Fatal("expected next delivery date unchanged")
	}
	if !box.IsActive {
		t.Fatal("expected box to stay active")
	}
}

func TestProcessDueSkipDoesNotBlockOtherBoxes(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	f.seedDueBox(t, now.Add(-time.Hour))

	richUser := uuid.New()
	beans := &models.Product{ID: uuid.New(), VendorID: f.vendor1, Name: "beans", PriceCents: 300, IsActive: true}
	if err := f.products.Create(context.Background(), beans); err != nil {
		t.Fatalf("seeding product: %v", err)
	}
	boxID := uuid.New()
	funded := &models.SubscriptionBox{
		ID:               boxID,
		UserID:           richUser,
		Name:             "coffee",
		Frequency:        enums.SubscriptionFrequencyDaily,
		PaymentMethod:    enums.PaymentMethodCashless,
		NextDeliveryDate: now.Add(-time.Hour),
		IsActive:         true,
		Items: []models.SubscriptionItem{
			{ID: uuid.New(), BoxID: boxID, ProductID: beans.ID, VendorID: f.vendor1, Quantity: 1, PriceCents: 300},
		},
	}
	if err := f.repo.Create(context.Background(), funded); err != nil {
		t.Fatalf("seeding box: %v", err)
	}
	f.wallets.balances[wallet.UserOwner(richUser)] = 300

	report, err := f.service.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if report.Processed != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.wallets.balances[wallet.VendorOwner(f.vendor1)]; got != 300 {
		t.Fatalf("expected funded box to pay out 300, got %d", got)
	}
}

func TestProcessDueIgnoresPausedAndFutureBoxes(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)

	paused := f.seedDueBox(t, now.Add(-time.Hour))
	paused.IsActive = false
	f.seedDueBox(t, now.Add(48*time.Hour))
	f.wallets.balances[wallet.UserOwner(f.userID)] = 5000

	report, err := f.service.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if report.Due != 0 {
		t.Fatalf("expected no due boxes, got %d", report.Due)
	}
	if f.wallets.debits != 0 {
		t.Fatal("expected no billing")
	}
}

// Each run bills whatever the catalog charges that day, not the price
// recorded when the box was created.
func TestProcessDueBillsCurrentCatalogPrices(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	box := f.seedDueBox(t, now.Add(-time.Hour))

	// vendor1 raised its price from 200 to 300 after the box was made.
	f.products.products[f.product1].PriceCents = 300
	f.wallets.balances[wallet.UserOwner(f.userID)] = 1300

	report, err := f.service.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.wallets.balances[wallet.UserOwner(f.userID)]; got != 0 {
		t.Fatalf("expected user billed 1300 at current prices, got %d left", got)
	}
	if got := f.wallets.balances[wallet.VendorOwner(f.vendor1)]; got != 900 {
		t.Fatalf("expected vendor1 +900 at the new price, got %d", got)
	}
	if got := f.wallets.balances[wallet.VendorOwner(f.vendor2)]; got != 400 {
		t.Fatalf("expected vendor2 +400, got %d", got)
	}
	for _, order := range f.orders.created {
		if order.VendorID != f.vendor1 {
			continue
		}
		if len(order.Items) != 1 || order.Items[0].UnitPriceCents != 300 {
			t.Fatalf("expected order items priced at 300, got %+v", order.Items)
		}
	}
	// The creation-time snapshot on the box stays what it was.
	if box.Items[0].PriceCents != 200 {
		t.Fatalf("expected item snapshot untouched, got %d", box.Items[0].PriceCents)
	}
}

// A box pointing at a product that left the catalog fails that box
// without moving money or advancing its date.
func TestProcessDueFailsBoxWithMissingProduct(t *testing.T) {
	f := newSubsFixture(t)
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)
	box := f.seedDueBox(t, due)
	delete(f.products.products, f.product1)
	f.wallets.balances[wallet.UserOwner(f.userID)] = 1000

	report, err := f.service.ProcessDue(context.Background(), now)
	if err == nil {
		t.Fatal("expected run error for the failed box")
	}
	if report.Failed != 1 || report.Processed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.wallets.balances[wallet.UserOwner(f.userID)]; got != 1000 {
		t.Fatalf("expected user wallet untouched, got %d", got)
	}
	if !box.NextDeliveryDate.Equal(due) {
		t.Fatal("expected next delivery date unchanged")
	}
}

func TestCreateBoxSnapshotsPrices(t *testing.T) {
	f := newSubsFixture(t)
	product := &models.Product{ID: uuid.New(), VendorID: f.vendor1, Name: "beans", PriceCents: 450, IsActive: true}
	if err := f.products.Create(context.Background(), product); err != nil {
		t.Fatalf("seeding product: %v", err)
	}

	box, err := f.service.CreateBox(context.Background(), f.userID, CreateBoxInput{
		Name:          "coffee club",
		Frequency:     enums.SubscriptionFrequencyMonthly,
		PaymentMethod: enums.PaymentMethodCashless,
		Lines:         []BoxLine{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateBox: %v", err)
	}
	if len(box.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(box.Items))
	}
	if box.Items[0].PriceCents != 450 || box.Items[0].VendorID != f.vendor1 {
		t.Fatalf("expected locked price and vendor, got %+v", box.Items[0])
	}

	// A later price change shows up in billing runs, never in the
	// stored snapshot.
	f.products.products[product.ID].PriceCents = 900
	stored, err := f.service.GetBox(context.Background(), f.userID, box.ID)
	if err != nil {
		t.Fatalf("GetBox: %v", err)
	}
	if stored.Items[0].PriceCents != 450 {
		t.Fatalf("expected price still 450, got %d", stored.Items[0].PriceCents)
	}
}

func TestPauseAndResumeBox(t *testing.T) {
	f := newSubsFixture(t)
	box := f.seedDueBox(t, time.Now())

	if err := f.service.PauseBox(context.Background(), f.userID, box.ID); err != nil {
		t.Fatalf("PauseBox: %v", err)
	}
	if f.repo.boxes[box.ID].IsActive {
		t.Fatal("expected paused box")
	}
	if err := f.service.ResumeBox(context.Background(), f.userID, box.ID); err != nil {
		t.Fatalf("ResumeBox: %v", err)
	}
	if !f.repo.boxes[box.ID].IsActive {
		t.Fatal("expected resumed box")
	}

	err := f.service.PauseBox(context.Background(), uuid.New(), box.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN for foreign user, got %v", err)
	}
}

func TestAdvanceDateByFrequency(t *testing.T) {
	from := time.Date(2026, time.January, 31, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		frequency enums.SubscriptionFrequency
		want      time.Time
	}{
		{enums.SubscriptionFrequencyDaily, time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)},
		{enums.SubscriptionFrequencyWeekly, time.Date(2026, time.February, 7, 9, 0, 0, 0, time.UTC)},
		{enums.SubscriptionFrequencyMonthly, time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := advanceDate(from, tc.frequency); !got.Equal(tc.want) {
			t.Fatalf("%s: expected %s, got %s", tc.frequency, tc.want, got)
		}
	}
}
