package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/ads"
	"github.com/bazaarly/bazaarly-backend/internal/notifications"
	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/subscriptions"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	gatewaysvc "github.com/bazaarly/bazaarly-backend/internal/webhooks/gateway"
	pkgAuth "github.com/bazaarly/bazaarly-backend/pkg/auth"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubWalletService struct{}

func (s stubWalletService) WithTx(tx *gorm.DB) wallet.Service { return s }

func (stubWalletService) GetOrCreate(ctx context.Context, owner wallet.OwnerRef) (*models.Wallet, error) {
	return &models.Wallet{OwnerID: owner.ID, OwnerKind: owner.Kind}, nil
}

func (stubWalletService) Credit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	return &models.WalletTransaction{}, nil
}

func (stubWalletService) Debit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	return &models.WalletTransaction{}, nil
}

func (stubWalletService) ForceDebit(ctx context.Context, input wallet.MovementInput) (*models.WalletTransaction, error) {
	return &models.WalletTransaction{}, nil
}

func (stubWalletService) Withdraw(ctx context.Context, owner wallet.OwnerRef) (*models.WalletTransaction, error) {
	return &models.WalletTransaction{}, nil
}

func (stubWalletService) Balance(ctx context.Context, owner wallet.OwnerRef) (int64, error) {
	return 0, nil
}

func (stubWalletService) ListTransactions(ctx context.Context, owner wallet.OwnerRef, params pagination.Params) (pagination.Page[models.WalletTransaction], error) {
	return pagination.Page[models.WalletTransaction]{}, nil
}

type stubAdsService struct{}

func (stubAdsService) CreateAd(ctx context.Context, vendorID uuid.UUID, input ads.CreateAdInput) (*models.Ad, error) {
	return &models.Ad{}, nil
}

func (stubAdsService) UpdateAd(ctx context.Context, vendorID, adID uuid.UUID, input ads.UpdateAdInput) (*models.Ad, error) {
	return &models.Ad{}, nil
}

func (stubAdsService) GetAd(ctx context.Context, adID uuid.UUID) (*models.Ad, error) {
	return &models.Ad{}, nil
}

func (stubAdsService) ListVendorAds(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Ad], error) {
	return pagination.Page[models.Ad]{}, nil
}

func (stubAdsService) TopAds(ctx context.Context, limit int) ([]models.Ad, error) {
	return nil, nil
}

func (stubAdsService) RecordClick(ctx context.Context, clickID, adID uuid.UUID, userID *uuid.UUID) (*ads.ClickResult, error) {
	return &ads.ClickResult{}, nil
}

func (stubAdsService) RecordView(ctx context.Context, adID uuid.UUID) error { return nil }

func (stubAdsService) AdPerformance(ctx context.Context, vendorID, adID uuid.UUID) (*ads.Performance, error) {
	return &ads.Performance{}, nil
}

func (stubAdsService) BidRange(ctx context.Context) (*ads.BidRange, error) {
	return &ads.BidRange{}, nil
}

type stubOrdersService struct{}

func (s stubOrdersService) WithTx(tx *gorm.DB) orders.Service { return s }

func (stubOrdersService) Checkout(ctx context.Context, userID uuid.UUID, input orders.CheckoutInput) ([]models.Order, error) {
	return nil, nil
}

func (stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) GetGroup(ctx context.Context, userID uuid.UUID, groupID string) ([]models.Order, error) {
	return nil, nil
}

func (stubOrdersService) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{}, nil
}

func (stubOrdersService) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{}, nil
}

func (stubOrdersService) UpdateStatus(ctx context.Context, vendorID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	return &models.Order{}, nil
}

func (stubOrdersService) CancelGroup(ctx context.Context, userID uuid.UUID, groupID string) (*orders.CancelResult, error) {
	return &orders.CancelResult{}, nil
}

func (stubOrdersService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*orders.CancelResult, error) {
	return &orders.CancelResult{}, nil
}

func (stubOrdersService) SettleGroup(ctx context.Context, groupID string) (*orders.Settlement, error) {
	return &orders.Settlement{}, nil
}

type stubSubscriptionsService struct{}

func (stubSubscriptionsService) CreateBox(ctx context.Context, userID uuid.UUID, input subscriptions.CreateBoxInput) (*models.SubscriptionBox, error) {
	return &models.SubscriptionBox{}, nil
}

func (stubSubscriptionsService) GetBox(ctx context.Context, userID, boxID uuid.UUID) (*models.SubscriptionBox, error) {
	return &models.SubscriptionBox{}, nil
}

func (stubSubscriptionsService) ListBoxes(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionBox, error) {
	return nil, nil
}

func (stubSubscriptionsService) UpdateBox(ctx context.Context, userID, boxID uuid.UUID, input subscriptions.UpdateBoxInput) (*models.SubscriptionBox, error) {
	return &models.SubscriptionBox{}, nil
}

func (stubSubscriptionsService) PauseBox(ctx context.Context, userID, boxID uuid.UUID) error {
	return nil
}

func (stubSubscriptionsService) ResumeBox(ctx context.Context, userID, boxID uuid.UUID) error {
	return nil
}

func (stubSubscriptionsService) ProcessDue(ctx context.Context, now time.Time) (*subscriptions.RunReport, error) {
	return &subscriptions.RunReport{}, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return 0, nil
}

type stubGatewayService struct{}

func (stubGatewayService) HandleEvent(ctx context.Context, payload []byte, signature string) (*gatewaysvc.Result, error) {
	return &gatewaysvc.Result{}, nil
}

func testRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "bazaarly-test",
			ExpirationMinutes: 5,
		},
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	handler := NewRouter(cfg, logg, stubPinger{}, nil, Services{
		Wallet:        stubWalletService{},
		Ads:           stubAdsService{},
		Orders:        stubOrdersService{},
		Subscriptions: stubSubscriptionsService{},
		Notifications: stubNotificationsService{},
		Gateway:       stubGatewayService{},
	})
	return handler, cfg.JWT
}

func mintToken(t *testing.T, cfg config.JWTConfig, kind enums.WalletOwnerKind) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID:   uuid.New(),
		ActorKind: kind,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	return token
}

func TestHealthEndpointsArePublic(t *testing.T) {
	handler, _ := testRouter(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestGatewayWebhookSkipsBearerAuth(t *testing.T) {
	handler, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.WalletOwnerKindUser))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestVendorRoutesRejectUserTokens(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ads/vendor", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.WalletOwnerKindUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ads/vendor", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, jwtCfg, enums.WalletOwnerKindVendor))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for vendor token, got %d", rec.Code)
	}
}
