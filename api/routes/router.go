package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bazaarly/bazaarly-backend/api/controllers"
	"github.com/bazaarly/bazaarly-backend/api/middleware"
	"github.com/bazaarly/bazaarly-backend/internal/ads"
	"github.com/bazaarly/bazaarly-backend/internal/notifications"
	"github.com/bazaarly/bazaarly-backend/internal/orders"
	"github.com/bazaarly/bazaarly-backend/internal/subscriptions"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	gatewaysvc "github.com/bazaarly/bazaarly-backend/internal/webhooks/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/redis"
)

// Services groups everything the HTTP surface depends on.
type Services struct {
	Wallet        wallet.Service
	Ads           ads.Service
	Orders        orders.Service
	Subscriptions subscriptions.Service
	Notifications notifications.Service
	Gateway       gatewaysvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache redis.Pinger,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, cache, logg))
	})

	// Gateway callbacks authenticate by HMAC signature, not bearer token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", controllers.GatewayWebhook(svcs.Gateway, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.GetWallet(svcs.Wallet, logg))
			r.Get("/transactions", controllers.ListWalletTransactions(svcs.Wallet, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireKind(enums.WalletOwnerKindVendor, logg))
				r.Post("/withdraw", controllers.WithdrawWallet(svcs.Wallet, logg))
			})
		})

		r.Route("/ads", func(r chi.Router) {
			r.Get("/top", controllers.TopAds(svcs.Ads, logg))
			r.Get("/bid-range", controllers.BidRange(svcs.Ads, logg))
			r.Post("/{adId}/clicks", controllers.RecordClick(svcs.Ads, logg))
			r.Post("/{adId}/views", controllers.RecordView(svcs.Ads, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireKind(enums.WalletOwnerKindVendor, logg))
				r.Post("/", controllers.CreateAd(svcs.Ads, logg))
				r.Patch("/{adId}", controllers.UpdateAd(svcs.Ads, logg))
				r.Get("/vendor", controllers.ListVendorAds(svcs.Ads, logg))
				r.Get("/{adId}/performance", controllers.AdPerformance(svcs.Ads, logg))
			})
		})

		r.Post("/checkout", controllers.Checkout(svcs.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListUserOrders(svcs.Orders, logg))
			r.Post("/cancel", controllers.CancelGroup(svcs.Orders, logg))
			r.Get("/groups/{groupId}", controllers.GetOrderGroup(svcs.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(svcs.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireKind(enums.WalletOwnerKindVendor, logg))
				r.Get("/vendor", controllers.ListVendorOrders(svcs.Orders, logg))
				r.Post("/{orderId}/status", controllers.UpdateOrderStatus(svcs.Orders, logg))
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.CreateSubscriptionBox(svcs.Subscriptions, logg))
			r.Get("/", controllers.ListSubscriptionBoxes(svcs.Subscriptions, logg))
			r.Get("/{boxId}", controllers.GetSubscriptionBox(svcs.Subscriptions, logg))
			r.Patch("/{boxId}", controllers.UpdateSubscriptionBox(svcs.Subscriptions, logg))
			r.Post("/{boxId}/pause", controllers.PauseSubscriptionBox(svcs.Subscriptions, logg))
			r.Post("/{boxId}/resume", controllers.ResumeSubscriptionBox(svcs.Subscriptions, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svcs.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svcs.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svcs.Notifications, logg))
		})
	})

	return r
}
