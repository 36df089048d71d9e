package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmlink-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/orders"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	"github.com/angelmondragon/farmlink-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/farmlink-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs for health checks,
// idempotent checkout replays and rate limiting.
type Store interface {
	pkgredis.Pinger
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store Store,
	metricsHandler http.Handler,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.Checkout.RateLimitWindow,
		Limit:  cfg.Checkout.RateLimitPerUser,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    store,
		}))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
			r.Get("/", cartcontrollers.View(cartService, logg))
			r.Delete("/", cartcontrollers.Clear(cartService, logg))
			r.Post("/items", cartcontrollers.AddItem(cartService, logg))
			r.Patch("/items/{itemId}", cartcontrollers.UpdateQuantity(cartService, logg))
			r.Delete("/items/{itemId}", cartcontrollers.RemoveItem(cartService, logg))
		})

		r.With(
			middleware.RequireRole(logg, enums.RoleBuyer),
			middleware.UserRateLimit(checkoutPolicy, store, logg),
			middleware.Idempotency(store, cfg.Checkout.IdempotencyTTL, logg),
		).Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.With(middleware.RequireRole(logg, enums.RoleBuyer, enums.RoleFarmer, enums.RoleLogistics)).
				Patch("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
				Patch("/{orderId}/payment-status", ordercontrollers.UpdatePaymentStatus(ordersService, logg))
			r.With(middleware.RequireRole(logg, enums.RoleLogistics)).
				Patch("/{orderId}/tracking", ordercontrollers.UpdateTracking(ordersService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Patch("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Patch("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(notificationsService, logg))
		})
	})

	return r
}
