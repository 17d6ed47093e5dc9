package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retroquest/storefront-backend/api/controllers"
	cartcontrollers "github.com/retroquest/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/retroquest/storefront-backend/api/controllers/orders"
	"github.com/retroquest/storefront-backend/api/middleware"
	"github.com/retroquest/storefront-backend/internal/cart"
	checkoutsvc "github.com/retroquest/storefront-backend/internal/checkout"
	"github.com/retroquest/storefront-backend/internal/notifications"
	"github.com/retroquest/storefront-backend/internal/orders"
	products "github.com/retroquest/storefront-backend/internal/products"
	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/redis"
)

// Dependencies groups the collaborators the HTTP surface is wired to.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Metrics  http.Handler
	Cart     cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Products products.Service

	Notifications notifications.Service
	DeadLetters   controllers.DeadLetterLister
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(deps.Redis, logg,
				middleware.APIPolicy(cfg.RateLimit.Window, cfg.RateLimit.Limit),
				middleware.CheckoutPolicy(cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit),
			))
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartView(deps.Cart, logg))
			r.Post("/", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
			r.Put("/{productId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/{productId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Checkout(deps.Checkout, logg))
			r.Get("/my-orders", ordercontrollers.MyOrders(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Put("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationsList(deps.Notifications, logg))
			r.Put("/read-all", controllers.NotificationsMarkAllRead(deps.Notifications, logg))
			r.Put("/{notificationId}/read", controllers.NotificationMarkRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
				r.Put("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
				r.Put("/{orderId}/payment", controllers.AdminUpdatePayment(deps.Orders, logg))
			})
			r.Route("/products", func(r chi.Router) {
				r.Post("/", controllers.AdminCreateProduct(deps.Products, logg))
				r.Put("/{productId}/pricing", controllers.AdminUpdatePricing(deps.Products, logg))
				r.Put("/{productId}/stock", controllers.AdminAdjustStock(deps.Products, logg))
			})
			r.Get("/outbox/dead-letters", controllers.AdminDeadLetters(deps.DeadLetters, logg))
		})
	})

	return r
}
