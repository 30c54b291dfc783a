package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ihh0/bookstore-server/internal/transport/http/handler"
	"github.com/ihh0/bookstore-server/internal/transport/http/middleware"
)

type Handlers struct {
	Book  *handler.BookHandler
	Order *handler.OrderHandler
}

type RouterConfig struct {
	AuthSecret        string
	LimiterMax        int
	LimiterExpiration time.Duration
}

func RegisterRoutes(app *fiber.App, h *Handlers, cfg RouterConfig) {
	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.LimiterMax,
		Expiration: cfg.LimiterExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	auth := middleware.NewAuthMiddleware(cfg.AuthSecret)
	admin := middleware.NewRequireAdminMiddleware()

	api := app.Group("/api")

	books := api.Group("/books")
	books.Get("", h.Book.List)
	books.Get("/:id", h.Book.FindByID)
	books.Post("", auth, admin, h.Book.Create)
	books.Patch("/:id", auth, admin, h.Book.Update)
	books.Delete("/:id", auth, admin, h.Book.Delete)

	orders := api.Group("/orders", auth)
	orders.Post("", h.Order.Create)
	orders.Get("", h.Order.List)
	orders.Get("/:id", h.Order.FindByID)
	orders.Post("/:id/cancel", h.Order.Cancel)
	orders.Patch("/:id/status", admin, h.Order.UpdateStatus)
}
