package http

import (
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *OrderHandler) {
	api := app.Group("/api")

	orders := api.Group("/orders")
	orders.Post("", h.PlaceOrder)
	orders.Get("/:id", h.GetOrder)

	api.Get("/customers/:id/orders", h.GetCustomerOrders)

	items := api.Group("/order-items")
	items.Patch("/:id/status", h.UpdateItemStatus)
	items.Post("/:id/cancel", h.CancelItem)
}
