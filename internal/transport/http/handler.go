package http

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/internal/service"
	"github.com/mzziin/PrimeCart/pkg/mylogger"
	"github.com/mzziin/PrimeCart/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type OrderHandler struct {
	svc      service.OrderService
	logger   *zap.Logger
	validate *validator.Validate
	cb       *gobreaker.CircuitBreaker
}

func NewOrderHandler(svc service.OrderService, logger *zap.Logger) *OrderHandler {
	settings := gobreaker.Settings{
		Name:        "OrderPlacement",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &OrderHandler{
		svc:      svc,
		logger:   logger,
		validate: validator.New(),
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

func (h *OrderHandler) PlaceOrder(c *fiber.Ctx) error {
	input := new(PlaceOrderRequest)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"failed to parse body in place order",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"fields": utils.FormatValidationError(validationErrors),
			})
		}

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	items := make([]service.PlaceOrderItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, service.PlaceOrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.cb.Execute(func() (interface{}, error) {
		return h.svc.PlaceOrder(c.UserContext(), service.PlaceOrderInput{
			CustomerID: input.CustomerID,
			Items:      items,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			h.logger.Warn("Circuit breaker open")

			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "service temporarily unavailable",
			})
		}

		return respondError(c, err)
	}

	order, ok := result.(*domain.Order)
	if !ok {
		h.logger.Warn("result cast error")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"place order succeeded",
		zap.String("order_id", order.ID),
	)

	return c.Status(fiber.StatusCreated).JSON(toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.svc.GetOrderByID(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(toOrderResponse(order))
}

func (h *OrderHandler) GetCustomerOrders(c *fiber.Ctx) error {
	customerID := c.Params("id")

	orders, err := h.svc.GetOrdersByCustomer(c.UserContext(), customerID)
	if err != nil {
		return respondError(c, err)
	}

	responses := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toOrderResponse(&orders[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders": responses,
	})
}

func (h *OrderHandler) UpdateItemStatus(c *fiber.Ctx) error {
	itemID := c.Params("id")

	input := new(UpdateOrderItemStatusRequest)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status is required",
		})
	}

	status, err := domain.ParseOrderItemStatus(input.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	item, err := h.svc.UpdateOrderItemStatus(c.UserContext(), itemID, status)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(toOrderItemResponse(item))
}

func (h *OrderHandler) CancelItem(c *fiber.Ctx) error {
	itemID := c.Params("id")

	item, err := h.svc.CancelOrderItem(c.UserContext(), itemID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(toOrderItemResponse(item))
}
