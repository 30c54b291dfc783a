package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
	"github.com/ihh0/bookstore-server/internal/domain"
	"github.com/ihh0/bookstore-server/internal/service"
)

type OrderHandler struct {
	service  service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  orderService,
		validate: validator.New(),
		logger:   logger,
	}
}

type OrderItemInput struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	Quantity int32 `json:"quantity" validate:"required,gte=1"`
}

type CreateOrderInput struct {
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string           `json:"shipping_address" validate:"required,min=5"`
	PaymentMethod   *string          `json:"payment_method" validate:"omitempty,oneof=card bank_transfer"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered canceled"`
}

func actorFromLocals(c *fiber.Ctx) (service.Actor, bool) {
	userID, ok := c.Locals("userId").(int64)
	if !ok || userID == 0 {
		return service.Actor{}, false
	}

	role, _ := c.Locals("role").(string)

	return service.Actor{UserID: userID, Role: domain.Role(role)}, true
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(CreateOrderInput)
	if err := c.BodyParser(input); err != nil {
		ctxlog.Warn(ctx, h.logger, "failed to parse body in create order", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		ctxlog.Warn(ctx, h.logger, "invalid create order input", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": formatValidationError(err),
		})
	}

	actor, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	items := make([]service.OrderItemInput, len(input.Items))
	for i, item := range input.Items {
		items[i] = service.OrderItemInput{BookID: item.BookID, Quantity: item.Quantity}
	}

	order, err := h.service.CreateOrder(ctx, actor.UserID, &service.CreateOrderInput{
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
	})
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"create order failed",
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(
		ctx,
		h.logger,
		"create order succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	actor, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	size, _ := strconv.ParseInt(c.Query("size", "20"), 10, 64)

	orders, total, err := h.service.GetOrders(ctx, actor, page, size)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(ctx, h.logger, "list orders failed", zap.Error(err))

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders":      orders,
		"total_count": total,
	})
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		ctxlog.Warn(ctx, h.logger, "invalid order id", zap.String("id", c.Params("id")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	actor, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	order, err := h.service.GetOrderByID(ctx, actor, id)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"get order failed",
			zap.Int64("order_id", id),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	actor, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	order, err := h.service.CancelOrder(ctx, actor, id)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"cancel order failed",
			zap.Int64("order_id", id),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(ctx, h.logger, "order canceled", zap.Int64("order_id", id))

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	input := new(UpdateStatusInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": formatValidationError(err),
		})
	}

	order, err := h.service.UpdateStatus(ctx, id, domain.OrderStatus(input.Status))
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"update order status failed",
			zap.Int64("order_id", id),
			zap.String("status", input.Status),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(
		ctx,
		h.logger,
		"order status updated",
		zap.Int64("order_id", id),
		zap.String("status", input.Status),
	)

	return c.Status(fiber.StatusOK).JSON(order)
}
