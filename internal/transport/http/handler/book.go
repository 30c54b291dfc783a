package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
	"github.com/ihh0/bookstore-server/internal/domain"
	"github.com/ihh0/bookstore-server/internal/service"
)

type BookHandler struct {
	service  service.BookService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewBookHandler(bookService service.BookService, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		service:  bookService,
		validate: validator.New(),
		logger:   logger,
	}
}

type CreateBookInput struct {
	Title         string          `json:"title" validate:"required,min=1,max=255"`
	Author        string          `json:"author" validate:"required,min=1,max=255"`
	ISBN          *string         `json:"isbn" validate:"omitempty,min=10,max=17"`
	Description   string          `json:"description" validate:"max=2000"`
	Category      string          `json:"category" validate:"required"`
	Price         decimal.Decimal `json:"price" validate:"required"`
	DiscountRate  *float64        `json:"discount_rate" validate:"omitempty,gte=0,lte=1"`
	StockQuantity int64           `json:"stock_quantity" validate:"gte=0"`
}

type UpdateBookInput struct {
	Title         *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Author        *string          `json:"author" validate:"omitempty,min=1,max=255"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	Category      *string          `json:"category" validate:"omitempty,min=1"`
	Price         *decimal.Decimal `json:"price"`
	DiscountRate  *float64         `json:"discount_rate" validate:"omitempty,gte=0,lte=1"`
	StockQuantity *int64           `json:"stock_quantity" validate:"omitempty,gte=0"`
}

func (h *BookHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(CreateBookInput)
	if err := c.BodyParser(input); err != nil {
		ctxlog.Warn(ctx, h.logger, "failed to parse body in create book", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		ctxlog.Warn(ctx, h.logger, "invalid create book input", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": formatValidationError(err),
		})
	}

	if input.Price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "price must not be negative",
		})
	}

	book := &domain.Book{
		Title:         input.Title,
		Author:        input.Author,
		ISBN:          input.ISBN,
		Description:   input.Description,
		Category:      input.Category,
		Price:         input.Price,
		DiscountRate:  input.DiscountRate,
		StockQuantity: input.StockQuantity,
	}

	created, err := h.service.CreateBook(ctx, book)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"create book failed",
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(ctx, h.logger, "book created", zap.Int64("book_id", created.ID))

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *BookHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)
	offset, _ := strconv.ParseInt(c.Query("offset", "0"), 10, 64)

	query := &domain.BookQuery{
		Limit:    limit,
		Offset:   offset,
		Keyword:  c.Query("keyword"),
		Category: c.Query("category"),
		SortBy:   c.Query("sort_by"),
		SortDir:  c.Query("sort_dir"),
	}

	books, total, err := h.service.GetBooks(ctx, query)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(ctx, h.logger, "list books failed", zap.Error(err))

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"books":       books,
		"total_count": total,
	})
}

func (h *BookHandler) FindByID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		ctxlog.Warn(ctx, h.logger, "invalid book id", zap.String("id", c.Params("id")))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid book id",
		})
	}

	book, err := h.service.GetBookByID(ctx, id)
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"get book failed",
			zap.Int64("book_id", id),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(book)
}

func (h *BookHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid book id",
		})
	}

	input := new(UpdateBookInput)
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

	if input.Price != nil && input.Price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "price must not be negative",
		})
	}

	book, err := h.service.UpdateBook(ctx, id, &domain.UpdateBookInput{
		Title:         input.Title,
		Author:        input.Author,
		Description:   input.Description,
		Category:      input.Category,
		Price:         input.Price,
		DiscountRate:  input.DiscountRate,
		StockQuantity: input.StockQuantity,
	})
	if err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"update book failed",
			zap.Int64("book_id", id),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(ctx, h.logger, "book updated", zap.Int64("book_id", id))

	return c.Status(fiber.StatusOK).JSON(book)
}

func (h *BookHandler) Delete(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid book id",
		})
	}

	if err := h.service.DeleteBook(ctx, id); err != nil {
		httpCode := mapStatus(err)

		ctxlog.Warn(
			ctx,
			h.logger,
			"delete book failed",
			zap.Int64("book_id", id),
			zap.Int("http_code", httpCode),
			zap.Error(err),
		)

		return c.Status(httpCode).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ctxlog.Info(ctx, h.logger, "book deleted", zap.Int64("book_id", id))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}
