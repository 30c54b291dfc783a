package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
	"github.com/ihh0/bookstore-server/internal/domain"
	"github.com/ihh0/bookstore-server/internal/outbox"
	"github.com/ihh0/bookstore-server/internal/repository"
)

var (
	ErrForbidden            = errors.New("access denied")
	ErrOrderAlreadyCanceled = errors.New("order already canceled")
	ErrOrderNotCancelable   = errors.New("order cannot be canceled")
	ErrInvalidStatusChange  = errors.New("invalid status change")
)

// Actor is the identity context handed down from the authentication layer.
type Actor struct {
	UserID int64
	Role   domain.Role
}

func (a Actor) CanAccess(ownerID int64) bool {
	return a.Role == domain.RoleAdmin || a.UserID == ownerID
}

type OrderItemInput struct {
	BookID   int64
	Quantity int32
}

type CreateOrderInput struct {
	Items           []OrderItemInput
	ShippingAddress string
	PaymentMethod   *string
}

// TxBeginner is satisfied by *pgxpool.Pool; tests substitute an in-memory
// implementation so the transaction boundary stays visible to them.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, input *CreateOrderInput) (*domain.Order, error)
	GetOrders(ctx context.Context, actor Actor, page, size int64) ([]domain.Order, int64, error)
	GetOrderByID(ctx context.Context, actor Actor, orderID int64) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor Actor, orderID int64) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error)
}

type orderService struct {
	db         TxBeginner
	logger     *zap.Logger
	bookRepo   repository.BookRepository
	orderRepo  repository.OrderRepository
	outboxRepo outbox.Repository
	tracer     trace.Tracer
}

func NewOrderService(
	db TxBeginner,
	logger *zap.Logger,
	bookRepo repository.BookRepository,
	orderRepo repository.OrderRepository,
	outboxRepo outbox.Repository,
) OrderService {
	return &orderService{
		db:         db,
		logger:     logger,
		bookRepo:   bookRepo,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("order_service"),
	}
}

func (s *orderService) rollback(ctx context.Context, tx pgx.Tx) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		ctxlog.Warn(
			cleanupCtx,
			s.logger,
			"Error rolling back transaction",
			zap.Error(err),
		)
	}
}

// CreateOrder places an order: every line item is priced and reserved, and
// the order row, its items and the outbox event land in one transaction.
// Any failing line item aborts the whole call with no stock committed.
func (s *orderService) CreateOrder(ctx context.Context, userID int64, input *CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("items_count", len(input.Items)),
	)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		ids = append(ids, item.BookID)
	}

	books, err := s.bookRepo.FindManyByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:          userID,
		Status:          domain.OrderStatusPaid,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		Items:           make([]domain.OrderItem, 0, len(input.Items)),
	}

	for _, item := range input.Items {
		book, ok := books[item.BookID]
		if !ok {
			ctxlog.Warn(
				ctx,
				s.logger,
				"Book not found",
				zap.Int64("book_id", item.BookID),
			)

			return nil, fmt.Errorf("book %d: %w", item.BookID, repository.ErrBookNotFound)
		}

		price := book.SalePrice()

		if err := s.bookRepo.DecrementStock(ctx, tx, item.BookID, item.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				ctxlog.Warn(
					ctx,
					s.logger,
					"Insufficient stock",
					zap.Int64("book_id", item.BookID),
					zap.Int32("quantity", item.Quantity),
				)

				return nil, fmt.Errorf("book %d: %w", item.BookID, err)
			}

			return nil, err
		}

		order.Items = append(order.Items, domain.OrderItem{
			BookID:    item.BookID,
			BookTitle: book.Title,
			Quantity:  item.Quantity,
			Price:     price,
			Subtotal:  price.Mul(decimal.NewFromInt32(item.Quantity)),
		})
	}

	order.CalculateTotal()

	for attempt := 1; ; attempt++ {
		order.OrderNumber = NewOrderNumber(time.Now())

		err = s.orderRepo.Create(ctx, tx, order)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrOrderNumberTaken) && attempt < orderNumberAttempts {
			ctxlog.Warn(
				ctx,
				s.logger,
				"Order number collision, retrying",
				zap.String("order_number", order.OrderNumber),
				zap.Int("attempt", attempt),
			)

			continue
		}

		ctxlog.Error(ctx, s.logger, "Failed to create order", zap.Error(err))

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	event := domain.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalPrice:  order.TotalPrice.String(),
		Items:       eventItems(order.Items),
	}
	if err := s.emitEvent(ctx, tx, "Order", order.ID, "OrderCreated", event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	ctxlog.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	return order, nil
}

// CancelOrder flips the order to canceled and restores every reserved
// quantity in the same transaction. A second cancel fails on the status
// guard, so stock is restored exactly once.
func (s *orderService) CancelOrder(ctx context.Context, actor Actor, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("user_id", actor.UserID),
	)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !actor.CanAccess(order.UserID) {
		ctxlog.Warn(
			ctx,
			s.logger,
			"Cancel denied",
			zap.Int64("order_id", orderID),
			zap.Int64("user_id", actor.UserID),
		)

		return nil, ErrForbidden
	}

	if order.Status == domain.OrderStatusCanceled {
		return nil, ErrOrderAlreadyCanceled
	}
	if !order.Status.Cancelable() {
		return nil, fmt.Errorf("order in status %q: %w", order.Status, ErrOrderNotCancelable)
	}

	if err := s.cancelLocked(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	ctxlog.Info(ctx, s.logger, "Order canceled", zap.Int64("order_id", orderID))

	return order, nil
}

// cancelLocked flips the status and restores stock. The caller holds the row
// lock and has already run the guards.
func (s *orderService) cancelLocked(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusCanceled); err != nil {
		return err
	}

	for _, item := range order.Items {
		if err := s.bookRepo.IncrementStock(ctx, tx, item.BookID, item.Quantity); err != nil {
			ctxlog.Error(
				ctx,
				s.logger,
				"Failed to restore stock",
				zap.Int64("book_id", item.BookID),
				zap.Int32("quantity", item.Quantity),
				zap.Error(err),
			)

			return err
		}
	}

	order.Status = domain.OrderStatusCanceled

	event := domain.OrderCanceledEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Items:       eventItems(order.Items),
	}

	return s.emitEvent(ctx, tx, "Order", order.ID, "OrderCanceled", event)
}

// UpdateStatus is the administrative path. Transitions are validated against
// the same table as everything else, and moving to canceled restores stock
// exactly as CancelOrder does.
func (s *orderService) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%s -> %s: %w", order.Status, status, ErrInvalidStatusChange)
	}

	if status == domain.OrderStatusCanceled {
		if err := s.cancelLocked(ctx, tx, order); err != nil {
			return nil, err
		}
	} else {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, status); err != nil {
			return nil, err
		}
		order.Status = status
	}

	if err := tx.Commit(ctx); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return order, nil
}

func (s *orderService) GetOrders(ctx context.Context, actor Actor, page, size int64) ([]domain.Order, int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrders")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var userID *int64
	if actor.Role != domain.RoleAdmin {
		userID = &actor.UserID
	}

	return s.orderRepo.List(ctx, userID, size, (page-1)*size)
}

func (s *orderService) GetOrderByID(ctx context.Context, actor Actor, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrderByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !actor.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}

	return order, nil
}

func (s *orderService) emitEvent(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, eventType string, payload any) error {
	if err := saveEvent(ctx, tx, s.outboxRepo, aggregateType, aggregateID, eventType, "order_events", payload); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to save outbox event", zap.Error(err))

		return err
	}

	return nil
}

func eventItems(items []domain.OrderItem) []domain.EventItem {
	out := make([]domain.EventItem, len(items))
	for i, item := range items {
		out[i] = domain.EventItem{BookID: item.BookID, Quantity: item.Quantity}
	}
	return out
}
