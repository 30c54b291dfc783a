package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
	"github.com/ihh0/bookstore-server/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) error
	List(ctx context.Context, userID *int64, limit, offset int64) ([]domain.Order, int64, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repo"),
	}
}

const uniqueViolation = "23505"

// Create inserts the order and its items inside a savepoint so that an
// order_number collision rolls back only the insert, not the stock
// reservations already made in the enclosing transaction. Callers regenerate
// the number and retry on ErrOrderNumberTaken.
func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", order.UserID),
		attribute.String("order_number", order.OrderNumber),
		attribute.Int("items_count", len(order.Items)),
	)

	nested, err := tx.Begin(ctx)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to begin savepoint: %w", err)
	}

	queryOrder := `
		INSERT INTO orders (user_id, order_number, status, total_price,
			shipping_address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err = nested.QueryRow(
		ctx,
		queryOrder,
		order.UserID,
		order.OrderNumber,
		string(order.Status),
		order.TotalPrice,
		order.ShippingAddress,
		order.PaymentMethod,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		rollbackCtx := context.WithoutCancel(ctx)
		if rbErr := nested.Rollback(rollbackCtx); rbErr != nil {
			ctxlog.Warn(rollbackCtx, r.logger, "Failed to rollback savepoint", zap.Error(rbErr))
		}

		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			return ErrOrderNumberTaken
		}

		span.RecordError(err)

		ctxlog.Warn(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, book_id, quantity, price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		err := nested.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.BookID,
			item.Quantity,
			item.Price,
			item.Subtotal,
		).Scan(&item.ID)
		if err != nil {
			span.RecordError(err)

			ctxlog.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.Int64("book_id", item.BookID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nested.Commit(ctx)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2;
	`

	commandTag, err := tx.Exec(ctx, query, string(status), orderID)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to update order status",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order status: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		ctxlog.Warn(
			ctx,
			r.logger,
			"Order not found",
			zap.Int64("order_id", orderID),
		)

		return ErrOrderNotFound
	}

	return nil
}

const orderColumns = `id, user_id, order_number, status, total_price,
		shipping_address, payment_method, created_at, updated_at`

func scanOrder(row pgx.Row, o *domain.Order) error {
	return row.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &o.TotalPrice,
		&o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt,
	)
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order domain.Order
	if err := scanOrder(r.pool.QueryRow(ctx, query, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.itemsForOrders(ctx, r.pool, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return &order, nil
}

func (r *orderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIDForUpdate")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	var order domain.Order
	if err := scanOrder(tx.QueryRow(ctx, query, id), &order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to lock order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	items, err := r.itemsForOrders(ctx, tx, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return &order, nil
}

func (r *orderRepo) List(ctx context.Context, userID *int64, limit, offset int64) ([]domain.Order, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	baseQuery := `SELECT ` + orderColumns + ` FROM orders`
	countQuery := `SELECT COUNT(*) FROM orders`

	var args []interface{}
	argID := 1

	if userID != nil {
		filter := fmt.Sprintf(" WHERE user_id = $%d", argID)
		baseQuery += filter
		countQuery += filter

		args = append(args, *userID)
		argID++
	}

	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)

	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, baseQuery, args...)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to list orders",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []int64
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			span.RecordError(err)

			return nil, 0, fmt.Errorf("error scanning order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(ids) > 0 {
		items, err := r.itemsForOrders(ctx, r.pool, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	return orders, totalCount, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *orderRepo) itemsForOrders(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	query := `
		SELECT oi.id, oi.order_id, oi.book_id, b.title, oi.quantity, oi.price, oi.subtotal
		FROM order_items oi
		JOIN books b ON b.id = oi.book_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id;
	`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to query order items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.BookID,
			&item.BookTitle,
			&item.Quantity,
			&item.Price,
			&item.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}

		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
