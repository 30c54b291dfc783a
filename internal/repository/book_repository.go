package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
	"github.com/ihh0/bookstore-server/internal/domain"
)

type BookRepository interface {
	Create(ctx context.Context, tx pgx.Tx, book *domain.Book) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Book, error)
	FindManyByIDs(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]domain.Book, error)
	List(ctx context.Context, q domain.BookQuery) ([]domain.Book, int64, error)
	Update(ctx context.Context, id int64, input *domain.UpdateBookInput, discountPrice decimal.NullDecimal) error
	SoftDelete(ctx context.Context, id int64) error
	ISBNExists(ctx context.Context, isbn string) (bool, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
	IncrementStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
}

type bookRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewBookRepository(pool *pgxpool.Pool, logger *zap.Logger) BookRepository {
	return &bookRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("book_repo"),
	}
}

const bookColumns = `id, title, author, isbn, description, category,
		price, discount_rate, discount_price, stock_quantity, created_at, updated_at`

func scanBook(row pgx.Row, b *domain.Book) error {
	return row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Category,
		&b.Price, &b.DiscountRate, &b.DiscountPrice, &b.StockQuantity,
		&b.CreatedAt, &b.UpdatedAt,
	)
}

// DecrementStock reserves stock with a single conditional update. The guard
// in the WHERE clause is what keeps stock_quantity from ever going negative
// under concurrent orders: the row lock serializes writers and the losing
// update matches zero rows.
func (r *bookRepo) DecrementStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.DecrementStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE books
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1
			AND stock_quantity >= $2
			AND deleted_at IS NULL;
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Error decrementing stock",
			zap.Int64("book_id", id),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("error decrementing stock for book %d: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}

	return nil
}

func (r *bookRepo) IncrementStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.IncrementStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE books
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		ctxlog.Warn(ctx, r.logger, "Failed to increment stock", zap.Error(err))

		return err
	}

	if commandTag.RowsAffected() == 0 {
		ctxlog.Warn(ctx, r.logger, "Book not found", zap.Int64("book_id", id))
		return ErrBookNotFound
	}

	return nil
}

func (r *bookRepo) FindManyByIDs(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.FindManyByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.Int("id_count", len(ids)),
	)

	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = ANY($1) AND deleted_at IS NULL
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to query books",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting books: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]domain.Book, len(ids))
	for rows.Next() {
		var b domain.Book
		if err := scanBook(rows, &b); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning book: %w", err)
		}

		result[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

func (r *bookRepo) Create(ctx context.Context, tx pgx.Tx, book *domain.Book) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("title", book.Title),
	)

	query := `
		INSERT INTO books (title, author, isbn, description, category,
			price, discount_rate, discount_price, stock_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;
	`

	err := tx.QueryRow(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Description,
		book.Category,
		book.Price,
		book.DiscountRate,
		book.DiscountPrice,
		book.StockQuantity,
	).Scan(&book.ID)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Error creating book",
			zap.Error(err),
		)

		return 0, fmt.Errorf("error creating book: %w", err)
	}

	return book.ID, nil
}

func (r *bookRepo) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1 AND deleted_at IS NULL;
	`

	var res domain.Book
	if err := scanBook(r.pool.QueryRow(ctx, query, id), &res); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}

		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Error getting book by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting book: %w", err)
	}

	return &res, nil
}

func (r *bookRepo) ISBNExists(ctx context.Context, isbn string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.ISBNExists")
	defer span.End()

	var exists bool
	err := r.pool.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`,
		isbn,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)

		return false, fmt.Errorf("error checking isbn: %w", err)
	}

	return exists, nil
}

var bookSortFields = map[string]bool{
	"price":      true,
	"title":      true,
	"created_at": true,
}

func (r *bookRepo) List(ctx context.Context, q domain.BookQuery) ([]domain.Book, int64, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", q.Limit),
		attribute.Int64("offset", q.Offset),
		attribute.String("keyword", q.Keyword),
	)

	baseQuery := `SELECT ` + bookColumns + `
		FROM books
		WHERE deleted_at IS NULL`
	countQuery := `SELECT COUNT(*) FROM books WHERE deleted_at IS NULL`

	var args []interface{}
	argID := 1

	if q.Category != "" {
		filter := fmt.Sprintf(" AND category = $%d", argID)
		baseQuery += filter
		countQuery += filter

		args = append(args, q.Category)
		argID++
	}

	if q.Keyword != "" {
		filter := fmt.Sprintf(" AND (title ILIKE $%d OR author ILIKE $%d)", argID, argID)
		baseQuery += filter
		countQuery += filter

		args = append(args, "%"+q.Keyword+"%")
		argID++
	}

	countArgs := make([]interface{}, len(args))
	copy(countArgs, args)

	sortBy := "created_at"
	if bookSortFields[q.SortBy] {
		sortBy = q.SortBy
	}
	sortDir := "DESC"
	if strings.EqualFold(q.SortDir, "asc") {
		sortDir = "ASC"
	}

	baseQuery += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", sortBy, sortDir, argID, argID+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.pool.Query(ctx, baseQuery, args...)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Error listing books",
			zap.String("keyword", q.Keyword),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := scanBook(rows, &b); err != nil {
			span.RecordError(err)

			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	return books, totalCount, nil
}

func (r *bookRepo) Update(ctx context.Context, id int64, input *domain.UpdateBookInput, discountPrice decimal.NullDecimal) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `UPDATE books SET `
	var args []interface{}
	argID := 1

	var updates []string

	set := func(column string, value interface{}) {
		updates = append(updates, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
	}

	if input.Title != nil {
		set("title", *input.Title)
	}
	if input.Author != nil {
		set("author", *input.Author)
	}
	if input.Description != nil {
		set("description", *input.Description)
	}
	if input.Category != nil {
		set("category", *input.Category)
	}
	if input.Price != nil {
		set("price", *input.Price)
	}
	if input.DiscountRate != nil {
		set("discount_rate", *input.DiscountRate)
	}
	if input.Price != nil || input.DiscountRate != nil {
		set("discount_price", discountPrice)
	}
	if input.StockQuantity != nil {
		set("stock_quantity", *input.StockQuantity)
	}

	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "updated_at = NOW()")

	query += strings.Join(updates, ", ")
	query += fmt.Sprintf(" WHERE id = $%d AND deleted_at IS NULL", argID)
	args = append(args, id)

	commandTag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Failed to update book",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error updating book: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}

func (r *bookRepo) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.SoftDelete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		UPDATE books
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	commandTag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		span.RecordError(err)

		ctxlog.Error(
			ctx,
			r.logger,
			"Error deleting book by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return fmt.Errorf("error deleting book by id: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}
