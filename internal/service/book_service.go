package service

import (
	"context"
	"errors"
	"fmt"

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

type BookService interface {
	CreateBook(ctx context.Context, book *domain.Book) (*domain.Book, error)
	GetBookByID(ctx context.Context, id int64) (*domain.Book, error)
	GetBooks(ctx context.Context, query *domain.BookQuery) ([]domain.Book, int64, error)
	UpdateBook(ctx context.Context, id int64, input *domain.UpdateBookInput) (*domain.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

type bookService struct {
	db         TxBeginner
	logger     *zap.Logger
	bookRepo   repository.BookRepository
	outboxRepo outbox.Repository
	tracer     trace.Tracer
}

func NewBookService(
	db TxBeginner,
	logger *zap.Logger,
	bookRepo repository.BookRepository,
	outboxRepo outbox.Repository,
) BookService {
	return &bookService{
		db:         db,
		logger:     logger,
		bookRepo:   bookRepo,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("book_service"),
	}
}

// discountPrice computes the effective sale price for the given rate.
// A nil or zero rate means no discount is in effect.
func discountPrice(price decimal.Decimal, rate *float64) decimal.NullDecimal {
	if rate == nil || *rate <= 0 {
		return decimal.NullDecimal{}
	}

	multiplier := decimal.NewFromFloat(1 - *rate)

	return decimal.NullDecimal{
		Decimal: price.Mul(multiplier).Round(2),
		Valid:   true,
	}
}

func (s *bookService) rollback(ctx context.Context, tx pgx.Tx) {
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

func (s *bookService) CreateBook(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.CreateBook")
	defer span.End()

	span.SetAttributes(
		attribute.String("title", book.Title),
	)

	if book.ISBN != nil {
		exists, err := s.bookRepo.ISBNExists(ctx, *book.ISBN)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, repository.ErrISBNExists
		}
	}

	book.DiscountPrice = discountPrice(book.Price, book.DiscountRate)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	id, err := s.bookRepo.Create(ctx, tx, book)
	if err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to create book", zap.Error(err))

		return nil, err
	}
	book.ID = id

	event := domain.BookCreatedEvent{
		BookID: book.ID,
		Title:  book.Title,
		Price:  book.Price.String(),
	}
	if err := saveEvent(ctx, tx, s.outboxRepo, "Book", book.ID, "BookCreated", "book_events", event); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to save outbox event", zap.Error(err))

		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	ctxlog.Info(ctx, s.logger, "Book created", zap.Int64("book_id", book.ID))

	return book, nil
}

func (s *bookService) GetBookByID(ctx context.Context, id int64) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.GetBookByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
	)

	return s.bookRepo.GetByID(ctx, id)
}

func (s *bookService) GetBooks(ctx context.Context, query *domain.BookQuery) ([]domain.Book, int64, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.GetBooks")
	defer span.End()

	if query.Limit < 1 {
		query.Limit = 20
	}
	if query.Limit > 100 {
		query.Limit = 100
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	return s.bookRepo.List(ctx, *query)
}

// UpdateBook applies a partial update. When the price or the discount rate
// changes, the discount price is recomputed from the merged values so the
// two never drift apart.
func (s *bookService) UpdateBook(ctx context.Context, id int64, input *domain.UpdateBookInput) (*domain.Book, error) {
	ctx, span := s.tracer.Start(ctx, "BookService.UpdateBook")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
	)

	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	price := book.Price
	if input.Price != nil {
		price = *input.Price
	}

	rate := book.DiscountRate
	if input.DiscountRate != nil {
		rate = input.DiscountRate
	}

	newDiscountPrice := book.DiscountPrice
	if input.Price != nil || input.DiscountRate != nil {
		newDiscountPrice = discountPrice(price, rate)
	}

	if err := s.bookRepo.Update(ctx, id, input, newDiscountPrice); err != nil {
		ctxlog.Error(ctx, s.logger, "Failed to update book", zap.Int64("book_id", id), zap.Error(err))

		return nil, err
	}

	ctxlog.Info(ctx, s.logger, "Book updated", zap.Int64("book_id", id))

	return s.bookRepo.GetByID(ctx, id)
}

func (s *bookService) DeleteBook(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "BookService.DeleteBook")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
	)

	if err := s.bookRepo.SoftDelete(ctx, id); err != nil {
		return err
	}

	ctxlog.Info(ctx, s.logger, "Book deleted", zap.Int64("book_id", id))

	return nil
}
