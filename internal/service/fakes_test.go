package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ihh0/bookstore-server/internal/domain"
	"github.com/ihh0/bookstore-server/internal/outbox"
	"github.com/ihh0/bookstore-server/internal/repository"
)

// fakeTx tracks undo closures registered by the fake repositories. Commit
// discards them, Rollback applies them in reverse, which gives the tests real
// all-or-nothing semantics without a database.
type fakeTx struct {
	pgx.Tx
	mu   sync.Mutex
	undo []func()
	done bool
}

func (t *fakeTx) addUndo(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	return nil
}

type fakeDB struct{}

func (db *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

type fakeBookRepo struct {
	mu    sync.Mutex
	seq   int64
	books map[int64]*domain.Book
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[int64]*domain.Book)}
}

func (r *fakeBookRepo) add(book domain.Book) *domain.Book {
	r.mu.Lock()
	defer r.mu.Unlock()

	if book.ID == 0 {
		r.seq++
		book.ID = r.seq
	} else if book.ID > r.seq {
		r.seq = book.ID
	}
	stored := book
	r.books[book.ID] = &stored
	return &stored
}

func (r *fakeBookRepo) stock(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books[id].StockQuantity
}

func (r *fakeBookRepo) Create(_ context.Context, tx pgx.Tx, book *domain.Book) (int64, error) {
	r.mu.Lock()
	r.seq++
	id := r.seq
	stored := *book
	stored.ID = id
	r.books[id] = &stored
	r.mu.Unlock()

	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			delete(r.books, id)
			r.mu.Unlock()
		})
	}
	return id, nil
}

func (r *fakeBookRepo) GetByID(_ context.Context, id int64) (*domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok || book.DeletedAt != nil {
		return nil, repository.ErrBookNotFound
	}
	copied := *book
	return &copied, nil
}

func (r *fakeBookRepo) FindManyByIDs(_ context.Context, _ pgx.Tx, ids []int64) (map[int64]domain.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[int64]domain.Book, len(ids))
	for _, id := range ids {
		if book, ok := r.books[id]; ok && book.DeletedAt == nil {
			result[id] = *book
		}
	}
	return result, nil
}

func (r *fakeBookRepo) List(_ context.Context, _ domain.BookQuery) ([]domain.Book, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var books []domain.Book
	for _, book := range r.books {
		if book.DeletedAt == nil {
			books = append(books, *book)
		}
	}
	return books, int64(len(books)), nil
}

func (r *fakeBookRepo) Update(_ context.Context, id int64, input *domain.UpdateBookInput, discountPrice decimal.NullDecimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok || book.DeletedAt != nil {
		return repository.ErrBookNotFound
	}

	if input.Title != nil {
		book.Title = *input.Title
	}
	if input.Author != nil {
		book.Author = *input.Author
	}
	if input.Description != nil {
		book.Description = *input.Description
	}
	if input.Category != nil {
		book.Category = *input.Category
	}
	if input.Price != nil {
		book.Price = *input.Price
	}
	if input.DiscountRate != nil {
		book.DiscountRate = input.DiscountRate
	}
	if input.Price != nil || input.DiscountRate != nil {
		book.DiscountPrice = discountPrice
	}
	if input.StockQuantity != nil {
		book.StockQuantity = *input.StockQuantity
	}
	return nil
}

func (r *fakeBookRepo) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok || book.DeletedAt != nil {
		return repository.ErrBookNotFound
	}
	now := time.Now()
	book.DeletedAt = &now
	return nil
}

func (r *fakeBookRepo) ISBNExists(_ context.Context, isbn string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, book := range r.books {
		if book.ISBN != nil && *book.ISBN == isbn {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBookRepo) DecrementStock(_ context.Context, tx pgx.Tx, id int64, quantity int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok || book.DeletedAt != nil || book.StockQuantity < int64(quantity) {
		return repository.ErrInsufficientStock
	}
	book.StockQuantity -= int64(quantity)

	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			r.books[id].StockQuantity += int64(quantity)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *fakeBookRepo) IncrementStock(_ context.Context, tx pgx.Tx, id int64, quantity int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok {
		return repository.ErrBookNotFound
	}
	book.StockQuantity += int64(quantity)

	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			r.books[id].StockQuantity -= int64(quantity)
			r.mu.Unlock()
		})
	}
	return nil
}

type fakeOrderRepo struct {
	mu          sync.Mutex
	seq         int64
	orders      map[int64]*domain.Order
	numbers     map[string]bool
	failCreates int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  make(map[int64]*domain.Order),
		numbers: make(map[string]bool),
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	copied := *o
	copied.Items = make([]domain.OrderItem, len(o.Items))
	copy(copied.Items, o.Items)
	return &copied
}

func (r *fakeOrderRepo) Create(_ context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreates > 0 {
		r.failCreates--
		return repository.ErrOrderNumberTaken
	}
	if r.numbers[order.OrderNumber] {
		return repository.ErrOrderNumberTaken
	}

	r.seq++
	order.ID = r.seq
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	r.numbers[order.OrderNumber] = true
	r.orders[order.ID] = copyOrder(order)

	id := order.ID
	number := order.OrderNumber
	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			delete(r.orders, id)
			delete(r.numbers, number)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (r *fakeOrderRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id int64) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, tx pgx.Tx, orderID int64, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	prev := order.Status
	order.Status = status

	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			if o, ok := r.orders[orderID]; ok {
				o.Status = prev
			}
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *fakeOrderRepo) List(_ context.Context, userID *int64, limit, offset int64) ([]domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []domain.Order
	for _, order := range r.orders {
		if userID == nil || order.UserID == *userID {
			orders = append(orders, *copyOrder(order))
		}
	}
	total := int64(len(orders))

	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return orders[offset:end], total, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func (r *fakeOutboxRepo) SaveEvent(_ context.Context, tx pgx.Tx, event *outbox.Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	if ft, ok := tx.(*fakeTx); ok {
		ft.addUndo(func() {
			r.mu.Lock()
			r.events = r.events[:len(r.events)-1]
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *fakeOutboxRepo) GetUnpublishedEvents(_ context.Context, _ pgx.Tx, _ int) ([]*outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*outbox.Event(nil), r.events...), nil
}

func (r *fakeOutboxRepo) MarkEventPublished(_ context.Context, _ pgx.Tx, _ int64) error {
	return nil
}

func (r *fakeOutboxRepo) MarkEventFailed(_ context.Context, _ pgx.Tx, _ int64, _ string) error {
	return nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType
	}
	return types
}
