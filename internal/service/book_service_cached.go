package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ihh0/bookstore-server/internal/domain"
)

type cachedBookService struct {
	next        BookService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewCachedBookService wraps a BookService with a Redis read-through cache
// for single-book lookups. Mutations invalidate the cached entry.
func NewCachedBookService(next BookService, redisClient *redis.Client) BookService {
	return &cachedBookService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func bookCacheKey(id int64) string {
	return fmt.Sprintf("book:%d", id)
}

func (s *cachedBookService) CreateBook(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	return s.next.CreateBook(ctx, book)
}

func (s *cachedBookService) GetBookByID(ctx context.Context, id int64) (*domain.Book, error) {
	key := bookCacheKey(id)

	val, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		var book domain.Book
		if err := json.Unmarshal([]byte(val), &book); err == nil {
			return &book, nil
		}
	}

	book, err := s.next.GetBookByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(book); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return book, nil
}

func (s *cachedBookService) GetBooks(ctx context.Context, query *domain.BookQuery) ([]domain.Book, int64, error) {
	return s.next.GetBooks(ctx, query)
}

func (s *cachedBookService) UpdateBook(ctx context.Context, id int64, input *domain.UpdateBookInput) (*domain.Book, error) {
	book, err := s.next.UpdateBook(ctx, id, input)
	if err != nil {
		return nil, err
	}

	s.redisClient.Del(ctx, bookCacheKey(id))

	return book, nil
}

func (s *cachedBookService) DeleteBook(ctx context.Context, id int64) error {
	if err := s.next.DeleteBook(ctx, id); err != nil {
		return err
	}

	s.redisClient.Del(ctx, bookCacheKey(id))

	return nil
}
