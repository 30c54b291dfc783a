package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/domain"
	"github.com/ihh0/bookstore-server/internal/kafka"
	"github.com/ihh0/bookstore-server/internal/outbox"
	"github.com/ihh0/bookstore-server/internal/repository"
	"github.com/ihh0/bookstore-server/internal/testsuite"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	OrderService    OrderService
	BookService     BookService
	TestProducer    kafka.Producer
	OutboxProcessor *outbox.Processor
	workerCancel    context.CancelFunc
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("order_items")
	s.BaseSuite.TruncateTable("orders")
	s.BaseSuite.TruncateTable("books")
	s.BaseSuite.TruncateTable("outbox")

	logger := zap.NewNop()
	bookRepo := repository.NewBookRepository(s.DbPool, logger)
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	outboxRepo := outbox.NewRepository(s.DbPool, logger)

	var err error
	s.TestProducer, err = kafka.NewProducer(s.KafkaBrokers)
	s.Require().NoError(err, "failed to create kafka producer")

	s.BookService = NewBookService(s.DbPool, logger, bookRepo, outboxRepo)
	s.OrderService = NewOrderService(s.DbPool, logger, bookRepo, orderRepo, outboxRepo)

	s.OutboxProcessor = outbox.NewProcessor(s.DbPool, outboxRepo, s.TestProducer, logger)

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go s.OutboxProcessor.Start(workerCtx)
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
}

func (s *IntegrationTestSuite) seedBookRow(title, price string, discountRate *float64, stock int64) int64 {
	book, err := s.BookService.CreateBook(s.Ctx, &domain.Book{
		Title:         title,
		Author:        "Integration Author",
		Category:      "fiction",
		Price:         decimal.RequireFromString(price),
		DiscountRate:  discountRate,
		StockQuantity: stock,
	})
	s.Require().NoError(err)
	return book.ID
}

func (s *IntegrationTestSuite) stockOf(bookID int64) int64 {
	var stock int64
	err := s.DbPool.QueryRow(s.Ctx, `SELECT stock_quantity FROM books WHERE id = $1`, bookID).
		Scan(&stock)
	s.Require().NoError(err)
	return stock
}

func (s *IntegrationTestSuite) waitForEvent(aggregateID string, eventType string) {
	query := `
		SELECT published_at
		FROM outbox
		WHERE aggregate_id = $1 AND event_type = $2
	`

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time

		err := s.DbPool.QueryRow(s.Ctx, query, aggregateID, eventType).Scan(&publishedAt)
		return err == nil && publishedAt != nil
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCreateOrder_PersistsAndPublishes() {
	bookID := s.seedBookRow("Winter Stories", "25.00", nil, 10)

	order, err := s.OrderService.CreateOrder(s.Ctx, 42, &CreateOrderInput{
		Items:           []OrderItemInput{{BookID: bookID, Quantity: 3}},
		ShippingAddress: "12 Main Street",
	})
	s.Require().NoError(err)
	s.Require().NotZero(order.ID)

	s.Equal(int64(7), s.stockOf(bookID))
	s.True(order.TotalPrice.Equal(decimal.RequireFromString("75.00")),
		"got %s", order.TotalPrice)

	stored, err := s.OrderService.GetOrderByID(s.Ctx, Actor{UserID: 42, Role: domain.RoleUser}, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPaid, stored.Status)
	s.Require().Len(stored.Items, 1)
	s.Equal("Winter Stories", stored.Items[0].BookTitle)

	s.waitForEvent(strconv.FormatInt(order.ID, 10), "OrderCreated")
}

func (s *IntegrationTestSuite) TestCreateOrder_DiscountedPriceIsSnapshotted() {
	rate := 0.2
	bookID := s.seedBookRow("Discounted", "50.00", &rate, 5)

	order, err := s.OrderService.CreateOrder(s.Ctx, 42, &CreateOrderInput{
		Items:           []OrderItemInput{{BookID: bookID, Quantity: 1}},
		ShippingAddress: "12 Main Street",
	})
	s.Require().NoError(err)

	s.True(order.Items[0].Price.Equal(decimal.RequireFromString("40.00")),
		"got %s", order.Items[0].Price)

	// A later price change must not affect the stored order.
	newPrice := decimal.RequireFromString("70.00")
	_, err = s.BookService.UpdateBook(s.Ctx, bookID, &domain.UpdateBookInput{Price: &newPrice})
	s.Require().NoError(err)

	stored, err := s.OrderService.GetOrderByID(s.Ctx, Actor{UserID: 42, Role: domain.RoleUser}, order.ID)
	s.Require().NoError(err)
	s.True(stored.Items[0].Price.Equal(decimal.RequireFromString("40.00")))
}

func (s *IntegrationTestSuite) TestCreateOrder_InsufficientStockRollsBack() {
	firstID := s.seedBookRow("Plentiful", "10.00", nil, 10)
	secondID := s.seedBookRow("Scarce", "10.00", nil, 1)

	_, err := s.OrderService.CreateOrder(s.Ctx, 42, &CreateOrderInput{
		Items: []OrderItemInput{
			{BookID: firstID, Quantity: 2},
			{BookID: secondID, Quantity: 5},
		},
		ShippingAddress: "12 Main Street",
	})
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	s.Equal(int64(10), s.stockOf(firstID))
	s.Equal(int64(1), s.stockOf(secondID))

	var orderCount int64
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&orderCount))
	s.Equal(int64(0), orderCount)
}

func (s *IntegrationTestSuite) TestCancelOrder_RestoresStockAndPublishes() {
	bookID := s.seedBookRow("Returnable", "15.00", nil, 4)

	order, err := s.OrderService.CreateOrder(s.Ctx, 42, &CreateOrderInput{
		Items:           []OrderItemInput{{BookID: bookID, Quantity: 4}},
		ShippingAddress: "12 Main Street",
	})
	s.Require().NoError(err)
	s.Equal(int64(0), s.stockOf(bookID))

	_, err = s.OrderService.CancelOrder(s.Ctx, Actor{UserID: 42, Role: domain.RoleUser}, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(4), s.stockOf(bookID))

	var status string
	s.Require().NoError(
		s.DbPool.QueryRow(s.Ctx, `SELECT status FROM orders WHERE id = $1`, order.ID).Scan(&status))
	s.Equal("canceled", status)

	s.waitForEvent(strconv.FormatInt(order.ID, 10), "OrderCanceled")

	_, err = s.OrderService.CancelOrder(s.Ctx, Actor{UserID: 42, Role: domain.RoleUser}, order.ID)
	s.Require().ErrorIs(err, ErrOrderAlreadyCanceled)
	s.Equal(int64(4), s.stockOf(bookID))
}

func (s *IntegrationTestSuite) TestConcurrentOrders_NeverOversell() {
	bookID := s.seedBookRow("Limited Edition", "99.00", nil, 3)

	const workers = 5
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.OrderService.CreateOrder(s.Ctx, int64(n+1), &CreateOrderInput{
				Items:           []OrderItemInput{{BookID: bookID, Quantity: 1}},
				ShippingAddress: "12 Main Street",
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}

	s.Equal(3, succeeded, "only as many orders as there is stock")
	s.Equal(int64(0), s.stockOf(bookID))
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	suite.Run(t, new(IntegrationTestSuite))
}
