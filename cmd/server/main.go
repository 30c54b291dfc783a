package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ihh0/bookstore-server/internal/config"
	"github.com/ihh0/bookstore-server/internal/db"
	"github.com/ihh0/bookstore-server/internal/kafka"
	"github.com/ihh0/bookstore-server/internal/outbox"
	"github.com/ihh0/bookstore-server/internal/repository"
	"github.com/ihh0/bookstore-server/internal/service"
	"github.com/ihh0/bookstore-server/internal/telemetry"
	transport "github.com/ihh0/bookstore-server/internal/transport/http"
	"github.com/ihh0/bookstore-server/internal/transport/http/handler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := telemetry.InitTracer(ctx, "bookstore-server")
	if err != nil {
		log.Fatalf("Failed to init tracer: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Error creating postgres pool: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("Error creating kafka producer: %v", err)
	}

	bookRepo := repository.NewBookRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := outbox.NewRepository(pool, logger)

	bookService := service.NewCachedBookService(
		service.NewBookService(pool, logger, bookRepo, outboxRepo),
		rdb,
	)
	orderService := service.NewOrderService(pool, logger, bookRepo, orderRepo, outboxRepo)

	outboxProcessor := outbox.NewProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	handlers := &transport.Handlers{
		Book:  handler.NewBookHandler(bookService, logger),
		Order: handler.NewOrderHandler(orderService, logger),
	}

	transport.RegisterRoutes(app, handlers, transport.RouterConfig{
		AuthSecret:        cfg.Auth.AccessSecret,
		LimiterMax:        cfg.Limiter.Max,
		LimiterExpiration: cfg.Limiter.Expiration,
	})

	logger.Info("Bookstore server started!")

	go func() {
		log.Println("HTTP server listening on " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	}

	if err := kafkaProducer.Close(); err != nil {
		log.Printf("Error closing kafka producer: %v\n", err)
	}

	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down telemetry: %v\n", err)
	}
}
