package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ihh0/bookstore-server/internal/ctxlog"
)

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, message interface{}) error
}

// Processor drains unpublished outbox rows to Kafka. The broker hop runs
// behind a circuit breaker so a dead broker doesn't burn an attempt per row
// per tick.
type Processor struct {
	pool      *pgxpool.Pool
	repo      Repository
	producer  KafkaProducer
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	breaker   *gobreaker.CircuitBreaker
	tracer    trace.Tracer
}

func NewProcessor(
	pool *pgxpool.Pool,
	repo Repository,
	producer KafkaProducer,
	logger *zap.Logger,
) *Processor {
	settings := gobreaker.Settings{
		Name:        "OutboxKafka",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Processor{
		pool:      pool,
		repo:      repo,
		producer:  producer,
		logger:    logger,
		batchSize: 50,
		interval:  500 * time.Millisecond,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		tracer:    otel.Tracer("outbox-worker"),
	}
}

func (p *Processor) Start(ctx context.Context) {
	ctxlog.Info(ctx, p.logger, "Starting outbox processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ctxlog.Info(ctx, p.logger, "Outbox processor stopping")

			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				ctxlog.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			ctxlog.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	ctxlog.Debug(
		ctx,
		p.logger,
		"Processing outbox events",
		zap.Int("count", len(events)),
	)

	for _, event := range events {
		var payloadMap map[string]any
		if err := json.Unmarshal(event.Payload, &payloadMap); err != nil {
			ctxlog.Error(
				ctx,
				p.logger,
				"Outbox worker unmarshal event payload failed",
				zap.Int64("id", event.ID),
				zap.Error(err),
			)

			_ = p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error())
			continue
		}

		payloadMap["event_id"] = event.ID

		_, err = p.breaker.Execute(func() (interface{}, error) {
			return nil, p.producer.ProduceMessage(ctx, event.Topic, payloadMap)
		})
		if err != nil {
			ctxlog.Error(
				ctx,
				p.logger,
				"Outbox worker produce message failed",
				zap.Int64("id", event.ID),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error()); dbErr != nil {
				ctxlog.Error(
					ctx,
					p.logger,
					"Outbox worker mark event failed failed",
					zap.Int64("id", event.ID),
					zap.Error(dbErr),
				)
			}

			if errors.Is(err, gobreaker.ErrOpenState) {
				break
			}
		} else {
			if dbErr := p.repo.MarkEventPublished(ctx, tx, event.ID); dbErr != nil {
				ctxlog.Error(
					ctx,
					p.logger,
					"Outbox worker mark event published failed",
					zap.Int64("id", event.ID),
					zap.Error(dbErr),
				)

				return dbErr
			}

			ctxlog.Debug(
				ctx,
				p.logger,
				"Outbox worker event published successfully",
				zap.Int64("id", event.ID),
			)
		}
	}

	return tx.Commit(ctx)
}
