package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/ihh0/bookstore-server/internal/outbox"
)

// saveEvent wraps the payload in the standard envelope and stores it in the
// outbox inside the caller's transaction. The relay picks it up after commit.
func saveEvent(ctx context.Context, tx pgx.Tx, repo outbox.Repository, aggregateType string, aggregateID int64, eventType, topic string, payload any) error {
	envelope := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	payloadBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	event := &outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatInt(aggregateID, 10),
		EventType:     eventType,
		Payload:       payloadBytes,
		Topic:         topic,
	}

	if err := repo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}
