package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ProcessPending claims due events and handles them inside one transaction.
// The skip-locked read keeps the row locks until commit, after the status
// updates are in place, so a second worker can never see the same batch.
func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, handle func(*model.OutboxEvent) error) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT id, event_type, payload, status, error_message,
			       created_at, processed_at, updated_at, retry_count, retry_at
			FROM outbox_events
			WHERE status IN ('pending', 'retry')
			AND (retry_at IS NULL OR retry_at <= NOW())
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to claim pending events: %w", err)
		}

		for _, event := range events {
			if err := handle(event); err != nil {
				msg := err.Error()
				if uerr := updateEventStatus(ctx, tx, event.ID, string(model.OutboxStatusFailed), &msg); uerr != nil {
					return uerr
				}
				continue
			}
			if err := updateEventStatus(ctx, tx, event.ID, string(model.OutboxStatusProcessed), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateEventStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status string, errorMessage *string) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, query, status, errorMessage, id); err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
