package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message, event *model.OutboxEvent) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, mdt_id, author_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, msg.MDTID, msg.AuthorID, msg.Content, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		// Posting bumps the case feed ordering.
		if _, err := tx.ExecContext(ctx,
			`UPDATE mdts SET updated_at = $1 WHERE id = $2`,
			msg.CreatedAt, msg.MDTID,
		); err != nil {
			return fmt.Errorf("failed to touch mdt: %w", err)
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *messageRepository) ListForMDT(ctx context.Context, mdtID uuid.UUID) ([]*model.Message, error) {
	query := `
		SELECT m.id, m.mdt_id, m.author_id, m.content, m.created_at,
		       u.name AS author_name
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.mdt_id = $1
		ORDER BY m.created_at ASC
	`

	var messages []*model.Message
	if err := r.db.SelectContext(ctx, &messages, query, mdtID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
