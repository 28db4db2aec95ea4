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

type invitationRepository struct {
	BaseRepository
}

func NewInvitationRepository(base BaseRepository) repository.InvitationRepository {
	return &invitationRepository{base}
}

const invitationSelect = `
	SELECT i.id, i.mdt_id, i.sender_id, i.receiver_id, i.specialty_id,
	       i.status, i.created_at, i.updated_at,
	       t.name AS mdt_name, s.name AS specialty_name,
	       snd.name AS sender_name, rcv.name AS receiver_name
	FROM invitations i
	JOIN mdts t ON t.id = i.mdt_id
	LEFT JOIN specialties s ON s.id = i.specialty_id
	JOIN users snd ON snd.id = i.sender_id
	JOIN users rcv ON rcv.id = i.receiver_id
`

func (r *invitationRepository) Create(ctx context.Context, inv *model.Invitation, event *model.OutboxEvent) error {
	now := time.Now()
	inv.ID = uuid.New()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invitations (
				id, mdt_id, sender_id, receiver_id, specialty_id,
				status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inv.ID, inv.MDTID, inv.SenderID, inv.ReceiverID,
			inv.SpecialtyID, inv.Status, inv.CreatedAt, inv.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create invitation: %w", err)
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *invitationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.db.GetContext(ctx, &inv, invitationSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

func (r *invitationRepository) HasPending(ctx context.Context, mdtID, receiverID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM invitations
			WHERE mdt_id = $1 AND receiver_id = $2 AND status = $3
		)`, mdtID, receiverID, model.InvitationStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to check pending invitation: %w", err)
	}
	return exists, nil
}

func (r *invitationRepository) ListPendingForReceiver(ctx context.Context, receiverID uuid.UUID) ([]*model.Invitation, error) {
	var invitations []*model.Invitation
	err := r.db.SelectContext(ctx, &invitations,
		invitationSelect+` WHERE i.receiver_id = $1 AND i.status = $2 ORDER BY i.created_at DESC`,
		receiverID, model.InvitationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	return invitations, nil
}

// Accept resolves an acceptance atomically: the slot is claimed with a
// conditional update so only one of two concurrent acceptors can win, the
// responder joins the team, and every competing pending invitation for the
// same (mdt, specialty) pair is cancelled in the same transaction.
func (r *invitationRepository) Accept(ctx context.Context, inv *model.Invitation, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if inv.SpecialtyID != nil {
			result, err := tx.ExecContext(ctx, `
				UPDATE mdt_specialties SET filled = true
				WHERE mdt_id = $1 AND specialty_id = $2 AND filled = false`,
				inv.MDTID, *inv.SpecialtyID,
			)
			if err != nil {
				return fmt.Errorf("failed to fill specialty slot: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if rows == 0 {
				return repository.ErrPositionFilled
			}
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE invitations SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4`,
			model.InvitationStatusAccepted, time.Now(), inv.ID,
			model.InvitationStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to update invitation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrAlreadyResolved
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mdt_members (mdt_id, user_id, created_at)
			VALUES ($1, $2, $3) ON CONFLICT (mdt_id, user_id) DO NOTHING`,
			inv.MDTID, inv.ReceiverID, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}

		if inv.SpecialtyID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE invitations SET status = $1, updated_at = $2
				WHERE mdt_id = $3 AND specialty_id = $4
				  AND status = $5 AND id <> $6`,
				model.InvitationStatusCancelled, time.Now(),
				inv.MDTID, *inv.SpecialtyID,
				model.InvitationStatusPending, inv.ID,
			); err != nil {
				return fmt.Errorf("failed to cancel competing invitations: %w", err)
			}
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

// UpdateStatus resolves a pending invitation. The PENDING precondition is
// part of the UPDATE, so a decline or cancel racing a committed acceptance
// can never overwrite the terminal status.
func (r *invitationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, event *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE invitations SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4`,
			status, time.Now(), id, model.InvitationStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to update invitation status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrAlreadyResolved
		}
		return insertOutboxEvent(ctx, tx, event)
	})
}
