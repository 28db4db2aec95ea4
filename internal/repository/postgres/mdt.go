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

type mdtRepository struct {
	BaseRepository
}

func NewMDTRepository(base BaseRepository) repository.MDTRepository {
	return &mdtRepository{base}
}

// Create persists the whole aggregate in one transaction: the case row,
// membership, patient profile with ordered medications, one specialty slot
// per required specialty, the generated invitations and the outbox event.
func (r *mdtRepository) Create(ctx context.Context, mdt *model.MDT, members []uuid.UUID, invitations []*model.Invitation, event *model.OutboxEvent) error {
	now := time.Now()
	mdt.ID = uuid.New()
	mdt.CreatedAt = now
	mdt.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mdts (id, name, status, creator_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			mdt.ID, mdt.Name, mdt.Status, mdt.CreatorID, mdt.CreatedAt, mdt.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create mdt: %w", err)
		}

		for _, userID := range members {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO mdt_members (mdt_id, user_id, created_at)
				VALUES ($1, $2, $3) ON CONFLICT (mdt_id, user_id) DO NOTHING`,
				mdt.ID, userID, now,
			); err != nil {
				return fmt.Errorf("failed to add member: %w", err)
			}
		}

		profile := mdt.PatientProfile
		profile.ID = uuid.New()
		profile.MDTID = mdt.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO patient_profiles (
				id, mdt_id, age, gender, unique_id, medical_history, case_summary
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			profile.ID, profile.MDTID, profile.Age, profile.Gender,
			profile.UniqueID, profile.MedicalHistory, profile.CaseSummary,
		); err != nil {
			return fmt.Errorf("failed to create patient profile: %w", err)
		}

		for i := range profile.Medications {
			med := &profile.Medications[i]
			med.ID = uuid.New()
			med.ProfileID = profile.ID
			med.Position = i
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO medications (id, profile_id, name, dosage, position)
				VALUES ($1, $2, $3, $4, $5)`,
				med.ID, med.ProfileID, med.Name, med.Dosage, med.Position,
			); err != nil {
				return fmt.Errorf("failed to create medication: %w", err)
			}
		}

		for _, slot := range mdt.RequiredSpecialties {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO mdt_specialties (mdt_id, specialty_id, filled)
				VALUES ($1, $2, false)
				ON CONFLICT (mdt_id, specialty_id) DO NOTHING`,
				mdt.ID, slot.SpecialtyID,
			); err != nil {
				return fmt.Errorf("failed to create specialty slot: %w", err)
			}
		}

		for _, inv := range invitations {
			inv.ID = uuid.New()
			inv.MDTID = mdt.ID
			inv.CreatedAt = now
			inv.UpdatedAt = now
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
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

func (r *mdtRepository) Get(ctx context.Context, id uuid.UUID) (*model.MDT, error) {
	var mdt model.MDT
	if err := r.db.GetContext(ctx, &mdt, `SELECT * FROM mdts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mdt: %w", err)
	}

	if err := r.db.SelectContext(ctx, &mdt.Members, `
		SELECT u.id, u.name, u.email, u.role, u.hospital,
		       u.registration_number, u.created_at, u.updated_at
		FROM users u
		JOIN mdt_members m ON m.user_id = u.id
		WHERE m.mdt_id = $1
		ORDER BY u.name`, id,
	); err != nil {
		return nil, fmt.Errorf("failed to load mdt members: %w", err)
	}

	var profile model.PatientProfile
	if err := r.db.GetContext(ctx, &profile,
		`SELECT * FROM patient_profiles WHERE mdt_id = $1`, id,
	); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load patient profile: %w", err)
		}
	} else {
		if err := r.db.SelectContext(ctx, &profile.Medications, `
			SELECT * FROM medications
			WHERE profile_id = $1
			ORDER BY position`, profile.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to load medications: %w", err)
		}
		mdt.PatientProfile = &profile
	}

	if err := r.db.SelectContext(ctx, &mdt.RequiredSpecialties, `
		SELECT ms.mdt_id, ms.specialty_id, ms.filled, s.name AS specialty_name
		FROM mdt_specialties ms
		JOIN specialties s ON s.id = ms.specialty_id
		WHERE ms.mdt_id = $1
		ORDER BY s.name`, id,
	); err != nil {
		return nil, fmt.Errorf("failed to load specialty slots: %w", err)
	}

	return &mdt, nil
}

func (r *mdtRepository) IsMember(ctx context.Context, mdtID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM mdt_members WHERE mdt_id = $1 AND user_id = $2
		)`, mdtID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *mdtRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.MDTSummary, error) {
	query := `
		SELECT t.id, t.name, t.status, t.updated_at
		FROM mdts t
		JOIN mdt_members m ON m.mdt_id = t.id
		WHERE m.user_id = $1 AND t.status = $2
		ORDER BY t.updated_at DESC
	`

	var summaries []*model.MDTSummary
	if err := r.db.SelectContext(ctx, &summaries, query, userID, model.MDTStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list mdts for user: %w", err)
	}

	for _, s := range summaries {
		var preview model.MessagePreview
		err := r.db.GetContext(ctx, &preview, `
			SELECT u.name AS author_name, msg.content, msg.created_at
			FROM messages msg
			JOIN users u ON u.id = msg.author_id
			WHERE msg.mdt_id = $1
			ORDER BY msg.created_at DESC
			LIMIT 1`, s.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to load last message: %w", err)
		}
		s.LastMessage = &preview
	}

	return summaries, nil
}

// Update patches the case name and patient profile scalars. Medications
// are not touched here.
func (r *mdtRepository) Update(ctx context.Context, mdt *model.MDT) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE mdts SET name = $1, status = $2, updated_at = $3
			WHERE id = $4`,
			mdt.Name, mdt.Status, time.Now(), mdt.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update mdt: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}

		if mdt.PatientProfile != nil {
			p := mdt.PatientProfile
			if _, err := tx.ExecContext(ctx, `
				UPDATE patient_profiles
				SET age = $1, gender = $2, medical_history = $3, case_summary = $4
				WHERE mdt_id = $5`,
				p.Age, p.Gender, p.MedicalHistory, p.CaseSummary, mdt.ID,
			); err != nil {
				return fmt.Errorf("failed to update patient profile: %w", err)
			}
		}
		return nil
	})
}
