package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
)

type specialtyRepository struct {
	BaseRepository
}

func NewSpecialtyRepository(base BaseRepository) repository.SpecialtyRepository {
	return &specialtyRepository{base}
}

func (r *specialtyRepository) List(ctx context.Context) ([]*model.Specialty, error) {
	query := `SELECT * FROM specialties ORDER BY name`

	var specialties []*model.Specialty
	if err := r.db.SelectContext(ctx, &specialties, query); err != nil {
		return nil, fmt.Errorf("failed to list specialties: %w", err)
	}
	return specialties, nil
}

func (r *specialtyRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Specialty, error) {
	query := `SELECT * FROM specialties WHERE id = ANY($1) ORDER BY name`

	var specialties []*model.Specialty
	if err := r.db.SelectContext(ctx, &specialties, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get specialties: %w", err)
	}
	return specialties, nil
}

// Seed upserts the catalog keyed on name; rerunning is a no-op.
func (r *specialtyRepository) Seed(ctx context.Context, names []string) error {
	query := `
		INSERT INTO specialties (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO NOTHING
	`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now()
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, query, uuid.New(), name, now); err != nil {
				return fmt.Errorf("failed to seed specialty %q: %w", name, err)
			}
		}
		return nil
	})
}
