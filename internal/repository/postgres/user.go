package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User, specialtyIDs []uuid.UUID) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, hospital,
			registration_number, referral_code, referred_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			user.ID,
			user.Name,
			user.Email,
			user.PasswordHash,
			user.Role,
			user.Hospital,
			user.RegistrationNumber,
			user.ReferralCode,
			user.ReferredBy,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				// The table carries two unique indexes; only the email one
				// means the caller did something wrong.
				if pqErr.Constraint == "users_referral_code_key" {
					return repository.ErrReferralCodeTaken
				}
				return repository.ErrDuplicateEmail
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		for _, sid := range specialtyIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_specialties (user_id, specialty_id, created_at)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				user.ID, sid, time.Now(),
			); err != nil {
				return fmt.Errorf("failed to link specialty: %w", err)
			}
		}
		return nil
	})
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.loadSpecialties(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT * FROM users WHERE email = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := r.loadSpecialties(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	query := `SELECT * FROM users WHERE referral_code = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by referral code: %w", err)
	}
	return &user, nil
}

func (r *userRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`, code)
	if err != nil {
		return false, fmt.Errorf("failed to check referral code: %w", err)
	}
	return exists, nil
}

func (r *userRepository) ListLocal(ctx context.Context, excluding uuid.UUID) ([]*model.User, error) {
	query := `
		SELECT * FROM users
		WHERE role = $1 AND id <> $2
		ORDER BY name
	`

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, model.RoleLocal, excluding); err != nil {
		return nil, fmt.Errorf("failed to list local users: %w", err)
	}

	for _, u := range users {
		if err := r.loadSpecialties(ctx, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *userRepository) ListExternalBySpecialties(ctx context.Context, specialtyIDs []uuid.UUID) ([]*model.User, error) {
	query := `
		SELECT DISTINCT u.* FROM users u
		JOIN user_specialties us ON us.user_id = u.id
		WHERE u.role = $1 AND us.specialty_id = ANY($2)
		ORDER BY u.name
	`

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, model.RoleExternal, pq.Array(specialtyIDs)); err != nil {
		return nil, fmt.Errorf("failed to list external users by specialty: %w", err)
	}

	for _, u := range users {
		if err := r.loadSpecialties(ctx, u); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *userRepository) loadSpecialties(ctx context.Context, user *model.User) error {
	query := `
		SELECT s.id, s.name, s.created_at, s.updated_at
		FROM specialties s
		JOIN user_specialties us ON us.specialty_id = s.id
		WHERE us.user_id = $1
		ORDER BY s.name
	`
	if err := r.db.SelectContext(ctx, &user.Specialties, query, user.ID); err != nil {
		return fmt.Errorf("failed to load user specialties: %w", err)
	}
	return nil
}
