package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
)

type Service struct {
	repo repository.UserRepository
}

func NewService(repo repository.UserRepository) *Service {
	return &Service{repo: repo}
}

// Get returns a user with specialties loaded.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// ListLocalPeers returns every LOCAL user except the caller, with
// specialties, sorted by name. Used when composing a new case team.
func (s *Service) ListLocalPeers(ctx context.Context, excluding uuid.UUID) ([]*model.User, error) {
	users, err := s.repo.ListLocal(ctx, excluding)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return users, nil
}
