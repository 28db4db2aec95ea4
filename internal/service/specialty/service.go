package specialty

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
)

const (
	catalogCacheKey = "specialty_catalog"
)

// Service serves the fixed specialty catalog. The list is static reference
// data, so reads go through an in-memory cache.
type Service struct {
	repo  repository.SpecialtyRepository
	cache *gocache.Cache
}

func NewService(repo repository.SpecialtyRepository, cache *gocache.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Seed upserts the fixed catalog keyed on name. Safe to run on every start.
func (s *Service) Seed(ctx context.Context) error {
	if err := s.repo.Seed(ctx, model.SeedSpecialties); err != nil {
		return fmt.Errorf("failed to seed specialty catalog: %w", err)
	}
	s.cache.Delete(catalogCacheKey)
	return nil
}

func (s *Service) List(ctx context.Context) ([]*model.Specialty, error) {
	if cached, ok := s.cache.Get(catalogCacheKey); ok {
		return cached.([]*model.Specialty), nil
	}

	specialties, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialties: %w", err)
	}

	s.cache.Set(catalogCacheKey, specialties, gocache.DefaultExpiration)
	return specialties, nil
}

// GetByIDs resolves the given ids, erroring if any id is unknown.
func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Specialty, error) {
	specialties, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get specialties: %w", err)
	}
	if len(specialties) != len(dedupe(ids)) {
		return nil, fmt.Errorf("unknown specialty id in %v", ids)
	}
	return specialties, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
