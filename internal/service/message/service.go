package message

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/metrics"
)

type Service struct {
	repo     repository.MessageRepository
	mdtRepo  repository.MDTRepository
	userRepo repository.UserRepository
	metrics  *metrics.Metrics
}

func NewService(
	repo repository.MessageRepository,
	mdtRepo repository.MDTRepository,
	userRepo repository.UserRepository,
	m *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		mdtRepo:  mdtRepo,
		userRepo: userRepo,
		metrics:  m,
	}
}

// Post appends a message to the case discussion. Content is trimmed before
// the length check, must not be empty and may not exceed 2000 characters.
// Messages are immutable once stored.
func (s *Service) Post(ctx context.Context, mdtID, authorID uuid.UUID, content string) (*model.Message, error) {
	member, err := s.mdtRepo.IsMember(ctx, mdtID, authorID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !member {
		return nil, apperrors.Forbidden("only case members can post messages")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("message content must not be empty")
	}
	if utf8.RuneCountInString(content) > model.MaxMessageLen {
		return nil, apperrors.Validation("message content exceeds 2000 characters")
	}

	author, err := s.userRepo.Get(ctx, authorID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	msg := &model.Message{
		MDTID:      mdtID,
		AuthorID:   authorID,
		AuthorName: author.Name,
		Content:    content,
	}

	event, err := model.NewOutboxEvent(model.EventMessagePosted, msg)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.repo.Create(ctx, msg, event); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.metrics.MessagesPosted.Inc()
	return msg, nil
}

// List returns the case discussion in chronological order. Only members
// may read it.
func (s *Service) List(ctx context.Context, mdtID, requesterID uuid.UUID) ([]*model.Message, error) {
	member, err := s.mdtRepo.IsMember(ctx, mdtID, requesterID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !member {
		return nil, apperrors.Forbidden("only case members can read messages")
	}

	messages, err := s.repo.ListForMDT(ctx, mdtID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return messages, nil
}
