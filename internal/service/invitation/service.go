package invitation

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careteam/mdt-api/internal/email"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/metrics"
)

// Match pairs a generated invitation with its receiver, so callers can
// notify the specialist after the surrounding transaction commits.
type Match struct {
	Invitation *model.Invitation
	Receiver   *model.User
}

type Service struct {
	repo     repository.InvitationRepository
	mdtRepo  repository.MDTRepository
	userRepo repository.UserRepository
	emailSvc email.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewService(
	repo repository.InvitationRepository,
	mdtRepo repository.MDTRepository,
	userRepo repository.UserRepository,
	emailSvc email.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		mdtRepo:  mdtRepo,
		userRepo: userRepo,
		emailSvc: emailSvc,
		metrics:  m,
		logger:   logger,
	}
}

// MatchSpecialists generates the invitation fan-out for a new case: every
// EXTERNAL user whose specialty set intersects the required specialties
// receives exactly one pending invitation, tied to the first specialty in
// common. Required specialties are evaluated in ascending name order so the
// tie-break for multi-specialty matches is deterministic.
func (s *Service) MatchSpecialists(ctx context.Context, senderID uuid.UUID, required []*model.Specialty) ([]Match, error) {
	ordered := make([]*model.Specialty, len(required))
	copy(ordered, required)
	sort.Slice(ordered, func(i, j int) bool {
		return strings.ToLower(ordered[i].Name) < strings.ToLower(ordered[j].Name)
	})

	ids := make([]uuid.UUID, 0, len(ordered))
	for _, sp := range ordered {
		ids = append(ids, sp.ID)
	}

	candidates, err := s.userRepo.ListExternalBySpecialties(ctx, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		for _, sp := range ordered {
			if !candidate.HasSpecialty(sp.ID) {
				continue
			}
			specialtyID := sp.ID
			matches = append(matches, Match{
				Invitation: &model.Invitation{
					SenderID:    senderID,
					ReceiverID:  candidate.ID,
					SpecialtyID: &specialtyID,
					Status:      model.InvitationStatusPending,
				},
				Receiver: candidate,
			})
			break
		}
	}
	return matches, nil
}

// Invite sends a direct invitation to a professional by email address.
func (s *Service) Invite(ctx context.Context, senderID, mdtID uuid.UUID, receiverEmail string) (*model.Invitation, error) {
	sender, err := s.userRepo.Get(ctx, senderID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !sender.IsLocal() {
		return nil, apperrors.Forbidden("only local providers can send invitations")
	}

	member, err := s.mdtRepo.IsMember(ctx, mdtID, senderID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !member {
		return nil, apperrors.NotFound("mdt", nil)
	}

	mdt, err := s.mdtRepo.Get(ctx, mdtID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("mdt", err)
		}
		return nil, apperrors.Internal(err)
	}

	receiver, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(receiverEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user", err)
		}
		return nil, apperrors.Internal(err)
	}

	pending, err := s.repo.HasPending(ctx, mdtID, receiver.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if pending {
		return nil, apperrors.Conflict("a pending invitation for this user already exists")
	}

	inv := &model.Invitation{
		MDTID:      mdtID,
		SenderID:   senderID,
		ReceiverID: receiver.ID,
		Status:     model.InvitationStatusPending,
	}

	event, err := model.NewOutboxEvent(model.EventInvitationCreated, inv)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.repo.Create(ctx, inv, event); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.metrics.InvitationsCreated.WithLabelValues("direct").Inc()

	if err := s.emailSvc.SendInvitation(ctx, receiver.Email, mdt.Name, ""); err != nil {
		s.logger.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to send invitation email")
	}

	return inv, nil
}

// Respond resolves a pending invitation. Acceptance claims the specialty
// slot, records team membership and cancels competing pending invitations
// for the same slot, all in one transaction; a concurrent acceptance that
// loses the slot race gets a conflict, never a silent overwrite.
func (s *Service) Respond(ctx context.Context, invitationID, responderID uuid.UUID, action string) (*model.Invitation, error) {
	inv, err := s.getInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	if inv.ReceiverID != responderID {
		return nil, apperrors.Forbidden("only the invited professional can respond")
	}
	if !inv.IsPending() {
		return nil, apperrors.Conflict("invitation has already been responded to")
	}

	switch action {
	case model.InvitationStatusAccepted:
		event, err := model.NewOutboxEvent(model.EventInvitationAccepted, inv)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if err := s.repo.Accept(ctx, inv, event); err != nil {
			if errors.Is(err, repository.ErrPositionFilled) {
				return nil, apperrors.Conflict("position already filled")
			}
			if errors.Is(err, repository.ErrAlreadyResolved) {
				return nil, apperrors.Conflict("invitation has already been responded to")
			}
			return nil, apperrors.Internal(err)
		}
		inv.Status = model.InvitationStatusAccepted
	case model.InvitationStatusDeclined:
		event, err := model.NewOutboxEvent(model.EventInvitationDeclined, inv)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if err := s.repo.UpdateStatus(ctx, inv.ID, model.InvitationStatusDeclined, event); err != nil {
			if errors.Is(err, repository.ErrAlreadyResolved) {
				return nil, apperrors.Conflict("invitation has already been responded to")
			}
			return nil, apperrors.Internal(err)
		}
		inv.Status = model.InvitationStatusDeclined
	default:
		return nil, apperrors.Validation("action must be ACCEPTED or DECLINED")
	}

	s.metrics.InvitationsResolved.WithLabelValues(inv.Status).Inc()
	s.notifySender(ctx, inv)

	return inv, nil
}

// Cancel withdraws a pending invitation. Only the original sender may
// cancel, and only while the invitation is still pending.
func (s *Service) Cancel(ctx context.Context, invitationID, requesterID uuid.UUID) error {
	inv, err := s.getInvitation(ctx, invitationID)
	if err != nil {
		return err
	}

	if inv.SenderID != requesterID {
		return apperrors.Forbidden("only the sender can cancel an invitation")
	}
	if !inv.IsPending() {
		return apperrors.Conflict("invitation has already been resolved")
	}

	event, err := model.NewOutboxEvent(model.EventInvitationCancelled, inv)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.repo.UpdateStatus(ctx, inv.ID, model.InvitationStatusCancelled, event); err != nil {
		if errors.Is(err, repository.ErrAlreadyResolved) {
			return apperrors.Conflict("invitation has already been resolved")
		}
		return apperrors.Internal(err)
	}

	s.metrics.InvitationsResolved.WithLabelValues(model.InvitationStatusCancelled).Inc()
	return nil
}

// ListPending returns the open invitations addressed to the given user.
func (s *Service) ListPending(ctx context.Context, receiverID uuid.UUID) ([]*model.Invitation, error) {
	invitations, err := s.repo.ListPendingForReceiver(ctx, receiverID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return invitations, nil
}

// Get returns one invitation with the embedded case and patient summary.
// Visibility is one predicate: case members, the sender and the receiver;
// everyone else gets not-found, indistinguishable from an absent record.
func (s *Service) Get(ctx context.Context, invitationID, requesterID uuid.UUID) (*model.InvitationDetail, error) {
	inv, err := s.getInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	visible, err := s.canView(ctx, inv, requesterID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !visible {
		return nil, apperrors.NotFound("invitation", nil)
	}

	mdt, err := s.mdtRepo.Get(ctx, inv.MDTID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.InvitationDetail{Invitation: *inv, MDT: mdt}, nil
}

func (s *Service) canView(ctx context.Context, inv *model.Invitation, requesterID uuid.UUID) (bool, error) {
	if inv.SenderID == requesterID || inv.ReceiverID == requesterID {
		return true, nil
	}
	return s.mdtRepo.IsMember(ctx, inv.MDTID, requesterID)
}

func (s *Service) getInvitation(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("invitation", err)
		}
		return nil, apperrors.Internal(err)
	}
	return inv, nil
}

func (s *Service) notifySender(ctx context.Context, inv *model.Invitation) {
	sender, err := s.userRepo.Get(ctx, inv.SenderID)
	if err != nil {
		s.logger.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to load sender for notification")
		return
	}
	if err := s.emailSvc.SendInvitationResolved(ctx, sender.Email, inv.MDTName, inv.ReceiverName, strings.ToLower(inv.Status)); err != nil {
		s.logger.Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("failed to send resolution email")
	}
}
