package mdt

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careteam/mdt-api/internal/email"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	"github.com/careteam/mdt-api/internal/service/invitation"
	"github.com/careteam/mdt-api/internal/service/specialty"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/metrics"
)

type Service struct {
	repo         repository.MDTRepository
	userRepo     repository.UserRepository
	specialtySvc *specialty.Service
	inviteSvc    *invitation.Service
	emailSvc     email.Service
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewService(
	repo repository.MDTRepository,
	userRepo repository.UserRepository,
	specialtySvc *specialty.Service,
	inviteSvc *invitation.Service,
	emailSvc email.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		userRepo:     userRepo,
		specialtySvc: specialtySvc,
		inviteSvc:    inviteSvc,
		emailSvc:     emailSvc,
		metrics:      m,
		logger:       logger,
	}
}

// Create opens a new case. The creator must be a LOCAL provider. The case
// row, initial team, patient profile, required specialty slots and the
// matched specialist invitations are written in a single transaction, so a
// case is never visible half-built.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, req *model.CreateMDTRequest) (*model.MDT, error) {
	creator, err := s.userRepo.Get(ctx, creatorID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !creator.IsLocal() {
		return nil, apperrors.Forbidden("only local providers can open cases")
	}

	required, err := s.specialtySvc.GetByIDs(ctx, req.RequiredSpecialtyIDs)
	if err != nil {
		return nil, apperrors.Validation("one or more required specialties are unknown")
	}

	members := s.resolveMembers(creatorID, req.LocalDoctorIDs)

	mdt := &model.MDT{
		Name:      strings.TrimSpace(req.Name),
		Status:    model.MDTStatusActive,
		CreatorID: creatorID,
		PatientProfile: &model.PatientProfile{
			Age:            req.Patient.Age,
			Gender:         req.Patient.Gender,
			UniqueID:       req.Patient.UniqueID,
			MedicalHistory: req.Patient.MedicalHistory,
			CaseSummary:    req.Patient.CaseSummary,
		},
	}
	for _, med := range req.Patient.Medications {
		mdt.PatientProfile.Medications = append(mdt.PatientProfile.Medications, model.Medication{
			Name:   strings.TrimSpace(med.Name),
			Dosage: strings.TrimSpace(med.Dosage),
		})
	}
	for _, sp := range required {
		mdt.RequiredSpecialties = append(mdt.RequiredSpecialties, model.MDTSpecialty{
			SpecialtyID:   sp.ID,
			SpecialtyName: sp.Name,
		})
	}

	matches, err := s.inviteSvc.MatchSpecialists(ctx, creatorID, required)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	invitations := make([]*model.Invitation, 0, len(matches))
	for _, m := range matches {
		invitations = append(invitations, m.Invitation)
	}

	event, err := model.NewOutboxEvent(model.EventMDTCreated, mdt)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.repo.Create(ctx, mdt, members, invitations, event); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.metrics.InvitationsCreated.WithLabelValues("matched").Add(float64(len(invitations)))

	for _, m := range matches {
		if err := s.emailSvc.SendInvitation(ctx, m.Receiver.Email, mdt.Name, s.specialtyName(required, m.Invitation.SpecialtyID)); err != nil {
			s.logger.Warn().Err(err).Str("mdt_id", mdt.ID.String()).Str("receiver", m.Receiver.Email).
				Msg("failed to send invitation email")
		}
	}

	created, err := s.Get(ctx, mdt.ID, creatorID)
	if err != nil {
		return nil, err
	}
	created.Invitations = invitations
	return created, nil
}

// Get returns the full case aggregate. Non-members get not-found rather
// than forbidden, so case existence is never leaked.
func (s *Service) Get(ctx context.Context, mdtID, requesterID uuid.UUID) (*model.MDT, error) {
	member, err := s.repo.IsMember(ctx, mdtID, requesterID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !member {
		return nil, apperrors.NotFound("mdt", nil)
	}

	mdt, err := s.repo.Get(ctx, mdtID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("mdt", err)
		}
		return nil, apperrors.Internal(err)
	}
	return mdt, nil
}

// Update patches the case name, status and patient profile scalars. Only
// the creator may update; other members get forbidden, non-members get
// not-found.
func (s *Service) Update(ctx context.Context, mdtID, requesterID uuid.UUID, req *model.UpdateMDTRequest) (*model.MDT, error) {
	member, err := s.repo.IsMember(ctx, mdtID, requesterID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !member {
		return nil, apperrors.NotFound("mdt", nil)
	}

	mdt, err := s.repo.Get(ctx, mdtID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("mdt", err)
		}
		return nil, apperrors.Internal(err)
	}
	if mdt.CreatorID != requesterID {
		return nil, apperrors.Forbidden("only the case creator can update the case")
	}

	if req.Name != nil {
		mdt.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		mdt.Status = *req.Status
	}
	if req.Patient != nil && mdt.PatientProfile != nil {
		p := mdt.PatientProfile
		if req.Patient.Age != nil {
			p.Age = *req.Patient.Age
		}
		if req.Patient.Gender != nil {
			p.Gender = *req.Patient.Gender
		}
		if req.Patient.MedicalHistory != nil {
			p.MedicalHistory = *req.Patient.MedicalHistory
		}
		if req.Patient.CaseSummary != nil {
			p.CaseSummary = *req.Patient.CaseSummary
		}
	}

	if err := s.repo.Update(ctx, mdt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("mdt", err)
		}
		return nil, apperrors.Internal(err)
	}

	return s.Get(ctx, mdtID, requesterID)
}

// ListForUser returns the active cases the user belongs to, most recently
// touched first, each with its latest message preview.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.MDTSummary, error) {
	summaries, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return summaries, nil
}

func (s *Service) resolveMembers(creatorID uuid.UUID, extra []uuid.UUID) []uuid.UUID {
	members := []uuid.UUID{creatorID}
	seen := map[uuid.UUID]struct{}{creatorID: {}}
	for _, id := range extra {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}

func (s *Service) specialtyName(specialties []*model.Specialty, id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	for _, sp := range specialties {
		if sp.ID == *id {
			return sp.Name
		}
	}
	return ""
}
