package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careteam/mdt-api/internal/email"
	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	"github.com/careteam/mdt-api/pkg/auth"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/security"
)

const maxReferralAttempts = 5

type Service struct {
	userRepo      repository.UserRepository
	specialtyRepo repository.SpecialtyRepository
	jwtSvc        auth.JWTService
	hasher        security.PasswordHasher
	emailSvc      email.Service
	logger        zerolog.Logger
}

func NewService(
	userRepo repository.UserRepository,
	specialtyRepo repository.SpecialtyRepository,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	emailSvc email.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		userRepo:      userRepo,
		specialtyRepo: specialtyRepo,
		jwtSvc:        jwtSvc,
		hasher:        hasher,
		emailSvc:      emailSvc,
		logger:        logger,
	}
}

// Register creates a professional account. LOCAL signups are gated by a
// referral code owned by an EXTERNAL user; EXTERNAL signups are issued a
// globally unique referral code. All validation happens before any write.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	if err := security.ValidatePasswordComplexity(req.Password); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	specialties, err := s.specialtyRepo.GetByIDs(ctx, req.SpecialtyIDs)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(specialties) == 0 || len(specialties) < distinctCount(req.SpecialtyIDs) {
		return nil, apperrors.Validation("one or more specialties are unknown")
	}

	user := &model.User{
		Name:               strings.TrimSpace(req.Name),
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Role:               req.Role,
		Hospital:           req.Hospital,
		RegistrationNumber: req.RegistrationNumber,
	}

	switch req.Role {
	case model.RoleLocal:
		referrer, err := s.resolveReferrer(ctx, req.ReferralCode)
		if err != nil {
			return nil, err
		}
		user.ReferredBy = &referrer.ID
	case model.RoleExternal:
		code, err := s.generateUniqueReferralCode(ctx)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		user.ReferralCode = &code
	default:
		return nil, apperrors.Validation("role must be LOCAL or EXTERNAL")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	user.PasswordHash = hash

	specialtyIDs := make([]uuid.UUID, 0, len(specialties))
	for _, sp := range specialties {
		specialtyIDs = append(specialtyIDs, sp.ID)
		user.Specialties = append(user.Specialties, *sp)
	}

	if err := s.createUser(ctx, user, specialtyIDs); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.Conflict("email already registered")
		}
		return nil, apperrors.Internal(err)
	}

	if err := s.emailSvc.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.Warn().Err(err).Str("email", user.Email).Msg("failed to send welcome email")
	}

	return user, nil
}

// Login verifies credentials and issues an access/refresh token pair. The
// stored hash is never returned to any caller.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	return s.issueTokens(user)
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	userID, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	return s.issueTokens(user)
}

// ValidateReferralCode is the public signup-form lookup. A code is valid
// only when it belongs to an EXTERNAL user.
func (s *Service) ValidateReferralCode(ctx context.Context, code string) (*model.ReferralLookup, error) {
	referrer, err := s.userRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.ReferralLookup{Valid: false}, nil
		}
		return nil, apperrors.Internal(err)
	}
	if referrer.Role != model.RoleExternal {
		return &model.ReferralLookup{Valid: false}, nil
	}
	return &model.ReferralLookup{Valid: true, ReferrerName: &referrer.Name}, nil
}

func (s *Service) resolveReferrer(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		return nil, apperrors.InvalidReferral("referral code is required for local signup")
	}
	referrer, err := s.userRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.InvalidReferral("referral code not recognised")
		}
		return nil, apperrors.Internal(err)
	}
	if referrer.Role != model.RoleExternal {
		return nil, apperrors.InvalidReferral("referral code not recognised")
	}
	return referrer, nil
}

// createUser inserts the account, regenerating the referral code when the
// pre-checked code was claimed between the existence check and the insert.
// The unique index is the arbiter; the check is only a fast path.
func (s *Service) createUser(ctx context.Context, user *model.User, specialtyIDs []uuid.UUID) error {
	var err error
	for attempt := 0; attempt < maxReferralAttempts; attempt++ {
		err = s.userRepo.Create(ctx, user, specialtyIDs)
		if err == nil || !errors.Is(err, repository.ErrReferralCodeTaken) || user.ReferralCode == nil {
			return err
		}
		code, genErr := security.GenerateReferralCode()
		if genErr != nil {
			return genErr
		}
		user.ReferralCode = &code
	}
	return err
}

func (s *Service) generateUniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < maxReferralAttempts; i++ {
		code, err := security.GenerateReferralCode()
		if err != nil {
			return "", err
		}
		exists, err := s.userRepo.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique referral code after %d attempts", maxReferralAttempts)
}

func distinctCount(ids []uuid.UUID) int {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (s *Service) issueTokens(user *model.User) (*model.TokenResponse, error) {
	accessToken, err := s.jwtSvc.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	refreshToken, err := s.jwtSvc.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}
