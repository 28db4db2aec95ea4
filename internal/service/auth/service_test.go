package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	"github.com/careteam/mdt-api/pkg/auth"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/security"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User

	// codeTakenOnce makes the next insert of a referral-carrying user fail
	// as if another signup claimed the code between check and insert.
	codeTakenOnce bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User, specialtyIDs []uuid.UUID) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if f.codeTakenOnce && user.ReferralCode != nil {
		f.codeTakenOnce = false
		return repository.ErrReferralCodeTaken
	}
	user.ID = uuid.New()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByReferralCode(_ context.Context, code string) (*model.User, error) {
	for _, u := range f.users {
		if u.ReferralCode != nil && *u.ReferralCode == code {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := f.GetByReferralCode(ctx, code)
	return err == nil, nil
}

func (f *fakeUserRepo) ListLocal(_ context.Context, excluding uuid.UUID) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if u.Role == model.RoleLocal && u.ID != excluding {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) ListExternalBySpecialties(_ context.Context, specialtyIDs []uuid.UUID) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if u.Role != model.RoleExternal {
			continue
		}
		for _, sid := range specialtyIDs {
			if u.HasSpecialty(sid) {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

type fakeSpecialtyRepo struct {
	specialties map[uuid.UUID]*model.Specialty
}

func newFakeSpecialtyRepo(names ...string) *fakeSpecialtyRepo {
	f := &fakeSpecialtyRepo{specialties: make(map[uuid.UUID]*model.Specialty)}
	for _, name := range names {
		sp := &model.Specialty{Name: name}
		sp.ID = uuid.New()
		f.specialties[sp.ID] = sp
	}
	return f
}

func (f *fakeSpecialtyRepo) List(_ context.Context) ([]*model.Specialty, error) {
	var out []*model.Specialty
	for _, sp := range f.specialties {
		out = append(out, sp)
	}
	return out, nil
}

func (f *fakeSpecialtyRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*model.Specialty, error) {
	var out []*model.Specialty
	for _, id := range ids {
		if sp, ok := f.specialties[id]; ok {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (f *fakeSpecialtyRepo) Seed(_ context.Context, _ []string) error { return nil }

func (f *fakeSpecialtyRepo) anyID() uuid.UUID {
	for id := range f.specialties {
		return id
	}
	return uuid.Nil
}

type fakeEmail struct {
	welcomes []string
}

func (f *fakeEmail) SendWelcome(_ context.Context, to, _ string) error {
	f.welcomes = append(f.welcomes, to)
	return nil
}

func (f *fakeEmail) SendInvitation(_ context.Context, _, _, _ string) error { return nil }

func (f *fakeEmail) SendInvitationResolved(_ context.Context, _, _, _, _ string) error { return nil }

func newTestService(t *testing.T) (*Service, *fakeUserRepo, *fakeSpecialtyRepo, *fakeEmail) {
	t.Helper()
	users := newFakeUserRepo()
	specialties := newFakeSpecialtyRepo("Cardiology", "Neurology")
	emails := &fakeEmail{}
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:             "test-secret",
		RefreshSecret:      "test-refresh",
		ExpiryHours:        1,
		RefreshExpiryHours: 24,
	})
	svc := NewService(users, specialties, jwtSvc,
		security.NewBcryptHasher(bcrypt.MinCost), emails, zerolog.Nop())
	return svc, users, specialties, emails
}

func registerExternal(t *testing.T, svc *Service, specialties *fakeSpecialtyRepo, email string) *model.User {
	t.Helper()
	user, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Remote",
		Email:        email,
		Password:     "Passw0rd",
		Role:         model.RoleExternal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
	})
	require.NoError(t, err)
	return user
}

func TestRegisterExternalIssuesReferralCode(t *testing.T) {
	svc, _, specialties, emails := newTestService(t)

	user := registerExternal(t, svc, specialties, "remote@example.com")

	require.NotNil(t, user.ReferralCode)
	assert.Len(t, *user.ReferralCode, security.ReferralCodeLen)
	assert.Nil(t, user.ReferredBy)
	assert.Equal(t, []string{"remote@example.com"}, emails.welcomes)
}

func TestRegisterRetriesTakenReferralCode(t *testing.T) {
	svc, users, specialties, _ := newTestService(t)
	users.codeTakenOnce = true

	user := registerExternal(t, svc, specialties, "remote@example.com")

	require.NotNil(t, user.ReferralCode)
	assert.Len(t, *user.ReferralCode, security.ReferralCodeLen)
	assert.False(t, users.codeTakenOnce)
}

func TestRegisterLocalRequiresReferralCode(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Local",
		Email:        "local@example.com",
		Password:     "Passw0rd",
		Role:         model.RoleLocal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidReferral))
}

func TestRegisterLocalRejectsUnknownCode(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Local",
		Email:        "local@example.com",
		Password:     "Passw0rd",
		Role:         model.RoleLocal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
		ReferralCode: "NOPE1234",
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidReferral))
}

func TestRegisterLocalLinksReferrer(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)
	referrer := registerExternal(t, svc, specialties, "remote@example.com")

	user, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Local",
		Email:        "local@example.com",
		Password:     "Passw0rd",
		Role:         model.RoleLocal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
		ReferralCode: *referrer.ReferralCode,
	})

	require.NoError(t, err)
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, referrer.ID, *user.ReferredBy)
	assert.Nil(t, user.ReferralCode)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)
	registerExternal(t, svc, specialties, "remote@example.com")

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Clone",
		Email:        "remote@example.com",
		Password:     "Passw0rd",
		Role:         model.RoleExternal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Weak",
		Email:        "weak@example.com",
		Password:     "password",
		Role:         model.RoleExternal,
		SpecialtyIDs: []uuid.UUID{specialties.anyID()},
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestRegisterRejectsUnknownSpecialty(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), &model.RegisterRequest{
		Name:         "Dr Lost",
		Email:        "lost@example.com",
		Password:     "Passw0rd",
		Role:         model.RoleExternal,
		SpecialtyIDs: []uuid.UUID{uuid.New()},
	})

	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestLogin(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)
	registerExternal(t, svc, specialties, "remote@example.com")

	tokens, err := svc.Login(context.Background(), "remote@example.com", "Passw0rd")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = svc.Login(context.Background(), "remote@example.com", "WrongPass1")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.Login(context.Background(), "nobody@example.com", "Passw0rd")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestRefresh(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)
	registerExternal(t, svc, specialties, "remote@example.com")

	tokens, err := svc.Login(context.Background(), "remote@example.com", "Passw0rd")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.Refresh(context.Background(), "garbage")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestValidateReferralCode(t *testing.T) {
	svc, _, specialties, _ := newTestService(t)
	referrer := registerExternal(t, svc, specialties, "remote@example.com")

	lookup, err := svc.ValidateReferralCode(context.Background(), *referrer.ReferralCode)
	require.NoError(t, err)
	assert.True(t, lookup.Valid)
	require.NotNil(t, lookup.ReferrerName)
	assert.Equal(t, "Dr Remote", *lookup.ReferrerName)

	lookup, err = svc.ValidateReferralCode(context.Background(), "NOPE1234")
	require.NoError(t, err)
	assert.False(t, lookup.Valid)
	assert.Nil(t, lookup.ReferrerName)
}
