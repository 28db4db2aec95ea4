package invitation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careteam/mdt-api/internal/model"
	"github.com/careteam/mdt-api/internal/repository"
	apperrors "github.com/careteam/mdt-api/pkg/errors"
	"github.com/careteam/mdt-api/pkg/metrics"
)

// Registered once; promauto panics on duplicate collector registration.
var testMetrics = metrics.NewMetrics("invitation_test")

type store struct {
	users       map[uuid.UUID]*model.User
	mdts        map[uuid.UUID]*model.MDT
	members     map[uuid.UUID]map[uuid.UUID]bool
	slots       map[uuid.UUID]map[uuid.UUID]bool
	invitations map[uuid.UUID]*model.Invitation
}

func newStore() *store {
	return &store{
		users:       make(map[uuid.UUID]*model.User),
		mdts:        make(map[uuid.UUID]*model.MDT),
		members:     make(map[uuid.UUID]map[uuid.UUID]bool),
		slots:       make(map[uuid.UUID]map[uuid.UUID]bool),
		invitations: make(map[uuid.UUID]*model.Invitation),
	}
}

func (s *store) addUser(name, email, role string, specialties ...model.Specialty) *model.User {
	u := &model.User{Name: name, Email: email, Role: role, Specialties: specialties}
	u.ID = uuid.New()
	s.users[u.ID] = u
	return u
}

func (s *store) addMDT(name string, creator *model.User, required ...model.Specialty) *model.MDT {
	m := &model.MDT{Name: name, Status: model.MDTStatusActive, CreatorID: creator.ID}
	m.ID = uuid.New()
	s.mdts[m.ID] = m
	s.members[m.ID] = map[uuid.UUID]bool{creator.ID: true}
	s.slots[m.ID] = make(map[uuid.UUID]bool)
	for _, sp := range required {
		s.slots[m.ID][sp.ID] = false
	}
	return m
}

func (s *store) addInvitation(mdt *model.MDT, sender, receiver *model.User, specialtyID *uuid.UUID, status string) *model.Invitation {
	inv := &model.Invitation{
		MDTID:       mdt.ID,
		SenderID:    sender.ID,
		ReceiverID:  receiver.ID,
		SpecialtyID: specialtyID,
		Status:      status,
	}
	inv.ID = uuid.New()
	s.invitations[inv.ID] = inv
	return inv
}

type fakeUserRepo struct{ s *store }

func (f *fakeUserRepo) Create(context.Context, *model.User, []uuid.UUID) error { return nil }

func (f *fakeUserRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByReferralCode(context.Context, string) (*model.User, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) ReferralCodeExists(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeUserRepo) ListLocal(context.Context, uuid.UUID) ([]*model.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) ListExternalBySpecialties(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.s.users {
		if u.Role != model.RoleExternal {
			continue
		}
		for _, id := range ids {
			if u.HasSpecialty(id) {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

type fakeMDTRepo struct{ s *store }

func (f *fakeMDTRepo) Create(_ context.Context, mdt *model.MDT, members []uuid.UUID, invitations []*model.Invitation, _ *model.OutboxEvent) error {
	mdt.ID = uuid.New()
	f.s.mdts[mdt.ID] = mdt
	f.s.members[mdt.ID] = make(map[uuid.UUID]bool)
	for _, id := range members {
		f.s.members[mdt.ID][id] = true
	}
	f.s.slots[mdt.ID] = make(map[uuid.UUID]bool)
	for _, slot := range mdt.RequiredSpecialties {
		f.s.slots[mdt.ID][slot.SpecialtyID] = false
	}
	for _, inv := range invitations {
		inv.ID = uuid.New()
		inv.MDTID = mdt.ID
		f.s.invitations[inv.ID] = inv
	}
	return nil
}

func (f *fakeMDTRepo) Get(_ context.Context, id uuid.UUID) (*model.MDT, error) {
	m, ok := f.s.mdts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeMDTRepo) IsMember(_ context.Context, mdtID, userID uuid.UUID) (bool, error) {
	return f.s.members[mdtID][userID], nil
}

func (f *fakeMDTRepo) ListForUser(context.Context, uuid.UUID) ([]*model.MDTSummary, error) {
	return nil, nil
}

func (f *fakeMDTRepo) Update(_ context.Context, mdt *model.MDT) error {
	if _, ok := f.s.mdts[mdt.ID]; !ok {
		return repository.ErrNotFound
	}
	f.s.mdts[mdt.ID] = mdt
	return nil
}

type fakeInvitationRepo struct {
	s *store

	// staleGet, when set, is served for its id instead of the stored row,
	// standing in for a read taken before a concurrent writer committed.
	staleGet *model.Invitation
}

func (f *fakeInvitationRepo) Create(_ context.Context, inv *model.Invitation, _ *model.OutboxEvent) error {
	inv.ID = uuid.New()
	f.s.invitations[inv.ID] = inv
	return nil
}

func (f *fakeInvitationRepo) Get(_ context.Context, id uuid.UUID) (*model.Invitation, error) {
	if f.staleGet != nil && f.staleGet.ID == id {
		copied := *f.staleGet
		return &copied, nil
	}
	inv, ok := f.s.invitations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeInvitationRepo) HasPending(_ context.Context, mdtID, receiverID uuid.UUID) (bool, error) {
	for _, inv := range f.s.invitations {
		if inv.MDTID == mdtID && inv.ReceiverID == receiverID && inv.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvitationRepo) ListPendingForReceiver(_ context.Context, receiverID uuid.UUID) ([]*model.Invitation, error) {
	var out []*model.Invitation
	for _, inv := range f.s.invitations {
		if inv.ReceiverID == receiverID && inv.IsPending() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvitationRepo) Accept(_ context.Context, inv *model.Invitation, _ *model.OutboxEvent) error {
	stored, ok := f.s.invitations[inv.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if inv.SpecialtyID != nil && f.s.slots[inv.MDTID][*inv.SpecialtyID] {
		return repository.ErrPositionFilled
	}
	if !stored.IsPending() {
		return repository.ErrAlreadyResolved
	}
	if inv.SpecialtyID != nil {
		f.s.slots[inv.MDTID][*inv.SpecialtyID] = true
	}
	stored.Status = model.InvitationStatusAccepted
	f.s.members[inv.MDTID][inv.ReceiverID] = true

	if inv.SpecialtyID != nil {
		for _, other := range f.s.invitations {
			if other.ID != inv.ID && other.MDTID == inv.MDTID && other.IsPending() &&
				other.SpecialtyID != nil && *other.SpecialtyID == *inv.SpecialtyID {
				other.Status = model.InvitationStatusCancelled
			}
		}
	}
	return nil
}

func (f *fakeInvitationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, _ *model.OutboxEvent) error {
	inv, ok := f.s.invitations[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !inv.IsPending() {
		return repository.ErrAlreadyResolved
	}
	inv.Status = status
	return nil
}

type fakeEmail struct {
	invitations []string
	resolutions []string
}

func (f *fakeEmail) SendWelcome(context.Context, string, string) error { return nil }

func (f *fakeEmail) SendInvitation(_ context.Context, to, _, _ string) error {
	f.invitations = append(f.invitations, to)
	return nil
}

func (f *fakeEmail) SendInvitationResolved(_ context.Context, to, _, _, _ string) error {
	f.resolutions = append(f.resolutions, to)
	return nil
}

func specialty(name string) model.Specialty {
	sp := model.Specialty{Name: name}
	sp.ID = uuid.New()
	return sp
}

func newTestService(s *store) (*Service, *fakeEmail) {
	emails := &fakeEmail{}
	svc := NewService(
		&fakeInvitationRepo{s: s},
		&fakeMDTRepo{s},
		&fakeUserRepo{s},
		emails,
		testMetrics,
		zerolog.Nop(),
	)
	return svc, emails
}

func TestMatchSpecialistsOneInvitationPerUser(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	neurology := specialty("Neurology")

	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	// Holds both required specialties but must get exactly one invitation,
	// bound to the alphabetically first match.
	both := s.addUser("Dr Both", "both@example.com", model.RoleExternal, neurology, cardiology)
	neuroOnly := s.addUser("Dr Neuro", "neuro@example.com", model.RoleExternal, neurology)
	s.addUser("Dr Other", "other@example.com", model.RoleExternal, specialty("Urology"))
	s.addUser("Dr Peer", "peer@example.com", model.RoleLocal, cardiology)

	svc, _ := newTestService(s)

	matches, err := svc.MatchSpecialists(context.Background(), sender.ID,
		[]*model.Specialty{&neurology, &cardiology})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	bySender := make(map[uuid.UUID]*model.Invitation)
	for _, m := range matches {
		assert.Equal(t, model.InvitationStatusPending, m.Invitation.Status)
		assert.Equal(t, sender.ID, m.Invitation.SenderID)
		bySender[m.Receiver.ID] = m.Invitation
	}

	require.Contains(t, bySender, both.ID)
	require.Contains(t, bySender, neuroOnly.ID)
	assert.Equal(t, cardiology.ID, *bySender[both.ID].SpecialtyID)
	assert.Equal(t, neurology.ID, *bySender[neuroOnly.ID].SpecialtyID)
}

func TestInvite(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)

	svc, emails := newTestService(s)

	inv, err := svc.Invite(context.Background(), sender.ID, mdt.ID, "remote@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusPending, inv.Status)
	assert.Equal(t, receiver.ID, inv.ReceiverID)
	assert.Equal(t, []string{"remote@example.com"}, emails.invitations)

	// A second invitation while one is pending is a conflict.
	_, err = svc.Invite(context.Background(), sender.ID, mdt.ID, "remote@example.com")
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	// Unknown address.
	_, err = svc.Invite(context.Background(), sender.ID, mdt.ID, "nobody@example.com")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestInviteSenderMustBeLocalMember(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	creator := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	outsider := s.addUser("Dr Outside", "outside@example.com", model.RoleLocal)
	external := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", creator, cardiology)
	s.members[mdt.ID][external.ID] = true

	svc, _ := newTestService(s)

	// Non-member local gets not-found, never a membership hint.
	_, err := svc.Invite(context.Background(), outsider.ID, mdt.ID, "remote@example.com")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	// External members cannot send invitations.
	_, err = svc.Invite(context.Background(), external.ID, mdt.ID, "remote@example.com")
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestRespondAccept(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	rival := s.addUser("Dr Rival", "rival@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)
	competing := s.addInvitation(mdt, sender, rival, &cardiology.ID, model.InvitationStatusPending)

	svc, emails := newTestService(s)

	resolved, err := svc.Respond(context.Background(), inv.ID, receiver.ID, model.InvitationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusAccepted, resolved.Status)

	// Acceptance fills the slot, joins the team and cancels the rival.
	assert.True(t, s.slots[mdt.ID][cardiology.ID])
	assert.True(t, s.members[mdt.ID][receiver.ID])
	assert.Equal(t, model.InvitationStatusCancelled, s.invitations[competing.ID].Status)
	assert.Equal(t, []string{"local@example.com"}, emails.resolutions)
}

func TestRespondDecline(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)

	svc, _ := newTestService(s)

	resolved, err := svc.Respond(context.Background(), inv.ID, receiver.ID, model.InvitationStatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusDeclined, resolved.Status)

	// Declining never fills the slot or joins the team.
	assert.False(t, s.slots[mdt.ID][cardiology.ID])
	assert.False(t, s.members[mdt.ID][receiver.ID])
}

func TestRespondGuards(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	stranger := s.addUser("Dr Stranger", "stranger@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)

	svc, _ := newTestService(s)

	_, err := svc.Respond(context.Background(), uuid.New(), receiver.ID, model.InvitationStatusAccepted)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.Respond(context.Background(), inv.ID, stranger.ID, model.InvitationStatusAccepted)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.Respond(context.Background(), inv.ID, receiver.ID, "MAYBE")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	// Slot already taken by a parallel acceptance.
	s.slots[mdt.ID][cardiology.ID] = true
	_, err = svc.Respond(context.Background(), inv.ID, receiver.ID, model.InvitationStatusAccepted)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	// Terminal invitations cannot be responded to again.
	s.invitations[inv.ID].Status = model.InvitationStatusDeclined
	_, err = svc.Respond(context.Background(), inv.ID, receiver.ID, model.InvitationStatusAccepted)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestRespondCannotOverwriteCommittedAcceptance(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)

	// The responder read the invitation while it was still pending; a
	// concurrent acceptance then committed slot, membership and status.
	repo := &fakeInvitationRepo{s: s}
	stale := *inv
	repo.staleGet = &stale
	s.invitations[inv.ID].Status = model.InvitationStatusAccepted
	s.members[mdt.ID][receiver.ID] = true
	s.slots[mdt.ID][cardiology.ID] = true

	svc := NewService(repo, &fakeMDTRepo{s}, &fakeUserRepo{s}, &fakeEmail{}, testMetrics, zerolog.Nop())

	_, err := svc.Respond(context.Background(), inv.ID, receiver.ID, model.InvitationStatusDeclined)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, model.InvitationStatusAccepted, s.invitations[inv.ID].Status)

	// A late cancel from the sender hits the same guard.
	err = svc.Cancel(context.Background(), inv.ID, sender.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, model.InvitationStatusAccepted, s.invitations[inv.ID].Status)
	assert.True(t, s.members[mdt.ID][receiver.ID])
}

func TestCancel(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)

	svc, _ := newTestService(s)

	// Only the sender may cancel.
	err := svc.Cancel(context.Background(), inv.ID, receiver.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	require.NoError(t, svc.Cancel(context.Background(), inv.ID, sender.ID))
	assert.Equal(t, model.InvitationStatusCancelled, s.invitations[inv.ID].Status)

	// Terminal invitations cannot be cancelled again.
	err = svc.Cancel(context.Background(), inv.ID, sender.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestGetVisibility(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	member := s.addUser("Dr Peer", "peer@example.com", model.RoleLocal)
	stranger := s.addUser("Dr Stranger", "stranger@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	s.members[mdt.ID][member.ID] = true
	inv := s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)

	svc, _ := newTestService(s)

	for _, viewer := range []uuid.UUID{sender.ID, receiver.ID, member.ID} {
		detail, err := svc.Get(context.Background(), inv.ID, viewer)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, detail.Invitation.ID)
		require.NotNil(t, detail.MDT)
		assert.Equal(t, mdt.ID, detail.MDT.ID)
	}

	// Strangers see not-found, indistinguishable from an absent record.
	_, err := svc.Get(context.Background(), inv.ID, stranger.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListPending(t *testing.T) {
	s := newStore()
	cardiology := specialty("Cardiology")
	sender := s.addUser("Dr Local", "local@example.com", model.RoleLocal)
	receiver := s.addUser("Dr Remote", "remote@example.com", model.RoleExternal, cardiology)
	mdt := s.addMDT("Case A", sender, cardiology)
	s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusPending)
	s.addInvitation(mdt, sender, receiver, &cardiology.ID, model.InvitationStatusDeclined)

	svc, _ := newTestService(s)

	pending, err := svc.ListPending(context.Background(), receiver.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.InvitationStatusPending, pending[0].Status)
}
