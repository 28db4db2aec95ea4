package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careteam/mdt-api/internal/model"
)

// Sentinel errors surfaced by repositories where the distinction matters
// to business rules. Services translate them into the API error taxonomy.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrReferralCodeTaken = errors.New("referral code already taken")
	ErrPositionFilled    = errors.New("position already filled")
	ErrAlreadyResolved   = errors.New("invitation already resolved")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User, specialtyIDs []uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByReferralCode(ctx context.Context, code string) (*model.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	ListLocal(ctx context.Context, excluding uuid.UUID) ([]*model.User, error)
	ListExternalBySpecialties(ctx context.Context, specialtyIDs []uuid.UUID) ([]*model.User, error)
}

type SpecialtyRepository interface {
	List(ctx context.Context) ([]*model.Specialty, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Specialty, error)
	Seed(ctx context.Context, names []string) error
}

type MDTRepository interface {
	// Create persists the MDT aggregate and its invitation fan-out in a
	// single transaction; nothing is visible if any step fails.
	Create(ctx context.Context, mdt *model.MDT, members []uuid.UUID, invitations []*model.Invitation, event *model.OutboxEvent) error
	Get(ctx context.Context, id uuid.UUID) (*model.MDT, error)
	IsMember(ctx context.Context, mdtID, userID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.MDTSummary, error)
	Update(ctx context.Context, mdt *model.MDT) error
}

type InvitationRepository interface {
	Create(ctx context.Context, inv *model.Invitation, event *model.OutboxEvent) error
	Get(ctx context.Context, id uuid.UUID) (*model.Invitation, error)
	HasPending(ctx context.Context, mdtID, receiverID uuid.UUID) (bool, error)
	ListPendingForReceiver(ctx context.Context, receiverID uuid.UUID) ([]*model.Invitation, error)
	// Accept fills the specialty slot, records membership and cancels
	// competing pending invitations atomically. Returns ErrPositionFilled
	// when the slot was already taken by a concurrent acceptance, and
	// ErrAlreadyResolved when the invitation itself left PENDING first.
	Accept(ctx context.Context, inv *model.Invitation, event *model.OutboxEvent) error
	// UpdateStatus resolves a PENDING invitation. The precondition is
	// enforced in the UPDATE itself; a row that already reached a terminal
	// state returns ErrAlreadyResolved and stays untouched.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, event *model.OutboxEvent) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message, event *model.OutboxEvent) error
	ListForMDT(ctx context.Context, mdtID uuid.UUID) ([]*model.Message, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// ProcessPending claims a batch of due events with a skip-locked read
	// and invokes handle for each one inside the claiming transaction.
	// Events whose handle returns nil are marked processed, the rest are
	// marked failed with the error message. Row locks hold until commit,
	// so concurrent workers never double-publish a claimed batch.
	ProcessPending(ctx context.Context, limit int, handle func(*model.OutboxEvent) error) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
