package email

import (
	"context"
)

// Service sends user-facing notifications. Implementations are best-effort:
// callers log failures but never roll back domain writes over them.
type Service interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendInvitation(ctx context.Context, to, mdtName, specialty string) error
	SendInvitationResolved(ctx context.Context, to, mdtName, receiverName, status string) error
}
