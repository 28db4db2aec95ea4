package model

import (
	"github.com/google/uuid"
)

// Invitation status constants. ACCEPTED, DECLINED and CANCELLED are
// terminal; no transition leaves a terminal state.
const (
	InvitationStatusPending   = "PENDING"
	InvitationStatusAccepted  = "ACCEPTED"
	InvitationStatusDeclined  = "DECLINED"
	InvitationStatusCancelled = "CANCELLED"
)

// Invitation asks an external specialist to fill a specialty slot on a case.
type Invitation struct {
	Base
	MDTID       uuid.UUID  `json:"mdt_id" db:"mdt_id"`
	SenderID    uuid.UUID  `json:"sender_id" db:"sender_id"`
	ReceiverID  uuid.UUID  `json:"receiver_id" db:"receiver_id"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty" db:"specialty_id"`
	Status      string     `json:"status" db:"status"`

	// Display fields resolved by joins, not persisted on the row.
	MDTName       string  `json:"mdt_name,omitempty" db:"mdt_name"`
	SpecialtyName *string `json:"specialty_name,omitempty" db:"specialty_name"`
	SenderName    string  `json:"sender_name,omitempty" db:"sender_name"`
	ReceiverName  string  `json:"receiver_name,omitempty" db:"receiver_name"`
}

// IsPending reports whether the invitation is still open for a response.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}

// InvitationDetail embeds the case and patient summary an invited
// specialist needs to decide on a response.
type InvitationDetail struct {
	Invitation
	MDT *MDT `json:"mdt,omitempty"`
}

// InviteRequest represents a direct invitation by receiver email
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RespondRequest resolves a pending invitation
type RespondRequest struct {
	Action string `json:"action" binding:"required,oneof=ACCEPTED DECLINED"`
}
