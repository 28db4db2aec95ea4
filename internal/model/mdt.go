package model

import (
	"time"

	"github.com/google/uuid"
)

// MDT status constants
const (
	MDTStatusActive    = "ACTIVE"
	MDTStatusCompleted = "COMPLETED"
	MDTStatusArchived  = "ARCHIVED"
)

// MDT is a case-centered collaboration unit binding a patient profile,
// required specialty slots and member professionals.
type MDT struct {
	Base
	Name                string          `json:"name" db:"name"`
	Status              string          `json:"status" db:"status"`
	CreatorID           uuid.UUID       `json:"creator_id" db:"creator_id"`
	Members             []User          `json:"members,omitempty" db:"-"`
	PatientProfile      *PatientProfile `json:"patient_profile,omitempty" db:"-"`
	RequiredSpecialties []MDTSpecialty  `json:"required_specialties,omitempty" db:"-"`
	Invitations         []*Invitation   `json:"invitations,omitempty" db:"-"`
}

// MDTSpecialty is one required-expertise position on an MDT. Filled flips
// false to true exactly once, when an invitation for the slot is accepted.
type MDTSpecialty struct {
	MDTID         uuid.UUID `json:"mdt_id" db:"mdt_id"`
	SpecialtyID   uuid.UUID `json:"specialty_id" db:"specialty_id"`
	SpecialtyName string    `json:"specialty_name" db:"specialty_name"`
	Filled        bool      `json:"filled" db:"filled"`
}

// PatientProfile is owned 1:1 by an MDT and deleted with it.
type PatientProfile struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	MDTID          uuid.UUID    `json:"mdt_id" db:"mdt_id"`
	Age            int          `json:"age" db:"age"`
	Gender         string       `json:"gender" db:"gender"`
	UniqueID       string       `json:"unique_id" db:"unique_id"`
	MedicalHistory string       `json:"medical_history" db:"medical_history"`
	CaseSummary    string       `json:"case_summary" db:"case_summary"`
	Medications    []Medication `json:"medications" db:"-"`
}

// Medication belongs to exactly one patient profile; position preserves
// the order the medications were entered in.
type Medication struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProfileID uuid.UUID `json:"profile_id" db:"profile_id"`
	Name      string    `json:"name" db:"name"`
	Dosage    string    `json:"dosage" db:"dosage"`
	Position  int       `json:"position" db:"position"`
}

// MDTSummary is the list view returned for a user's case feed.
type MDTSummary struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Status      string          `json:"status" db:"status"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	LastMessage *MessagePreview `json:"last_message,omitempty" db:"-"`
}

// CreateMDTRequest represents case creation parameters
type CreateMDTRequest struct {
	Name                 string              `json:"name" binding:"required,min=2,max=200"`
	Patient              PatientProfileInput `json:"patient" binding:"required"`
	LocalDoctorIDs       []uuid.UUID         `json:"local_doctor_ids"`
	RequiredSpecialtyIDs []uuid.UUID         `json:"required_specialty_ids" binding:"required,min=1"`
}

// PatientProfileInput carries the structured patient data for a new case
type PatientProfileInput struct {
	Age            int               `json:"age" binding:"required,min=0,max=150"`
	Gender         string            `json:"gender" binding:"required"`
	UniqueID       string            `json:"unique_id" binding:"required"`
	MedicalHistory string            `json:"medical_history"`
	CaseSummary    string            `json:"case_summary"`
	Medications    []MedicationInput `json:"medications"`
}

// MedicationInput is one entry of the ordered medications list
type MedicationInput struct {
	Name   string `json:"name" binding:"required"`
	Dosage string `json:"dosage" binding:"required"`
}

// UpdateMDTRequest patches the case name, status and patient profile
// scalars. The medications list is not editable through this operation.
type UpdateMDTRequest struct {
	Name    *string              `json:"name" binding:"omitempty,min=2,max=200"`
	Status  *string              `json:"status" binding:"omitempty,oneof=ACTIVE COMPLETED ARCHIVED"`
	Patient *PatientProfilePatch `json:"patient"`
}

// PatientProfilePatch updates patient profile fields except medications
type PatientProfilePatch struct {
	Age            *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Gender         *string `json:"gender"`
	MedicalHistory *string `json:"medical_history"`
	CaseSummary    *string `json:"case_summary"`
}
