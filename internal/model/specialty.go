package model

// Specialty is static reference data; seeded once, never mutated by end users.
type Specialty struct {
	Base
	Name string `json:"name" db:"name"`
}

// SeedSpecialties is the fixed catalog upserted at startup, keyed on name.
var SeedSpecialties = []string{
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"Gastroenterology",
	"General Surgery",
	"Hematology",
	"Infectious Diseases",
	"Nephrology",
	"Neurology",
	"Obstetrics & Gynaecology",
	"Oncology",
	"Ophthalmology",
	"Orthopaedics",
	"Paediatrics",
	"Pathology",
	"Psychiatry",
	"Radiology",
	"Respiratory Medicine",
	"Rheumatology",
	"Urology",
}
