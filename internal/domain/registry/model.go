package registry

import (
	"time"
)

// Specialty is an enumerated medical field used to classify queries and to
// filter and score doctors.
type Specialty string

const (
	SpecialtyCardiology       Specialty = "cardiology"
	SpecialtyNeurology        Specialty = "neurology"
	SpecialtyDermatology      Specialty = "dermatology"
	SpecialtyOrthopedics      Specialty = "orthopedics"
	SpecialtyGastroenterology Specialty = "gastroenterology"
	SpecialtyEndocrinology    Specialty = "endocrinology"
	SpecialtyPsychiatry       Specialty = "psychiatry"
	SpecialtyPediatrics       Specialty = "pediatrics"
	SpecialtyGeneralPractice  Specialty = "general_practice"
)

var specialtyDisplayNames = map[Specialty]string{
	SpecialtyCardiology:       "Cardiology",
	SpecialtyNeurology:        "Neurology",
	SpecialtyDermatology:      "Dermatology",
	SpecialtyOrthopedics:      "Orthopedics",
	SpecialtyGastroenterology: "Gastroenterology",
	SpecialtyEndocrinology:    "Endocrinology",
	SpecialtyPsychiatry:       "Psychiatry",
	SpecialtyPediatrics:       "Pediatrics",
	SpecialtyGeneralPractice:  "General Practice",
}

// Valid reports whether s is a known specialty tag.
func (s Specialty) Valid() bool {
	_, ok := specialtyDisplayNames[s]
	return ok
}

// DisplayName returns the human-readable name for the specialty.
func (s Specialty) DisplayName() string {
	if name, ok := specialtyDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

// Patient is a registered care recipient. A patient starts unassigned and
// inactive; IsActive is true exactly when AssignedDoctorID is set.
type Patient struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Condition        string    `db:"condition" json:"condition"`
	Email            string    `db:"email" json:"email"`
	DateOfBirth      string    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	MedicalHistory   []string  `db:"medical_history" json:"medical_history,omitempty"`
	AssignedDoctorID *string   `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Assigned reports whether the patient currently has a doctor.
func (p *Patient) Assigned() bool {
	return p.AssignedDoctorID != nil
}

// Doctor is a registered practitioner. Specialties and performance fields are
// set at registration and maintained by administrative operations.
type Doctor struct {
	ID                   string      `db:"id" json:"id"`
	Name                 string      `db:"name" json:"name"`
	Specialties          []Specialty `db:"specialties" json:"specialties"`
	IsActive             bool        `db:"is_active" json:"is_active"`
	IsAcceptingPatients  bool        `db:"is_accepting_patients" json:"is_accepting_patients"`
	YearsOfExperience    int         `db:"years_of_experience" json:"years_of_experience"`
	AverageResponseTime  *int        `db:"average_response_time" json:"average_response_time,omitempty"`
	SatisfactionRating   *float64    `db:"satisfaction_rating" json:"satisfaction_rating,omitempty"`
	TotalPatientsManaged int         `db:"total_patients_managed" json:"total_patients_managed"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

// HasSpecialty reports whether the doctor carries the given specialty tag.
func (d *Doctor) HasSpecialty(s Specialty) bool {
	for _, own := range d.Specialties {
		if own == s {
			return true
		}
	}
	return false
}
