package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/careroute/careroute/pkg/apperror"
	"github.com/careroute/careroute/pkg/pagination"
)

// Service owns patient and doctor registration and the patient-doctor
// assignment relation. Mutating operations are serialized so that
// check-then-act sequences (unique email, double assignment) stay atomic.
type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	mu       sync.Mutex
}

func NewService(patients PatientRepository, doctors DoctorRepository) *Service {
	return &Service{patients: patients, doctors: doctors}
}

type RegisterPatientInput struct {
	Name           string   `json:"name"`
	Condition      string   `json:"condition"`
	Email          string   `json:"email"`
	DateOfBirth    string   `json:"date_of_birth"`
	MedicalHistory []string `json:"medical_history"`
}

func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*Patient, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if name == "" {
		return nil, apperror.Validation("name is required")
	}
	if email == "" {
		return nil, apperror.Validation("email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.Validation("email %s is not valid", email)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.patients.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Validation("email %s is already registered", email)
	} else if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	id, err := s.patients.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating patient id: %w", err)
	}

	now := time.Now().UTC()
	p := &Patient{
		ID:             id,
		Name:           name,
		Condition:      strings.TrimSpace(in.Condition),
		Email:          email,
		DateOfBirth:    strings.TrimSpace(in.DateOfBirth),
		MedicalHistory: in.MedicalHistory,
		IsActive:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, apperror.Validation("email %s is already registered", email)
		}
		return nil, fmt.Errorf("creating patient: %w", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperror.NotFound("patient %s not found", id)
		}
		return nil, fmt.Errorf("getting patient: %w", err)
	}
	return p, nil
}

func (s *Service) FindPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, apperror.Validation("email is required")
	}
	p, err := s.patients.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, apperror.NotFound("no patient registered with email %s", email)
		}
		return nil, fmt.Errorf("finding patient by email: %w", err)
	}
	return p, nil
}

func (s *Service) ListUnassignedPatients(ctx context.Context, pg pagination.Params) ([]*Patient, int, error) {
	return s.patients.ListUnassigned(ctx, pg)
}

// AssignPatientToDoctor binds an unassigned patient to a doctor and activates
// the patient. Assigning an already-assigned patient is a state error.
func (s *Service) AssignPatientToDoctor(ctx context.Context, patientID, doctorID string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if p.Assigned() {
		return nil, apperror.State("patient %s is already assigned to a doctor", patientID)
	}

	p.AssignedDoctorID = &doctorID
	p.IsActive = true
	p.UpdatedAt = time.Now().UTC()
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating patient: %w", err)
	}
	return p, nil
}

func (s *Service) ListDoctorPatients(ctx context.Context, doctorID string, pg pagination.Params) ([]*Patient, int, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	return s.patients.ListByDoctor(ctx, doctorID, pg)
}

// UnassignPatient releases the patient from their doctor and deactivates
// them. Only the currently assigned doctor may unassign.
func (s *Service) UnassignPatient(ctx context.Context, patientID, doctorID string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !p.Assigned() {
		return nil, apperror.State("patient %s is not assigned to a doctor", patientID)
	}
	if *p.AssignedDoctorID != doctorID {
		return nil, apperror.Authorization("patient %s is not assigned to doctor %s", patientID, doctorID)
	}

	p.AssignedDoctorID = nil
	p.IsActive = false
	p.UpdatedAt = time.Now().UTC()
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating patient: %w", err)
	}
	return p, nil
}

type RegisterDoctorInput struct {
	Name                 string      `json:"name"`
	Specialties          []Specialty `json:"specialties"`
	IsActive             *bool       `json:"is_active"`
	IsAcceptingPatients  *bool       `json:"is_accepting_patients"`
	YearsOfExperience    int         `json:"years_of_experience"`
	AverageResponseTime  *int        `json:"average_response_time"`
	SatisfactionRating   *float64    `json:"satisfaction_rating"`
	TotalPatientsManaged int         `json:"total_patients_managed"`
}

func (s *Service) RegisterDoctor(ctx context.Context, in RegisterDoctorInput) (*Doctor, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperror.Validation("name is required")
	}
	for _, sp := range in.Specialties {
		if !sp.Valid() {
			return nil, apperror.Validation("unknown specialty: %s", sp)
		}
	}
	if in.YearsOfExperience < 0 {
		return nil, apperror.Validation("years of experience must not be negative")
	}
	if in.AverageResponseTime != nil && *in.AverageResponseTime < 0 {
		return nil, apperror.Validation("average response time must not be negative")
	}
	if in.SatisfactionRating != nil && (*in.SatisfactionRating < 0 || *in.SatisfactionRating > 10) {
		return nil, apperror.Validation("satisfaction rating must be between 0 and 10")
	}
	if in.TotalPatientsManaged < 0 {
		return nil, apperror.Validation("total patients managed must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.doctors.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating doctor id: %w", err)
	}

	active, accepting := true, true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	if in.IsAcceptingPatients != nil {
		accepting = *in.IsAcceptingPatients
	}

	now := time.Now().UTC()
	d := &Doctor{
		ID:                   id,
		Name:                 strings.TrimSpace(in.Name),
		Specialties:          in.Specialties,
		IsActive:             active,
		IsAcceptingPatients:  accepting,
		YearsOfExperience:    in.YearsOfExperience,
		AverageResponseTime:  in.AverageResponseTime,
		SatisfactionRating:   in.SatisfactionRating,
		TotalPatientsManaged: in.TotalPatientsManaged,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating doctor: %w", err)
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, apperror.NotFound("doctor %s not found", id)
		}
		return nil, fmt.Errorf("getting doctor: %w", err)
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, pg pagination.Params) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, pg)
}

// AllDoctors returns the full roster in registration order, for assignment
// scoring.
func (s *Service) AllDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.All(ctx)
}

type AvailabilityInput struct {
	IsActive            *bool `json:"is_active"`
	IsAcceptingPatients *bool `json:"is_accepting_patients"`
}

// SetDoctorAvailability updates a doctor's active and accepting flags.
func (s *Service) SetDoctorAvailability(ctx context.Context, id string, in AvailabilityInput) (*Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if in.IsAcceptingPatients != nil {
		d.IsAcceptingPatients = *in.IsAcceptingPatients
	}
	d.UpdatedAt = time.Now().UTC()
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("updating doctor: %w", err)
	}
	return d, nil
}
