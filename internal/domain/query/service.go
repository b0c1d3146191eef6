package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
	"github.com/careroute/careroute/pkg/apperror"
	"github.com/careroute/careroute/pkg/pagination"
)

// Router decides the effective priority of a new query and the service
// expectations that follow from it.
type Router interface {
	Route(text string, submitted Priority, an *triage.Analysis) Priority
	RequiresImmediateReview(p Priority, an *triage.Analysis) bool
	ExpectedResponseMinutes(p Priority, activeQueries int) int
}

// DraftClient fetches a reply draft from an external assistant. Implementations
// must respect the context deadline; failures never block a submission.
type DraftClient interface {
	Draft(ctx context.Context, queryText, condition string) (string, error)
}

// Service manages the query lifecycle. The mutex serializes all state
// transitions, so each check-then-act sequence observes a consistent store
// even though triage and external drafting run outside the lock.
type Service struct {
	queries  Repository
	patients registry.PatientRepository
	doctors  registry.DoctorRepository
	analyzer *triage.Analyzer
	composer *triage.Composer
	router   Router
	drafts   DraftClient
	log      zerolog.Logger

	mu sync.Mutex
}

// NewService wires the lifecycle manager. drafts may be nil, which disables
// the external assistant entirely.
func NewService(queries Repository, patients registry.PatientRepository, doctors registry.DoctorRepository, router Router, drafts DraftClient, log zerolog.Logger) *Service {
	return &Service{
		queries:  queries,
		patients: patients,
		doctors:  doctors,
		analyzer: triage.NewAnalyzer(),
		composer: triage.NewComposer(),
		router:   router,
		drafts:   drafts,
		log:      log,
	}
}

type SubmitInput struct {
	PatientID   string   `json:"patient_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority,omitempty"`
}

// Submit triages a new query and enqueues it as pending, bound to the
// patient's assigned doctor. The assignment is re-checked under the lock just
// before the query is persisted, because analysis and external drafting run
// without it and the patient may have been unassigned in between.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*MedicalQuery, error) {
	title := strings.TrimSpace(in.Title)
	if len(title) < 3 {
		return nil, apperror.Validation("title must be at least 3 characters")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) < 10 {
		return nil, apperror.Validation("description must be at least 10 characters")
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, apperror.Validation("unknown priority: %s", in.Priority)
	}

	patient, err := s.getPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if !patient.Assigned() {
		return nil, apperror.Validation("Patient must be assigned to a doctor before submitting queries")
	}

	text := title + " " + description
	analysis := s.analyzer.Analyze(title, description, patient)
	draft := s.composer.Compose(title, analysis)
	if s.drafts != nil {
		external, derr := s.drafts.Draft(ctx, text, patient.Condition)
		if derr != nil {
			s.log.Warn().Err(derr).Str("patient_id", patient.ID).Msg("external draft unavailable, using local draft only")
		} else if external != "" {
			draft += "\n\n---\nExternal assistant draft:\n" + external
		}
	}

	routed := s.router.Route(text, priority, analysis)
	immediate := s.router.RequiresImmediateReview(routed, analysis)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The assignment may have changed while triage ran. Bind to whatever
	// doctor holds the patient now, or reject if nobody does.
	patient, err = s.getPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if !patient.Assigned() {
		return nil, apperror.Validation("Patient must be assigned to a doctor before submitting queries")
	}
	doctorID := *patient.AssignedDoctorID

	active, err := s.queries.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	expected := s.router.ExpectedResponseMinutes(routed, active)

	id, err := s.queries.NextID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	q := &MedicalQuery{
		ID:                      id,
		PatientID:               patient.ID,
		Title:                   title,
		Description:             description,
		Status:                  StatusPending,
		Priority:                routed,
		DoctorID:                &doctorID,
		Specialty:               analysis.SuggestedSpecialty,
		Analysis:                analysis,
		AIDraftResponse:         &draft,
		ExpectedResponseMinutes: expected,
		RequiresImmediateReview: immediate,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.queries.Create(ctx, q); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("query_id", q.ID).
		Str("patient_id", q.PatientID).
		Str("doctor_id", doctorID).
		Str("priority", string(q.Priority)).
		Bool("immediate_review", q.RequiresImmediateReview).
		Msg("query submitted")
	return q, nil
}

// Get returns a query by id.
func (s *Service) Get(ctx context.Context, id string) (*MedicalQuery, error) {
	return s.getQuery(ctx, id)
}

func (s *Service) getQuery(ctx context.Context, id string) (*MedicalQuery, error) {
	q, err := s.queries.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperror.NotFound("query %s not found", id)
		}
		return nil, fmt.Errorf("getting query: %w", err)
	}
	return q, nil
}

func (s *Service) getPatient(ctx context.Context, id string) (*registry.Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrPatientNotFound) {
			return nil, apperror.NotFound("patient %s not found", id)
		}
		return nil, fmt.Errorf("getting patient: %w", err)
	}
	return p, nil
}

func (s *Service) getDoctor(ctx context.Context, id string) (*registry.Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrDoctorNotFound) {
			return nil, apperror.NotFound("doctor %s not found", id)
		}
		return nil, fmt.Errorf("getting doctor: %w", err)
	}
	return d, nil
}

// ListByPatient returns the patient's queries, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID string, pg pagination.Params) ([]*MedicalQuery, int, error) {
	if _, err := s.getPatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.queries.ListByPatient(ctx, patientID, pg.Normalize())
}

// ListByDoctor returns the doctor's queries, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID string, pg pagination.Params) ([]*MedicalQuery, int, error) {
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	return s.queries.ListByDoctor(ctx, doctorID, pg.Normalize())
}

// ListPending returns the review queue: highest priority first, oldest first
// within a priority.
func (s *Service) ListPending(ctx context.Context, pg pagination.Params) ([]*MedicalQuery, int, error) {
	return s.queries.ListPending(ctx, pg.Normalize())
}

// AllByDoctor returns the doctor's entire query history, unpaginated. Used
// for workload calculation, which needs every completed query's response time.
func (s *Service) AllByDoctor(ctx context.Context, doctorID string) ([]*MedicalQuery, error) {
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.queries.AllByDoctor(ctx, doctorID)
}

// Take moves a pending query into doctor review. Only the doctor the query
// was bound to at submission may take it.
func (s *Service) Take(ctx context.Context, queryID, doctorID string) (*MedicalQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.getQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if q.DoctorID != nil && *q.DoctorID != doctorID {
		return nil, apperror.Authorization("query %s is assigned to another doctor", queryID)
	}
	if q.Status != StatusPending {
		return nil, apperror.State("query %s cannot be taken in status %s", queryID, q.Status)
	}

	q.Status = StatusDoctorReview
	q.DoctorID = &doctorID
	q.UpdatedAt = time.Now().UTC()
	if err := s.queries.Update(ctx, q); err != nil {
		return nil, err
	}

	s.log.Info().Str("query_id", q.ID).Str("doctor_id", doctorID).Msg("query taken for review")
	return q, nil
}

// Respond completes a query under review. Only the bound doctor may respond,
// and only while the query is in doctor review.
func (s *Service) Respond(ctx context.Context, queryID, doctorID, response string) (*MedicalQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.getQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if q.DoctorID == nil || *q.DoctorID != doctorID {
		return nil, apperror.Authorization("query %s is not assigned to you", queryID)
	}
	if q.Status == StatusCompleted {
		return nil, apperror.State("query %s is already completed", queryID)
	}
	if q.Status != StatusDoctorReview {
		return nil, apperror.State("query %s must be taken for review before responding", queryID)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, apperror.Validation("response text is required")
	}

	now := time.Now().UTC()
	minutes := int(now.Sub(q.CreatedAt).Minutes())
	q.Response = &response
	q.ResponseTimeMinutes = &minutes
	q.Status = StatusCompleted
	q.UpdatedAt = now
	if err := s.queries.Update(ctx, q); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("query_id", q.ID).
		Str("doctor_id", doctorID).
		Int("response_time_minutes", minutes).
		Msg("query completed")
	return q, nil
}

// Stats counts the system totals in one pass.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	totalPatients, err := s.patients.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalDoctors, err := s.doctors.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalQueries, err := s.queries.Count(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.queries.CountByStatus(ctx, StatusPending)
	if err != nil {
		return nil, err
	}
	completed, err := s.queries.CountByStatus(ctx, StatusCompleted)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalPatients:    totalPatients,
		TotalDoctors:     totalDoctors,
		TotalQueries:     totalQueries,
		PendingQueries:   pending,
		CompletedQueries: completed,
	}, nil
}
