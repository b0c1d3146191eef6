// Package store provides the file-backed in-memory persistence backend. It
// implements the registry and query repository interfaces over maps guarded
// by a single RWMutex and persists the whole data set as a JSON snapshot, so
// state survives restarts. The server runs on this backend when no database
// URL is configured.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
	"github.com/careroute/careroute/pkg/pagination"
)

// MemoryStore holds all records in memory. Order slices preserve registration
// order so listings match the database backend, and the seq counters are
// persisted so ids are never reissued across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	path string
	log  zerolog.Logger

	patients map[string]*registry.Patient
	doctors  map[string]*registry.Doctor
	queries  map[string]*query.MedicalQuery

	patientOrder []string
	doctorOrder  []string
	queryOrder   []string

	patientSeq int64
	doctorSeq  int64
	querySeq   int64

	dirty bool
}

// NewMemory returns an empty store that snapshots to path. An empty path
// makes the store ephemeral.
func NewMemory(path string, log zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		path:     path,
		log:      log,
		patients: make(map[string]*registry.Patient),
		doctors:  make(map[string]*registry.Doctor),
		queries:  make(map[string]*query.MedicalQuery),
	}
}

// Patients returns the patient repository view of the store.
func (s *MemoryStore) Patients() registry.PatientRepository { return &memPatientRepo{s: s} }

// Doctors returns the doctor repository view of the store.
func (s *MemoryStore) Doctors() registry.DoctorRepository { return &memDoctorRepo{s: s} }

// Queries returns the medical query repository view of the store.
func (s *MemoryStore) Queries() query.Repository { return &memQueryRepo{s: s} }

// Records are cloned on the way in and out so callers never share memory
// with the store.

func clonePatient(p *registry.Patient) *registry.Patient {
	cp := *p
	cp.MedicalHistory = append([]string(nil), p.MedicalHistory...)
	if p.AssignedDoctorID != nil {
		v := *p.AssignedDoctorID
		cp.AssignedDoctorID = &v
	}
	return &cp
}

func cloneDoctor(d *registry.Doctor) *registry.Doctor {
	cd := *d
	cd.Specialties = append([]registry.Specialty(nil), d.Specialties...)
	if d.AverageResponseTime != nil {
		v := *d.AverageResponseTime
		cd.AverageResponseTime = &v
	}
	if d.SatisfactionRating != nil {
		v := *d.SatisfactionRating
		cd.SatisfactionRating = &v
	}
	return &cd
}

func cloneQuery(q *query.MedicalQuery) *query.MedicalQuery {
	cq := *q
	cq.DoctorID = cloneStringPtr(q.DoctorID)
	cq.AIDraftResponse = cloneStringPtr(q.AIDraftResponse)
	cq.Response = cloneStringPtr(q.Response)
	if q.Specialty != nil {
		v := *q.Specialty
		cq.Specialty = &v
	}
	if q.ResponseTimeMinutes != nil {
		v := *q.ResponseTimeMinutes
		cq.ResponseTimeMinutes = &v
	}
	cq.Analysis = cloneAnalysis(q.Analysis)
	return &cq
}

func cloneAnalysis(a *triage.Analysis) *triage.Analysis {
	if a == nil {
		return nil
	}
	ca := *a
	ca.RecommendedActions = append([]string(nil), a.RecommendedActions...)
	ca.FlaggedSymptoms = append([]string(nil), a.FlaggedSymptoms...)
	if a.SuggestedSpecialty != nil {
		v := *a.SuggestedSpecialty
		ca.SuggestedSpecialty = &v
	}
	return &ca
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ---------------------------------------------------------------------------
// Patient repository
// ---------------------------------------------------------------------------

type memPatientRepo struct{ s *MemoryStore }

func (r *memPatientRepo) NextID(context.Context) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.patientSeq++
	r.s.dirty = true
	return fmt.Sprintf("p%d", r.s.patientSeq), nil
}

func (r *memPatientRepo) Create(_ context.Context, p *registry.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.patientOrder {
		if r.s.patients[id].Email == p.Email {
			return registry.ErrEmailExists
		}
	}
	r.s.patients[p.ID] = clonePatient(p)
	r.s.patientOrder = append(r.s.patientOrder, p.ID)
	r.s.dirty = true
	return nil
}

func (r *memPatientRepo) GetByID(_ context.Context, id string) (*registry.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, registry.ErrPatientNotFound
	}
	return clonePatient(p), nil
}

func (r *memPatientRepo) GetByEmail(_ context.Context, email string) (*registry.Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range r.s.patientOrder {
		if r.s.patients[id].Email == email {
			return clonePatient(r.s.patients[id]), nil
		}
	}
	return nil, registry.ErrPatientNotFound
}

func (r *memPatientRepo) Update(_ context.Context, p *registry.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[p.ID]; !ok {
		return registry.ErrPatientNotFound
	}
	r.s.patients[p.ID] = clonePatient(p)
	r.s.dirty = true
	return nil
}

func (r *memPatientRepo) listWhere(pg pagination.Params, keep func(*registry.Patient) bool) ([]*registry.Patient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var matched []*registry.Patient
	for _, id := range r.s.patientOrder {
		if keep(r.s.patients[id]) {
			matched = append(matched, clonePatient(r.s.patients[id]))
		}
	}
	start, end := pg.Normalize().Slice(len(matched))
	return matched[start:end], len(matched), nil
}

func (r *memPatientRepo) ListUnassigned(_ context.Context, pg pagination.Params) ([]*registry.Patient, int, error) {
	return r.listWhere(pg, func(p *registry.Patient) bool { return !p.Assigned() })
}

func (r *memPatientRepo) ListByDoctor(_ context.Context, doctorID string, pg pagination.Params) ([]*registry.Patient, int, error) {
	return r.listWhere(pg, func(p *registry.Patient) bool {
		return p.AssignedDoctorID != nil && *p.AssignedDoctorID == doctorID
	})
}

func (r *memPatientRepo) Count(context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.patients), nil
}

// ---------------------------------------------------------------------------
// Doctor repository
// ---------------------------------------------------------------------------

type memDoctorRepo struct{ s *MemoryStore }

func (r *memDoctorRepo) NextID(context.Context) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.doctorSeq++
	r.s.dirty = true
	return fmt.Sprintf("d%d", r.s.doctorSeq), nil
}

func (r *memDoctorRepo) Create(_ context.Context, d *registry.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.doctors[d.ID] = cloneDoctor(d)
	r.s.doctorOrder = append(r.s.doctorOrder, d.ID)
	r.s.dirty = true
	return nil
}

func (r *memDoctorRepo) GetByID(_ context.Context, id string) (*registry.Doctor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, registry.ErrDoctorNotFound
	}
	return cloneDoctor(d), nil
}

func (r *memDoctorRepo) Update(_ context.Context, d *registry.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[d.ID]; !ok {
		return registry.ErrDoctorNotFound
	}
	r.s.doctors[d.ID] = cloneDoctor(d)
	r.s.dirty = true
	return nil
}

func (r *memDoctorRepo) List(ctx context.Context, pg pagination.Params) ([]*registry.Doctor, int, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	start, end := pg.Normalize().Slice(len(all))
	return all[start:end], len(all), nil
}

func (r *memDoctorRepo) All(context.Context) ([]*registry.Doctor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*registry.Doctor, 0, len(r.s.doctorOrder))
	for _, id := range r.s.doctorOrder {
		out = append(out, cloneDoctor(r.s.doctors[id]))
	}
	return out, nil
}

func (r *memDoctorRepo) Count(context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.doctors), nil
}

// ---------------------------------------------------------------------------
// Query repository
// ---------------------------------------------------------------------------

type memQueryRepo struct{ s *MemoryStore }

func (r *memQueryRepo) NextID(context.Context) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.querySeq++
	r.s.dirty = true
	return fmt.Sprintf("q%d", r.s.querySeq), nil
}

func (r *memQueryRepo) Create(_ context.Context, q *query.MedicalQuery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.queries[q.ID] = cloneQuery(q)
	r.s.queryOrder = append(r.s.queryOrder, q.ID)
	r.s.dirty = true
	return nil
}

func (r *memQueryRepo) GetByID(_ context.Context, id string) (*query.MedicalQuery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	q, ok := r.s.queries[id]
	if !ok {
		return nil, query.ErrNotFound
	}
	return cloneQuery(q), nil
}

func (r *memQueryRepo) Update(_ context.Context, q *query.MedicalQuery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.queries[q.ID]; !ok {
		return query.ErrNotFound
	}
	r.s.queries[q.ID] = cloneQuery(q)
	r.s.dirty = true
	return nil
}

// matching returns clones of matching queries in insertion order. Callers
// sort as needed; sorts are stable so ties keep insertion order.
func (r *memQueryRepo) matching(keep func(*query.MedicalQuery) bool) []*query.MedicalQuery {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var matched []*query.MedicalQuery
	for _, id := range r.s.queryOrder {
		if keep(r.s.queries[id]) {
			matched = append(matched, cloneQuery(r.s.queries[id]))
		}
	}
	return matched
}

func paginate(items []*query.MedicalQuery, pg pagination.Params) ([]*query.MedicalQuery, int) {
	start, end := pg.Normalize().Slice(len(items))
	return items[start:end], len(items)
}

func (r *memQueryRepo) ListByPatient(_ context.Context, patientID string, pg pagination.Params) ([]*query.MedicalQuery, int, error) {
	matched := r.matching(func(q *query.MedicalQuery) bool { return q.PatientID == patientID })
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	items, total := paginate(matched, pg)
	return items, total, nil
}

func (r *memQueryRepo) ListByDoctor(_ context.Context, doctorID string, pg pagination.Params) ([]*query.MedicalQuery, int, error) {
	matched := r.matching(func(q *query.MedicalQuery) bool {
		return q.DoctorID != nil && *q.DoctorID == doctorID
	})
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	items, total := paginate(matched, pg)
	return items, total, nil
}

func (r *memQueryRepo) ListPending(_ context.Context, pg pagination.Params) ([]*query.MedicalQuery, int, error) {
	matched := r.matching(func(q *query.MedicalQuery) bool { return q.Status == query.StatusPending })
	sort.SliceStable(matched, func(i, j int) bool {
		ri, rj := matched[i].Priority.Rank(), matched[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	items, total := paginate(matched, pg)
	return items, total, nil
}

func (r *memQueryRepo) AllByDoctor(_ context.Context, doctorID string) ([]*query.MedicalQuery, error) {
	matched := r.matching(func(q *query.MedicalQuery) bool {
		return q.DoctorID != nil && *q.DoctorID == doctorID
	})
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return matched, nil
}

func (r *memQueryRepo) Count(context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.queries), nil
}

func (r *memQueryRepo) CountByStatus(_ context.Context, status query.Status) (int, error) {
	return len(r.matching(func(q *query.MedicalQuery) bool { return q.Status == status })), nil
}

func (r *memQueryRepo) CountActive(context.Context) (int, error) {
	return len(r.matching(func(q *query.MedicalQuery) bool { return q.Status != query.StatusCompleted })), nil
}
