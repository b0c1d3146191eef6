// Package assignment picks the best doctor for a triaged query and reports
// per-doctor workload. Scoring is a fixed weighted sum over the doctor
// profile; the weights are part of the product behavior and change together
// with their tests.
package assignment

import (
	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
)

// Engine scores candidate doctors. It is stateless; candidates and queries
// are passed in by the caller.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Assign returns the id of the best-scoring candidate for the query, or
// false when no candidates exist. Candidates matching the suggested specialty
// are preferred; when none match (or no specialty was suggested) the full
// list competes. Ties resolve to the earliest candidate in the given order,
// so results are deterministic for a fixed roster.
func (e *Engine) Assign(q *query.MedicalQuery, an *triage.Analysis, candidates []*registry.Doctor) (string, bool) {
	pool := candidates
	if an != nil && an.SuggestedSpecialty != nil {
		var matched []*registry.Doctor
		for _, d := range candidates {
			if d.HasSpecialty(*an.SuggestedSpecialty) {
				matched = append(matched, d)
			}
		}
		if len(matched) > 0 {
			pool = matched
		}
	}
	if len(pool) == 0 {
		return "", false
	}

	best := pool[0]
	bestScore := e.Score(q, an, best)
	for _, d := range pool[1:] {
		if score := e.Score(q, an, d); score > bestScore {
			best, bestScore = d, score
		}
	}
	return best.ID, true
}

// Score computes the weighted suitability of one doctor for the query.
// q may be nil when scoring outside a submission, in which case the priority
// bonus does not apply.
func (e *Engine) Score(q *query.MedicalQuery, an *triage.Analysis, d *registry.Doctor) float64 {
	score := 0.0
	if d.IsActive && d.IsAcceptingPatients {
		score += 1.0
	}
	if an != nil && an.SuggestedSpecialty != nil && d.HasSpecialty(*an.SuggestedSpecialty) {
		score += 2.0
	}
	score += 0.1 * float64(d.YearsOfExperience)
	if d.AverageResponseTime != nil {
		switch {
		case *d.AverageResponseTime < 60:
			score += 1.0
		case *d.AverageResponseTime < 120:
			score += 0.5
		}
	}
	if d.SatisfactionRating != nil {
		score += *d.SatisfactionRating / 10
	}
	switch {
	case d.TotalPatientsManaged < 50:
		score += 0.5
	case d.TotalPatientsManaged > 100:
		score -= 0.5
	}
	if q != nil && (q.Priority == query.PriorityUrgent || q.Priority == query.PriorityEmergency) {
		score += 1.0
	}
	return score
}

// Workload summarizes one doctor's queue: queries waiting to be taken,
// queries under review, and the average turnaround over completed ones.
type Workload struct {
	DoctorID                   string  `json:"doctor_id"`
	PendingQueries             int     `json:"pending_queries"`
	ActiveQueries              int     `json:"active_queries"`
	CompletedQueries           int     `json:"completed_queries"`
	AverageResponseTimeMinutes float64 `json:"average_response_time_minutes"`
}

// Workload tallies the doctor's queries. Queries bound to other doctors are
// ignored, so the caller may pass an unfiltered list.
func (e *Engine) Workload(doctorID string, queries []*query.MedicalQuery) *Workload {
	w := &Workload{DoctorID: doctorID}
	totalMinutes := 0
	timed := 0
	for _, q := range queries {
		if q.DoctorID == nil || *q.DoctorID != doctorID {
			continue
		}
		switch q.Status {
		case query.StatusPending:
			w.PendingQueries++
		case query.StatusDoctorReview:
			w.ActiveQueries++
		case query.StatusCompleted:
			w.CompletedQueries++
			if q.ResponseTimeMinutes != nil {
				totalMinutes += *q.ResponseTimeMinutes
				timed++
			}
		}
	}
	if timed > 0 {
		w.AverageResponseTimeMinutes = float64(totalMinutes) / float64(timed)
	}
	return w
}
