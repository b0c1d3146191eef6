// Package query owns the medical query lifecycle: a patient submits a query,
// the assigned doctor takes it into review, and the doctor's response
// completes it. Every query is triaged at submission and carries its analysis
// for the rest of its life.
package query

import (
	"time"

	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
)

// Status is the lifecycle state of a query. Transitions only move forward:
// pending to doctor_review to completed.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDoctorReview Status = "doctor_review"
	StatusCompleted    Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDoctorReview, StatusCompleted:
		return true
	}
	return false
}

// Priority orders the pending queue. Routing may raise a submitted priority
// but never lowers it.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityEmergency:
		return true
	}
	return false
}

// Rank maps a priority to its queue position. Higher ranks drain first.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 4
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// MedicalQuery is a patient question bound to the doctor who was assigned to
// the patient at submission time. The triage analysis and drafted reply are
// frozen at submission; only status, response, and timestamps change later.
type MedicalQuery struct {
	ID                      string              `db:"id" json:"id"`
	PatientID               string              `db:"patient_id" json:"patient_id"`
	Title                   string              `db:"title" json:"title"`
	Description             string              `db:"description" json:"description"`
	Status                  Status              `db:"status" json:"status"`
	Priority                Priority            `db:"priority" json:"priority"`
	DoctorID                *string             `db:"doctor_id" json:"doctor_id,omitempty"`
	Specialty               *registry.Specialty `db:"specialty" json:"specialty,omitempty"`
	Analysis                *triage.Analysis    `db:"analysis" json:"analysis,omitempty"`
	AIDraftResponse         *string             `db:"ai_draft_response" json:"ai_draft_response,omitempty"`
	Response                *string             `db:"response" json:"response,omitempty"`
	ResponseTimeMinutes     *int                `db:"response_time_minutes" json:"response_time_minutes,omitempty"`
	ExpectedResponseMinutes int                 `db:"expected_response_minutes" json:"expected_response_minutes"`
	RequiresImmediateReview bool                `db:"requires_immediate_review" json:"requires_immediate_review"`
	CreatedAt               time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time           `db:"updated_at" json:"updated_at"`
}

// Stats is the system-wide snapshot served by the stats endpoint.
type Stats struct {
	TotalPatients    int `json:"total_patients"`
	TotalDoctors     int `json:"total_doctors"`
	TotalQueries     int `json:"total_queries"`
	PendingQueries   int `json:"pending_queries"`
	CompletedQueries int `json:"completed_queries"`
}
