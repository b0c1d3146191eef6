// Package routing turns a triage analysis into an effective priority and the
// response-time expectations that follow from it.
package routing

import (
	"math"
	"strings"

	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/triage"
)

// emergencyKeywords force the emergency priority when they appear anywhere in
// the raw query text, regardless of what the analysis concluded.
var emergencyKeywords = []string{"emergency", "urgent", "critical", "severe", "life-threatening"}

// baseResponseMinutes is the target response budget per priority before any
// load multiplier.
var baseResponseMinutes = map[query.Priority]int{
	query.PriorityEmergency: 15,
	query.PriorityUrgent:    60,
	query.PriorityHigh:      240,
	query.PriorityNormal:    480,
	query.PriorityLow:       1440,
}

// Router implements priority escalation. Escalation only ever raises a
// priority: a patient-submitted "urgent" is never downgraded by a calm
// analysis.
type Router struct{}

func NewRouter() *Router {
	return &Router{}
}

// Route computes the effective priority from the submitted one, the analysis
// tier, and the raw text. An emergency keyword in the text, or an
// emergency-detected assessment, forces the top priority outright.
func (r *Router) Route(text string, submitted query.Priority, an *triage.Analysis) query.Priority {
	effective := submitted
	if an != nil {
		if strings.Contains(an.RiskAssessment, "MODERATE RISK") {
			effective = highest(effective, query.PriorityHigh)
		}
		if strings.Contains(an.RiskAssessment, "HIGH RISK") {
			effective = highest(effective, query.PriorityUrgent)
		}
		if len(an.FlaggedSymptoms) > 0 {
			effective = highest(effective, query.PriorityUrgent)
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywords {
		if strings.Contains(lower, kw) {
			return query.PriorityEmergency
		}
	}
	if an != nil && strings.Contains(an.RiskAssessment, "EMERGENCY DETECTED") {
		return query.PriorityEmergency
	}
	return effective
}

// RequiresImmediateReview reports whether the query should interrupt the
// doctor's normal queue discipline.
func (r *Router) RequiresImmediateReview(p query.Priority, an *triage.Analysis) bool {
	if p == query.PriorityEmergency || p == query.PriorityUrgent {
		return true
	}
	if an == nil {
		return false
	}
	return strings.Contains(an.RiskAssessment, "HIGH RISK") ||
		an.Confidence < 0.7 ||
		len(an.FlaggedSymptoms) > 0
}

// ExpectedResponseMinutes scales the base budget by system load: half again
// over fifty active queries, doubled over a hundred.
func (r *Router) ExpectedResponseMinutes(p query.Priority, activeQueries int) int {
	base, ok := baseResponseMinutes[p]
	if !ok {
		base = baseResponseMinutes[query.PriorityNormal]
	}

	multiplier := 1.0
	switch {
	case activeQueries > 100:
		multiplier = 2.0
	case activeQueries > 50:
		multiplier = 1.5
	}
	return int(math.Floor(math.Abs(float64(base) * multiplier)))
}

func highest(a, b query.Priority) query.Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
