// Package triage estimates risk, flags dangerous symptoms, suggests a
// specialty, and drafts a response for human review. The analysis is a
// deterministic keyword heuristic, not a clinical risk model; its scoring
// rules are fixed and must stay reproducible.
package triage

import (
	"strings"
	"time"

	"github.com/careroute/careroute/internal/domain/registry"
)

// ModelVersion identifies the rule set that produced an analysis.
const ModelVersion = "rules-v1"

// Analysis is the triage result embedded into a query at submission time.
type Analysis struct {
	Confidence         float64             `json:"confidence"`
	RiskAssessment     string              `json:"risk_assessment"`
	RecommendedActions []string            `json:"recommended_actions"`
	SuggestedSpecialty *registry.Specialty `json:"suggested_specialty,omitempty"`
	FlaggedSymptoms    []string            `json:"flagged_symptoms"`
	AnalysisTimestamp  time.Time           `json:"analysis_timestamp"`
	ModelVersion       string              `json:"model_version"`
}

// symptomKeywords raise confidence: the more recognizable symptom language a
// query contains, the more the rule set trusts its own read of it.
var symptomKeywords = []string{
	"pain", "ache", "swelling", "fever", "nausea", "fatigue", "bleeding",
}

// highRiskKeywords each add 2 to the risk score.
var highRiskKeywords = []string{
	"emergency", "urgent", "severe", "critical",
	"chest pain", "difficulty breathing", "unconscious", "bleeding",
}

// emergencyPhrases force the emergency-detected prefix onto the risk tier
// regardless of the computed score.
var emergencyPhrases = []string{
	"chest pain", "difficulty breathing", "severe headache",
	"loss of consciousness", "severe bleeding",
}

// criticalSymptoms is the fixed flag list. Matches are reported in this
// order, never in input order.
var criticalSymptoms = []string{
	"chest pain",
	"difficulty breathing",
	"severe headache",
	"high fever",
	"loss of consciousness",
	"severe bleeding",
	"numbness",
	"vision loss",
	"severe abdominal pain",
	"suicidal thoughts",
}

const emergencyPrefix = "HIGH RISK — EMERGENCY DETECTED: "

const (
	tierHigh     = "HIGH RISK: Immediate medical attention may be required."
	tierModerate = "MODERATE RISK: Medical consultation recommended within 24-48 hours."
	tierLow      = "LOW RISK: Routine medical consultation appropriate."
)

var urgentCareActions = []string{
	"Seek immediate medical attention",
	"Contact your assigned doctor as soon as possible",
	"Go to the nearest emergency room if symptoms worsen",
	"Do not delay treatment while waiting for a response",
}

var followUpActions = []string{
	"Schedule an appointment with your doctor within 24-48 hours",
	"Monitor your symptoms closely for any changes",
	"Keep a diary of symptom timing and severity",
	"Seek immediate care if symptoms suddenly worsen",
}

var generalActions = []string{
	"Document when your symptoms started and any triggers you noticed",
	"Note any medications taken and their effects",
	"Stay hydrated and rest as needed",
	"Follow up with your healthcare provider",
}

var medicationActions = []string{
	"Review your current medications with your doctor",
	"Check for potential interactions between medications",
	"Do not stop prescribed medications without medical advice",
	"Report any side effects promptly",
}

// Analyzer runs the rule-based triage over query text and patient context.
// It is stateless and never mutates the patient.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze scores the concatenated title+description against the patient
// record and returns the full analysis.
func (a *Analyzer) Analyze(title, description string, p *registry.Patient) *Analysis {
	text := title + " " + description
	lower := strings.ToLower(text)

	assessment := a.riskAssessment(lower, p)
	return &Analysis{
		Confidence:         a.confidence(text, lower, p),
		RiskAssessment:     assessment,
		RecommendedActions: recommendedActions(assessment, lower),
		SuggestedSpecialty: SuggestSpecialty(lower),
		FlaggedSymptoms:    a.flaggedSymptoms(lower),
		AnalysisTimestamp:  time.Now().UTC(),
		ModelVersion:       ModelVersion,
	}
}

// confidence starts at 0.5 and accumulates fixed bonuses. The 0.95 clamp is
// applied before the symptom/duration bonus, so that bonus can only ever
// contribute the final 0.05 up to 1.0. This two-stage clamp is part of the
// frozen rule set.
func (a *Analyzer) confidence(text, lower string, p *registry.Patient) float64 {
	c := 0.5
	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw) {
			c += 0.05
		}
	}
	if p != nil && len(p.Condition) > 100 {
		c += 0.1
	}
	if len(text) > 200 {
		c += 0.05
	}
	if c > 0.95 {
		c = 0.95
	}
	if strings.Contains(lower, "symptom") && strings.Contains(lower, "duration") {
		c += 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// riskAssessment maps an integer risk score to a tier sentence, then applies
// the emergency override prefix independently of the score.
func (a *Analyzer) riskAssessment(lower string, p *registry.Patient) string {
	score := 0
	for _, kw := range highRiskKeywords {
		if strings.Contains(lower, kw) {
			score += 2
		}
	}
	if p != nil {
		dob := p.DateOfBirth
		if strings.Contains(dob, "194") || strings.Contains(dob, "195") {
			score += 2
		} else if strings.Contains(dob, "196") {
			score += 1
		}
		if len(p.MedicalHistory) > 3 {
			score += 1
		}
	}

	tier := tierLow
	switch {
	case score >= 4:
		tier = tierHigh
	case score >= 2:
		tier = tierModerate
	}

	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			return emergencyPrefix + tier
		}
	}
	return tier
}

func (a *Analyzer) flaggedSymptoms(lower string) []string {
	var flagged []string
	for _, symptom := range criticalSymptoms {
		if strings.Contains(lower, symptom) {
			flagged = append(flagged, symptom)
		}
	}
	return flagged
}

// recommendedActions assembles action blocks in fixed order. Both the high
// and moderate blocks fire off substring checks against the final assessment
// string, so the emergency prefix over a moderate tier yields both blocks.
func recommendedActions(assessment, lower string) []string {
	var actions []string
	if strings.Contains(assessment, "HIGH RISK") {
		actions = append(actions, urgentCareActions...)
	}
	if strings.Contains(assessment, "MODERATE RISK") {
		actions = append(actions, followUpActions...)
	}
	actions = append(actions, generalActions...)
	if strings.Contains(lower, "medication") || strings.Contains(lower, "prescription") {
		actions = append(actions, medicationActions...)
	}
	return actions
}
