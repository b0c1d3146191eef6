package triage

import (
	"strings"

	"github.com/careroute/careroute/internal/domain/registry"
)

// specialtyRule binds a specialty to the keywords that suggest it. Rules are
// evaluated in declaration order and the first match wins, so overlapping
// keywords resolve the same way every time.
type specialtyRule struct {
	specialty registry.Specialty
	keywords  []string
}

var specialtyRules = []specialtyRule{
	{registry.SpecialtyCardiology, []string{"heart", "chest pain", "palpitations", "blood pressure", "cardiac"}},
	{registry.SpecialtyNeurology, []string{"headache", "migraine", "dizziness", "seizure", "numbness", "memory"}},
	{registry.SpecialtyDermatology, []string{"skin", "rash", "acne", "mole", "itching"}},
	{registry.SpecialtyOrthopedics, []string{"bone", "joint", "back pain", "fracture", "knee", "shoulder"}},
	{registry.SpecialtyGastroenterology, []string{"stomach", "abdominal", "digestion", "nausea", "bowel"}},
	{registry.SpecialtyEndocrinology, []string{"diabetes", "thyroid", "hormone", "weight gain", "weight loss"}},
	{registry.SpecialtyPsychiatry, []string{"anxiety", "depression", "stress", "sleep", "mood"}},
	{registry.SpecialtyPediatrics, []string{"child", "baby", "infant", "vaccination"}},
}

// SuggestSpecialty maps lower-cased query text to the first specialty whose
// keyword list matches. Returns nil when nothing matches; general queries are
// handled by whichever doctor is assigned.
func SuggestSpecialty(lower string) *registry.Specialty {
	for _, rule := range specialtyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				s := rule.specialty
				return &s
			}
		}
	}
	return nil
}
