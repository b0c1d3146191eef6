package triage

import (
	"fmt"
	"strings"
)

const draftDisclaimer = "This is an automatically drafted response and will be reviewed by your doctor before any treatment decision. It is not a medical diagnosis. If your symptoms worsen or you believe you are experiencing an emergency, contact your local emergency services immediately."

// Composer renders an analysis into a draft reply for the assigned doctor to
// review. Output is deterministic for a given title and analysis.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

// Compose builds the patient-facing draft. Sections appear in fixed order,
// with the symptom warning and referral suggestion included only when the
// analysis produced them. The disclaimer is always last.
func (c *Composer) Compose(title string, an *Analysis) string {
	var b strings.Builder

	b.WriteString("Dear patient,\n\n")
	fmt.Fprintf(&b, "Thank you for your query regarding %q. Our care team has reviewed your message and prepared this preliminary response.\n\n", title)
	fmt.Fprintf(&b, "Assessment: %s\n\n", an.RiskAssessment)

	if len(an.RecommendedActions) > 0 {
		b.WriteString("Recommended next steps:\n")
		for _, action := range an.RecommendedActions {
			fmt.Fprintf(&b, "- %s\n", action)
		}
		b.WriteString("\n")
	}

	if len(an.FlaggedSymptoms) > 0 {
		fmt.Fprintf(&b, "Please note: the following symptoms mentioned in your message may need prompt attention: %s.\n\n",
			strings.Join(an.FlaggedSymptoms, ", "))
	}

	if an.SuggestedSpecialty != nil {
		fmt.Fprintf(&b, "Based on your description, a consultation with a %s specialist may be appropriate. Your doctor can arrange a referral if needed.\n\n",
			an.SuggestedSpecialty.DisplayName())
	}

	b.WriteString("---\n")
	b.WriteString(draftDisclaimer)
	b.WriteString("\n")

	return b.String()
}
