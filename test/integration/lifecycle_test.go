package integration

import (
	"net/http"
	"strings"
	"testing"

	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
)

type errorBody struct {
	Message string `json:"message"`
}

func TestFullQueryLifecycle(t *testing.T) {
	ts := newTestServer(t)

	doc := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{
		Name:              "Dr. Lena Fischer",
		Specialties:       []registry.Specialty{registry.SpecialtyOrthopedics},
		YearsOfExperience: 9,
	})
	if doc.ID != "d1" {
		t.Fatalf("first doctor id = %q, want d1", doc.ID)
	}

	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:        "Jonas Weber",
		Condition:   "knee strain",
		Email:       "jonas.weber@example.com",
		DateOfBirth: "1990-04-12",
	})
	if pat.ID != "p1" {
		t.Fatalf("first patient id = %q, want p1", pat.ID)
	}
	if pat.Assigned() || pat.IsActive {
		t.Fatal("new patient should start unassigned and inactive")
	}

	ts.mustAssign(t, pat.ID, doc.ID)

	q := ts.mustSubmit(t, query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Knee pain when running",
		Description: "My right knee aches after long runs and swells slightly overnight.",
	})
	if q.ID != "q1" {
		t.Fatalf("first query id = %q, want q1", q.ID)
	}
	if q.Status != query.StatusPending {
		t.Fatalf("submitted query status = %q, want pending", q.Status)
	}
	if q.DoctorID == nil || *q.DoctorID != doc.ID {
		t.Fatalf("query not pre-bound to assigned doctor: %+v", q.DoctorID)
	}
	if q.Priority != query.PriorityNormal {
		t.Fatalf("benign query priority = %q, want normal", q.Priority)
	}
	if q.ExpectedResponseMinutes != 480 {
		t.Fatalf("expected response minutes = %d, want 480", q.ExpectedResponseMinutes)
	}
	if q.Analysis == nil {
		t.Fatal("submitted query carries no analysis")
	}
	if q.Analysis.SuggestedSpecialty == nil || *q.Analysis.SuggestedSpecialty != registry.SpecialtyOrthopedics {
		t.Fatalf("suggested specialty = %v, want orthopedics", q.Analysis.SuggestedSpecialty)
	}
	if q.AIDraftResponse == nil || !strings.Contains(*q.AIDraftResponse, "Knee pain when running") {
		t.Fatal("draft response missing or does not reference the query title")
	}

	// Second query stays pending for the rest of the test.
	ts.mustSubmit(t, query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Follow-up on knee brace fit",
		Description: "The brace feels loose around the joint when I walk downhill.",
	})

	rec := ts.request(t, http.MethodGet, "/api/v1/queries/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("listing pending: status %d", rec.Code)
	}
	var pending queryList
	decodeJSON(t, rec, &pending)
	if pending.Total != 2 {
		t.Fatalf("pending total = %d, want 2", pending.Total)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/take",
		map[string]string{"doctor_id": doc.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("taking query: status %d, body %s", rec.Code, rec.Body.String())
	}
	var taken query.MedicalQuery
	decodeJSON(t, rec, &taken)
	if taken.Status != query.StatusDoctorReview {
		t.Fatalf("taken query status = %q, want doctor_review", taken.Status)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/respond",
		map[string]string{"doctor_id": doc.ID, "response": "Rest the knee for two weeks and ice after activity."})
	if rec.Code != http.StatusOK {
		t.Fatalf("responding: status %d, body %s", rec.Code, rec.Body.String())
	}
	var completed query.MedicalQuery
	decodeJSON(t, rec, &completed)
	if completed.Status != query.StatusCompleted {
		t.Fatalf("responded query status = %q, want completed", completed.Status)
	}
	if completed.Response == nil || *completed.Response == "" {
		t.Fatal("completed query has no response text")
	}
	if completed.ResponseTimeMinutes == nil {
		t.Fatal("completed query has no response time")
	}
	if completed.UpdatedAt.Before(completed.CreatedAt) {
		t.Fatal("updated_at went backwards")
	}

	var stats query.Stats
	rec = ts.request(t, http.MethodGet, "/api/v1/stats", nil)
	decodeJSON(t, rec, &stats)
	want := query.Stats{TotalPatients: 1, TotalDoctors: 1, TotalQueries: 2, PendingQueries: 1, CompletedQueries: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	// Workload reflects the same picture from the doctor's side.
	rec = ts.request(t, http.MethodGet, "/api/v1/doctors/"+doc.ID+"/workload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("workload: status %d", rec.Code)
	}
	var workload struct {
		PendingQueries   int `json:"pending_queries"`
		ActiveQueries    int `json:"active_queries"`
		CompletedQueries int `json:"completed_queries"`
	}
	decodeJSON(t, rec, &workload)
	if workload.PendingQueries != 1 || workload.ActiveQueries != 0 || workload.CompletedQueries != 1 {
		t.Fatalf("workload = %+v, want 1 pending / 0 active / 1 completed", workload)
	}
}

func TestSubmitRequiresAssignedDoctor(t *testing.T) {
	ts := newTestServer(t)

	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:      "Mara Holt",
		Condition: "seasonal allergies",
		Email:     "mara.holt@example.com",
	})

	rec := ts.request(t, http.MethodPost, "/api/v1/queries", query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Sneezing fits",
		Description: "Sneezing constantly every morning this week.",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("submit without assignment: status %d, want 400", rec.Code)
	}
	var body errorBody
	decodeJSON(t, rec, &body)
	if body.Message != "Patient must be assigned to a doctor before submitting queries" {
		t.Fatalf("unexpected error message: %q", body.Message)
	}

	// No query may have been created.
	var stats query.Stats
	rec = ts.request(t, http.MethodGet, "/api/v1/stats", nil)
	decodeJSON(t, rec, &stats)
	if stats.TotalQueries != 0 {
		t.Fatalf("total queries = %d after rejected submit, want 0", stats.TotalQueries)
	}
	rec = ts.request(t, http.MethodGet, "/api/v1/patients/"+pat.ID+"/queries", nil)
	var list queryList
	decodeJSON(t, rec, &list)
	if list.Total != 0 {
		t.Fatalf("patient query list total = %d, want 0", list.Total)
	}
}

func TestEmergencySubmission(t *testing.T) {
	ts := newTestServer(t)

	doc := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{
		Name:        "Dr. Iris Novak",
		Specialties: []registry.Specialty{registry.SpecialtyCardiology},
	})
	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:        "Tomas Lindgren",
		Condition:   "hypertension",
		Email:       "tomas.lindgren@example.com",
		DateOfBirth: "1985-09-30",
	})
	ts.mustAssign(t, pat.ID, doc.ID)

	q := ts.mustSubmit(t, query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Feeling unwell",
		Description: "I have chest pain and difficulty breathing",
	})

	if q.Priority != query.PriorityEmergency {
		t.Fatalf("priority = %q, want emergency", q.Priority)
	}
	if !q.RequiresImmediateReview {
		t.Fatal("emergency query must require immediate review")
	}
	if q.ExpectedResponseMinutes != 15 {
		t.Fatalf("expected response minutes = %d, want 15", q.ExpectedResponseMinutes)
	}
	if q.Analysis == nil {
		t.Fatal("no analysis on emergency query")
	}
	if !strings.HasPrefix(q.Analysis.RiskAssessment, "HIGH RISK — EMERGENCY DETECTED") {
		t.Fatalf("risk assessment = %q, want emergency-detected prefix", q.Analysis.RiskAssessment)
	}
	for _, symptom := range []string{"chest pain", "difficulty breathing"} {
		found := false
		for _, flagged := range q.Analysis.FlaggedSymptoms {
			if flagged == symptom {
				found = true
			}
		}
		if !found {
			t.Fatalf("flagged symptoms %v missing %q", q.Analysis.FlaggedSymptoms, symptom)
		}
	}
	if q.Specialty == nil || *q.Specialty != registry.SpecialtyCardiology {
		t.Fatalf("specialty = %v, want cardiology", q.Specialty)
	}
}

func TestRespondRequiresBoundDoctor(t *testing.T) {
	ts := newTestServer(t)

	docA := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{Name: "Dr. Asha Rao"})
	docB := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{Name: "Dr. Boris Malek"})
	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:      "Elin Dahl",
		Condition: "migraines",
		Email:     "elin.dahl@example.com",
	})
	ts.mustAssign(t, pat.ID, docA.ID)

	q := ts.mustSubmit(t, query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Morning headaches",
		Description: "Waking up with a dull headache most mornings lately.",
	})

	rec := ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/respond",
		map[string]string{"doctor_id": docB.ID, "response": "Try keeping a sleep log."})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("respond by wrong doctor: status %d, want 403", rec.Code)
	}
	var body errorBody
	decodeJSON(t, rec, &body)
	if !strings.Contains(body.Message, "not assigned to you") {
		t.Fatalf("error message = %q, want mention of not assigned to you", body.Message)
	}

	// The query is untouched.
	rec = ts.request(t, http.MethodGet, "/api/v1/queries/"+q.ID, nil)
	var after query.MedicalQuery
	decodeJSON(t, rec, &after)
	if after.Status != query.StatusPending {
		t.Fatalf("status after rejected respond = %q, want pending", after.Status)
	}
	if after.Response != nil {
		t.Fatal("response set despite rejected respond")
	}
	if !after.UpdatedAt.Equal(q.UpdatedAt) {
		t.Fatal("updated_at changed despite rejected respond")
	}
}

func TestIllegalTransitionsLeaveStateUntouched(t *testing.T) {
	ts := newTestServer(t)

	doc := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{Name: "Dr. Noor Haddad"})
	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:      "Piotr Kowalski",
		Condition: "back strain",
		Email:     "piotr.kowalski@example.com",
	})
	ts.mustAssign(t, pat.ID, doc.ID)

	q := ts.mustSubmit(t, query.SubmitInput{
		PatientID:   pat.ID,
		Title:       "Lower back stiffness",
		Description: "Stiff lower back after lifting boxes over the weekend.",
	})

	// Responding before taking is a state error, even for the bound doctor.
	rec := ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/respond",
		map[string]string{"doctor_id": doc.ID, "response": "Stretch daily."})
	if rec.Code != http.StatusConflict {
		t.Fatalf("respond on pending: status %d, want 409", rec.Code)
	}
	rec = ts.request(t, http.MethodGet, "/api/v1/queries/"+q.ID, nil)
	var after query.MedicalQuery
	decodeJSON(t, rec, &after)
	if after.Status != query.StatusPending || after.Response != nil {
		t.Fatalf("pending query mutated by rejected respond: %+v", after.Status)
	}

	// Complete it properly, then try to take it again.
	ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/take",
		map[string]string{"doctor_id": doc.ID})
	ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/respond",
		map[string]string{"doctor_id": doc.ID, "response": "Rest and gentle stretching for a week."})

	rec = ts.request(t, http.MethodPost, "/api/v1/queries/"+q.ID+"/take",
		map[string]string{"doctor_id": doc.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("take on completed: status %d, want 409", rec.Code)
	}
	rec = ts.request(t, http.MethodGet, "/api/v1/queries/"+q.ID, nil)
	decodeJSON(t, rec, &after)
	if after.Status != query.StatusCompleted {
		t.Fatalf("completed query mutated by rejected take: %q", after.Status)
	}
	if after.Response == nil || *after.Response != "Rest and gentle stretching for a week." {
		t.Fatal("completed response changed by rejected take")
	}
}

func TestStatsAndHealthAreReadOnly(t *testing.T) {
	ts := newTestServer(t)

	doc := ts.mustRegisterDoctor(t, registry.RegisterDoctorInput{Name: "Dr. Sam Ortiz"})
	pat := ts.mustRegisterPatient(t, registry.RegisterPatientInput{
		Name:      "Ida Berg",
		Condition: "asthma",
		Email:     "ida.berg@example.com",
	})
	ts.mustAssign(t, pat.ID, doc.ID)

	first := ts.request(t, http.MethodGet, "/api/v1/stats", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("stats: status %d", first.Code)
	}
	second := ts.request(t, http.MethodGet, "/api/v1/stats", nil)
	if first.Body.String() != second.Body.String() {
		t.Fatalf("stats changed between reads: %s vs %s", first.Body.String(), second.Body.String())
	}

	health := ts.request(t, http.MethodGet, "/health", nil)
	if health.Code != http.StatusOK {
		t.Fatalf("health: status %d", health.Code)
	}
	var status map[string]string
	decodeJSON(t, health, &status)
	if status["status"] != "ok" {
		t.Fatalf("health status = %q, want ok", status["status"])
	}

	third := ts.request(t, http.MethodGet, "/api/v1/stats", nil)
	if first.Body.String() != third.Body.String() {
		t.Fatal("health check mutated stats")
	}
}
