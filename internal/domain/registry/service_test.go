package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/careroute/careroute/pkg/apperror"
	"github.com/careroute/careroute/pkg/pagination"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	store map[string]*Patient
	seq   int
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{store: make(map[string]*Patient)}
}

func (m *mockPatientRepo) NextID(_ context.Context) (string, error) {
	m.seq++
	return fmt.Sprintf("p%d", m.seq), nil
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.store {
		if existing.Email == p.Email {
			return ErrEmailExists
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByEmail(_ context.Context, email string) (*Patient, error) {
	for _, p := range m.store {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.store[p.ID]; !ok {
		return ErrPatientNotFound
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) ListUnassigned(_ context.Context, _ pagination.Params) ([]*Patient, int, error) {
	var r []*Patient
	for _, p := range m.store {
		if p.AssignedDoctorID == nil {
			cp := *p
			r = append(r, &cp)
		}
	}
	return r, len(r), nil
}

func (m *mockPatientRepo) ListByDoctor(_ context.Context, doctorID string, _ pagination.Params) ([]*Patient, int, error) {
	var r []*Patient
	for _, p := range m.store {
		if p.AssignedDoctorID != nil && *p.AssignedDoctorID == doctorID {
			cp := *p
			r = append(r, &cp)
		}
	}
	return r, len(r), nil
}

func (m *mockPatientRepo) Count(_ context.Context) (int, error) {
	return len(m.store), nil
}

type mockDoctorRepo struct {
	store map[string]*Doctor
	seq   int
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{store: make(map[string]*Doctor)}
}

func (m *mockDoctorRepo) NextID(_ context.Context) (string, error) {
	m.seq++
	return fmt.Sprintf("d%d", m.seq), nil
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id string) (*Doctor, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.store[d.ID]; !ok {
		return ErrDoctorNotFound
	}
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) List(_ context.Context, _ pagination.Params) ([]*Doctor, int, error) {
	var r []*Doctor
	for _, d := range m.store {
		cp := *d
		r = append(r, &cp)
	}
	return r, len(r), nil
}

func (m *mockDoctorRepo) All(_ context.Context) ([]*Doctor, error) {
	var r []*Doctor
	for _, d := range m.store {
		cp := *d
		r = append(r, &cp)
	}
	return r, nil
}

func (m *mockDoctorRepo) Count(_ context.Context) (int, error) {
	return len(m.store), nil
}

func newTestService() *Service {
	return NewService(newMockPatientRepo(), newMockDoctorRepo())
}

// -- Patient Tests --

func TestRegisterPatient_Success(t *testing.T) {
	svc := newTestService()
	p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name:      "Alice Moreau",
		Condition: "recurring migraines",
		Email:     "alice@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("expected first patient id p1, got %s", p.ID)
	}
	if p.IsActive {
		t.Error("new patients must start inactive")
	}
	if p.AssignedDoctorID != nil {
		t.Error("new patients must start unassigned")
	}
}

func TestRegisterPatient_SequentialIDs(t *testing.T) {
	svc := newTestService()
	for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{Name: "P", Email: email})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := fmt.Sprintf("p%d", i+1)
		if p.ID != want {
			t.Errorf("expected id %s, got %s", want, p.ID)
		}
	}
}

func TestRegisterPatient_Validation(t *testing.T) {
	svc := newTestService()
	cases := []struct {
		name string
		in   RegisterPatientInput
	}{
		{"missing name", RegisterPatientInput{Email: "a@x.com"}},
		{"missing email", RegisterPatientInput{Name: "A"}},
		{"malformed email", RegisterPatientInput{Name: "A", Email: "not-an-email"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterPatient(context.Background(), tc.in)
			if !apperror.IsCode(err, apperror.CodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegisterPatient_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	in := RegisterPatientInput{Name: "A", Email: "dup@example.com"}
	if _, err := svc.RegisterPatient(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.Name = "B"
	_, err := svc.RegisterPatient(context.Background(), in)
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("expected validation error for duplicate email, got %v", err)
	}
}

func TestRegisterPatient_EmailNormalized(t *testing.T) {
	svc := newTestService()
	p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "A", Email: "  MiXeD@Example.COM ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Email != "mixed@example.com" {
		t.Errorf("expected normalized email, got %s", p.Email)
	}
	found, err := svc.FindPatientByEmail(context.Background(), "mixed@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != p.ID {
		t.Errorf("expected to find %s, got %s", p.ID, found.ID)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetPatient(context.Background(), "p99")
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestFindPatientByEmail_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.FindPatientByEmail(context.Background(), "ghost@example.com")
	if !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

// -- Assignment Tests --

func seedPatientAndDoctor(t *testing.T, svc *Service) (*Patient, *Doctor) {
	t.Helper()
	p, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Alice", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("seeding patient: %v", err)
	}
	d, err := svc.RegisterDoctor(context.Background(), RegisterDoctorInput{
		Name:        "Dr. Chen",
		Specialties: []Specialty{SpecialtyCardiology},
	})
	if err != nil {
		t.Fatalf("seeding doctor: %v", err)
	}
	return p, d
}

func TestAssignPatientToDoctor_Success(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)

	updated, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AssignedDoctorID == nil || *updated.AssignedDoctorID != d.ID {
		t.Error("expected patient to be bound to the doctor")
	}
	if !updated.IsActive {
		t.Error("assigned patients must be active")
	}
}

func TestAssignPatientToDoctor_AlreadyAssigned(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)

	if _, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID)
	if !apperror.IsCode(err, apperror.CodeState) {
		t.Errorf("expected state error on double assignment, got %v", err)
	}
}

func TestAssignPatientToDoctor_MissingParties(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)

	if _, err := svc.AssignPatientToDoctor(context.Background(), "p99", d.ID); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not_found for unknown patient, got %v", err)
	}
	if _, err := svc.AssignPatientToDoctor(context.Background(), p.ID, "d99"); !apperror.IsCode(err, apperror.CodeNotFound) {
		t.Errorf("expected not_found for unknown doctor, got %v", err)
	}
}

func TestUnassignPatient_Success(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)
	if _, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := svc.UnassignPatient(context.Background(), p.ID, d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.AssignedDoctorID != nil {
		t.Error("expected assignment to be cleared")
	}
	if updated.IsActive {
		t.Error("unassigned patients must be inactive")
	}
}

func TestUnassignPatient_WrongDoctor(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)
	other, err := svc.RegisterDoctor(context.Background(), RegisterDoctorInput{Name: "Dr. Patel"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.UnassignPatient(context.Background(), p.ID, other.ID)
	if !apperror.IsCode(err, apperror.CodeAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}

	got, err := svc.GetPatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AssignedDoctorID == nil || *got.AssignedDoctorID != d.ID {
		t.Error("failed unassign must not change the assignment")
	}
}

func TestUnassignPatient_NotAssigned(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)

	_, err := svc.UnassignPatient(context.Background(), p.ID, d.ID)
	if !apperror.IsCode(err, apperror.CodeState) {
		t.Errorf("expected state error, got %v", err)
	}
}

func TestListUnassignedPatients(t *testing.T) {
	svc := newTestService()
	p, d := seedPatientAndDoctor(t, svc)
	p2, err := svc.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Bob", Email: "bob@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AssignPatientToDoctor(context.Background(), p.ID, d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := svc.ListUnassignedPatients(context.Background(), pagination.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != p2.ID {
		t.Errorf("expected only %s unassigned, got %d items", p2.ID, len(items))
	}
}

// -- Doctor Tests --

func TestRegisterDoctor_Success(t *testing.T) {
	svc := newTestService()
	rating := 8.5
	d, err := svc.RegisterDoctor(context.Background(), RegisterDoctorInput{
		Name:               "Dr. Chen",
		Specialties:        []Specialty{SpecialtyCardiology, SpecialtyGeneralPractice},
		YearsOfExperience:  12,
		SatisfactionRating: &rating,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != "d1" {
		t.Errorf("expected first doctor id d1, got %s", d.ID)
	}
	if !d.IsActive || !d.IsAcceptingPatients {
		t.Error("doctors must default to active and accepting")
	}
	if !d.HasSpecialty(SpecialtyCardiology) {
		t.Error("expected cardiology specialty")
	}
}

func TestRegisterDoctor_Validation(t *testing.T) {
	svc := newTestService()
	badRating := 11.0
	cases := []struct {
		name string
		in   RegisterDoctorInput
	}{
		{"missing name", RegisterDoctorInput{}},
		{"unknown specialty", RegisterDoctorInput{Name: "D", Specialties: []Specialty{"astrology"}}},
		{"negative experience", RegisterDoctorInput{Name: "D", YearsOfExperience: -1}},
		{"rating out of range", RegisterDoctorInput{Name: "D", SatisfactionRating: &badRating}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterDoctor(context.Background(), tc.in)
			if !apperror.IsCode(err, apperror.CodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSetDoctorAvailability(t *testing.T) {
	svc := newTestService()
	_, d := seedPatientAndDoctor(t, svc)

	off := false
	updated, err := svc.SetDoctorAvailability(context.Background(), d.ID, AvailabilityInput{
		IsAcceptingPatients: &off,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.IsAcceptingPatients {
		t.Error("expected accepting flag to be cleared")
	}
	if !updated.IsActive {
		t.Error("active flag must be untouched")
	}
}

func TestSpecialtyDisplayName(t *testing.T) {
	if SpecialtyCardiology.DisplayName() != "Cardiology" {
		t.Errorf("unexpected display name: %s", SpecialtyCardiology.DisplayName())
	}
	if SpecialtyGeneralPractice.DisplayName() != "General Practice" {
		t.Errorf("unexpected display name: %s", SpecialtyGeneralPractice.DisplayName())
	}
	if !SpecialtyNeurology.Valid() {
		t.Error("neurology must be a valid specialty")
	}
	if Specialty("astrology").Valid() {
		t.Error("unknown tags must not validate")
	}
}
