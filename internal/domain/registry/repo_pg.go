package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careroute/careroute/internal/platform/db"
	"github.com/careroute/careroute/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, name, condition, email, date_of_birth, medical_history,
	assigned_doctor_id, is_active, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Condition, &p.Email, &p.DateOfBirth, &p.MedicalHistory,
		&p.AssignedDoctorID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	return &p, err
}

func (r *patientRepoPG) NextID(ctx context.Context) (string, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'patient' RETURNING value`).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("advancing patient counter: %w", err)
	}
	return fmt.Sprintf("p%d", n), nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, name, condition, email, date_of_birth, medical_history,
			assigned_doctor_id, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Name, p.Condition, p.Email, p.DateOfBirth, p.MedicalHistory,
		p.AssignedDoctorID, p.IsActive, p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailExists
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE email = $1`, email))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name=$2, condition=$3, email=$4, date_of_birth=$5,
			medical_history=$6, assigned_doctor_id=$7, is_active=$8, updated_at=$9
		WHERE id = $1`,
		p.ID, p.Name, p.Condition, p.Email, p.DateOfBirth,
		p.MedicalHistory, p.AssignedDoctorID, p.IsActive, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *patientRepoPG) listWhere(ctx context.Context, where string, pg pagination.Params, args ...interface{}) ([]*Patient, int, error) {
	pg = pg.Normalize()
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limited := append(args, pg.Limit, pg.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients `+where+
			fmt.Sprintf(` ORDER BY substring(id FROM 2)::int LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		limited...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) ListUnassigned(ctx context.Context, pg pagination.Params) ([]*Patient, int, error) {
	return r.listWhere(ctx, `WHERE assigned_doctor_id IS NULL`, pg)
}

func (r *patientRepoPG) ListByDoctor(ctx context.Context, doctorID string, pg pagination.Params) ([]*Patient, int, error) {
	return r.listWhere(ctx, `WHERE assigned_doctor_id = $1`, pg, doctorID)
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, name, specialties, is_active, is_accepting_patients,
	years_of_experience, average_response_time, satisfaction_rating,
	total_patients_managed, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialties []string
	err := row.Scan(&d.ID, &d.Name, &specialties, &d.IsActive, &d.IsAcceptingPatients,
		&d.YearsOfExperience, &d.AverageResponseTime, &d.SatisfactionRating,
		&d.TotalPatientsManaged, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Specialties = make([]Specialty, len(specialties))
	for i, s := range specialties {
		d.Specialties[i] = Specialty(s)
	}
	return &d, nil
}

func (r *doctorRepoPG) NextID(ctx context.Context) (string, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'doctor' RETURNING value`).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("advancing doctor counter: %w", err)
	}
	return fmt.Sprintf("d%d", n), nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	specialties := make([]string, len(d.Specialties))
	for i, s := range d.Specialties {
		specialties[i] = string(s)
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctors (id, name, specialties, is_active, is_accepting_patients,
			years_of_experience, average_response_time, satisfaction_rating,
			total_patients_managed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.Name, specialties, d.IsActive, d.IsAcceptingPatients,
		d.YearsOfExperience, d.AverageResponseTime, d.SatisfactionRating,
		d.TotalPatientsManaged, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id string) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	specialties := make([]string, len(d.Specialties))
	for i, s := range d.Specialties {
		specialties[i] = string(s)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET name=$2, specialties=$3, is_active=$4, is_accepting_patients=$5,
			years_of_experience=$6, average_response_time=$7, satisfaction_rating=$8,
			total_patients_managed=$9, updated_at=$10
		WHERE id = $1`,
		d.ID, d.Name, specialties, d.IsActive, d.IsAcceptingPatients,
		d.YearsOfExperience, d.AverageResponseTime, d.SatisfactionRating,
		d.TotalPatientsManaged, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, pg pagination.Params) ([]*Doctor, int, error) {
	pg = pg.Normalize()
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors ORDER BY substring(id FROM 2)::int LIMIT $1 OFFSET $2`,
		pg.Limit, pg.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) All(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors ORDER BY substring(id FROM 2)::int`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *doctorRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&n)
	return n, err
}
