package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
	"github.com/careroute/careroute/internal/platform/db"
	"github.com/careroute/careroute/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type queryRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &queryRepoPG{pool: pool}
}

func (r *queryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const queryCols = `id, patient_id, title, description, status, priority, doctor_id, specialty,
	analysis, ai_draft_response, response, response_time_minutes,
	expected_response_minutes, requires_immediate_review, created_at, updated_at`

// pendingOrder ranks the review queue in SQL so pagination stays correct:
// highest priority first, oldest first within a priority.
const pendingOrder = `CASE priority
	WHEN 'emergency' THEN 4
	WHEN 'urgent' THEN 3
	WHEN 'high' THEN 2
	WHEN 'normal' THEN 1
	ELSE 0 END DESC, created_at ASC`

func (r *queryRepoPG) scanQuery(row pgx.Row) (*MedicalQuery, error) {
	var (
		q            MedicalQuery
		status       string
		priority     string
		specialty    *string
		analysisJSON []byte
	)
	err := row.Scan(&q.ID, &q.PatientID, &q.Title, &q.Description, &status, &priority,
		&q.DoctorID, &specialty, &analysisJSON, &q.AIDraftResponse, &q.Response,
		&q.ResponseTimeMinutes, &q.ExpectedResponseMinutes, &q.RequiresImmediateReview,
		&q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	q.Status = Status(status)
	q.Priority = Priority(priority)
	if specialty != nil {
		s := registry.Specialty(*specialty)
		q.Specialty = &s
	}
	if len(analysisJSON) > 0 {
		var an triage.Analysis
		if err := json.Unmarshal(analysisJSON, &an); err != nil {
			return nil, fmt.Errorf("decoding stored analysis: %w", err)
		}
		q.Analysis = &an
	}
	return &q, nil
}

func (r *queryRepoPG) NextID(ctx context.Context) (string, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'query' RETURNING value`).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("advancing query counter: %w", err)
	}
	return fmt.Sprintf("q%d", n), nil
}

func (r *queryRepoPG) Create(ctx context.Context, q *MedicalQuery) error {
	analysisJSON, err := marshalAnalysis(q.Analysis)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_queries (id, patient_id, title, description, status, priority,
			doctor_id, specialty, analysis, ai_draft_response, response,
			response_time_minutes, expected_response_minutes, requires_immediate_review,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		q.ID, q.PatientID, q.Title, q.Description, string(q.Status), string(q.Priority),
		q.DoctorID, specialtyText(q.Specialty), analysisJSON, q.AIDraftResponse, q.Response,
		q.ResponseTimeMinutes, q.ExpectedResponseMinutes, q.RequiresImmediateReview,
		q.CreatedAt, q.UpdatedAt)
	return err
}

func (r *queryRepoPG) GetByID(ctx context.Context, id string) (*MedicalQuery, error) {
	return r.scanQuery(r.conn(ctx).QueryRow(ctx,
		`SELECT `+queryCols+` FROM medical_queries WHERE id = $1`, id))
}

func (r *queryRepoPG) Update(ctx context.Context, q *MedicalQuery) error {
	analysisJSON, err := marshalAnalysis(q.Analysis)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_queries SET status=$2, priority=$3, doctor_id=$4, specialty=$5,
			analysis=$6, ai_draft_response=$7, response=$8, response_time_minutes=$9,
			expected_response_minutes=$10, requires_immediate_review=$11, updated_at=$12
		WHERE id = $1`,
		q.ID, string(q.Status), string(q.Priority), q.DoctorID, specialtyText(q.Specialty),
		analysisJSON, q.AIDraftResponse, q.Response, q.ResponseTimeMinutes,
		q.ExpectedResponseMinutes, q.RequiresImmediateReview, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queryRepoPG) ListByPatient(ctx context.Context, patientID string, pg pagination.Params) ([]*MedicalQuery, int, error) {
	return r.listWhere(ctx, `WHERE patient_id = $1`, `ORDER BY created_at DESC`, pg, patientID)
}

func (r *queryRepoPG) ListByDoctor(ctx context.Context, doctorID string, pg pagination.Params) ([]*MedicalQuery, int, error) {
	return r.listWhere(ctx, `WHERE doctor_id = $1`, `ORDER BY created_at DESC`, pg, doctorID)
}

func (r *queryRepoPG) ListPending(ctx context.Context, pg pagination.Params) ([]*MedicalQuery, int, error) {
	return r.listWhere(ctx, `WHERE status = 'pending'`, `ORDER BY `+pendingOrder, pg)
}

func (r *queryRepoPG) listWhere(ctx context.Context, where, order string, pg pagination.Params, args ...interface{}) ([]*MedicalQuery, int, error) {
	pg = pg.Normalize()
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_queries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitArgs := append(args, pg.Limit, pg.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM medical_queries %s %s LIMIT $%d OFFSET $%d`,
			queryCols, where, order, len(args)+1, len(args)+2),
		limitArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*MedicalQuery
	for rows.Next() {
		q, err := r.scanQuery(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, rows.Err()
}

// AllByDoctor loads the doctor's full query history for workload calculation.
func (r *queryRepoPG) AllByDoctor(ctx context.Context, doctorID string) ([]*MedicalQuery, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+queryCols+` FROM medical_queries WHERE doctor_id = $1 ORDER BY created_at`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MedicalQuery
	for rows.Next() {
		q, err := r.scanQuery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

func (r *queryRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_queries`).Scan(&n)
	return n, err
}

func (r *queryRepoPG) CountByStatus(ctx context.Context, s Status) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_queries WHERE status = $1`, string(s)).Scan(&n)
	return n, err
}

func (r *queryRepoPG) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_queries WHERE status <> 'completed'`).Scan(&n)
	return n, err
}

func marshalAnalysis(an *triage.Analysis) ([]byte, error) {
	if an == nil {
		return nil, nil
	}
	data, err := json.Marshal(an)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	return data, nil
}

func specialtyText(s *registry.Specialty) *string {
	if s == nil {
		return nil
	}
	text := string(*s)
	return &text
}
