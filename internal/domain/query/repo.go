package query

import (
	"context"
	"errors"

	"github.com/careroute/careroute/pkg/pagination"
)

// ErrNotFound is returned by repositories when no query matches.
var ErrNotFound = errors.New("query not found")

// Repository is the persistence contract for medical queries. ListPending
// orders by priority rank descending then creation time ascending, so the
// most urgent and longest-waiting queries surface first. The other lists
// order newest first.
type Repository interface {
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, q *MedicalQuery) error
	GetByID(ctx context.Context, id string) (*MedicalQuery, error)
	Update(ctx context.Context, q *MedicalQuery) error
	ListByPatient(ctx context.Context, patientID string, pg pagination.Params) ([]*MedicalQuery, int, error)
	ListByDoctor(ctx context.Context, doctorID string, pg pagination.Params) ([]*MedicalQuery, int, error)
	ListPending(ctx context.Context, pg pagination.Params) ([]*MedicalQuery, int, error)
	AllByDoctor(ctx context.Context, doctorID string) ([]*MedicalQuery, error)
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, s Status) (int, error)
	CountActive(ctx context.Context) (int, error)
}
