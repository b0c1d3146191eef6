package registry

import (
	"context"
	"errors"

	"github.com/careroute/careroute/pkg/pagination"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrEmailExists     = errors.New("email already registered")
)

type PatientRepository interface {
	// NextID allocates the next patient id ("p1", "p2", ...). Allocation is
	// durable: ids are never reissued, even across restarts.
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	ListUnassigned(ctx context.Context, pg pagination.Params) ([]*Patient, int, error)
	ListByDoctor(ctx context.Context, doctorID string, pg pagination.Params) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)
}

type DoctorRepository interface {
	// NextID allocates the next doctor id ("d1", "d2", ...).
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, pg pagination.Params) ([]*Doctor, int, error)
	// All returns every doctor in registration order, unpaginated. The
	// assignment engine scores the full roster when picking a doctor.
	All(ctx context.Context) ([]*Doctor, error)
	Count(ctx context.Context) (int, error)
}
