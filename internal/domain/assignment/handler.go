package assignment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/triage"
	"github.com/careroute/careroute/internal/platform/auth"
	"github.com/careroute/careroute/pkg/apperror"
)

// Handler exposes doctor recommendations and workload over REST.
type Handler struct {
	engine   *Engine
	analyzer *triage.Analyzer
	reg      *registry.Service
	queries  *query.Service
}

func NewHandler(engine *Engine, reg *registry.Service, queries *query.Service) *Handler {
	return &Handler{
		engine:   engine,
		analyzer: triage.NewAnalyzer(),
		reg:      reg,
		queries:  queries,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:id/workload", h.DoctorWorkload, auth.RequireRole("doctor"))
	api.GET("/queries/:id/recommendation", h.RecommendDoctor, auth.RequireRole("doctor"))
	api.POST("/patients/:id/auto-assign", h.AutoAssign, auth.RequireRole("doctor"))
}

func (h *Handler) DoctorWorkload(c echo.Context) error {
	doctorID := c.Param("id")
	queries, err := h.queries.AllByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, h.engine.Workload(doctorID, queries))
}

type recommendation struct {
	QueryID  string  `json:"query_id"`
	DoctorID *string `json:"doctor_id"`
}

// RecommendDoctor scores the current roster against an existing query using
// the analysis frozen at submission. doctor_id is null when the roster is
// empty.
func (h *Handler) RecommendDoctor(c echo.Context) error {
	ctx := c.Request().Context()
	q, err := h.queries.Get(ctx, c.Param("id"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	doctors, err := h.reg.AllDoctors(ctx)
	if err != nil {
		return apperror.ToHTTP(err)
	}

	rec := recommendation{QueryID: q.ID}
	if id, ok := h.engine.Assign(q, q.Analysis, doctors); ok {
		rec.DoctorID = &id
	}
	return c.JSON(http.StatusOK, rec)
}

// AutoAssign triages the patient's standing condition and assigns the
// best-scoring doctor.
func (h *Handler) AutoAssign(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := c.Param("id")

	p, err := h.reg.GetPatient(ctx, patientID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	if p.Assigned() {
		return apperror.ToHTTP(apperror.State("patient %s is already assigned to a doctor", patientID))
	}
	doctors, err := h.reg.AllDoctors(ctx)
	if err != nil {
		return apperror.ToHTTP(err)
	}

	an := h.analyzer.Analyze(p.Condition, "", p)
	doctorID, ok := h.engine.Assign(nil, an, doctors)
	if !ok {
		return apperror.ToHTTP(apperror.NotFound("no doctors available for assignment"))
	}

	assigned, err := h.reg.AssignPatientToDoctor(ctx, patientID, doctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, assigned)
}
