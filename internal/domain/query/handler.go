package query

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careroute/careroute/internal/platform/auth"
	"github.com/careroute/careroute/pkg/apperror"
	"github.com/careroute/careroute/pkg/pagination"
)

// Handler exposes the query lifecycle over REST.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the query endpoints. Static paths are registered
// before parameterized ones so /queries/pending is never captured by :id.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/queries", h.Submit, auth.RequireRole("patient"))
	api.GET("/queries/pending", h.ListPending, auth.RequireRole("doctor"))
	api.GET("/queries/:id", h.Get)
	api.POST("/queries/:id/take", h.Take, auth.RequireRole("doctor"))
	api.POST("/queries/:id/respond", h.Respond, auth.RequireRole("doctor"))
	api.GET("/patients/:id/queries", h.ListByPatient)
	api.GET("/doctors/:id/queries", h.ListByDoctor, auth.RequireRole("doctor"))
	api.GET("/stats", h.Stats)
}

func (h *Handler) Submit(c echo.Context) error {
	var req SubmitInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	q, err := h.svc.Submit(c.Request().Context(), req)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) Get(c echo.Context) error {
	q, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	queries, total, err := h.svc.ListPending(c.Request().Context(), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(queries, total, pg))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pg := pagination.FromContext(c)
	queries, total, err := h.svc.ListByPatient(c.Request().Context(), c.Param("id"), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(queries, total, pg))
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	pg := pagination.FromContext(c)
	queries, total, err := h.svc.ListByDoctor(c.Request().Context(), c.Param("id"), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(queries, total, pg))
}

type takeRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) Take(c echo.Context) error {
	var req takeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DoctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}

	q, err := h.svc.Take(c.Request().Context(), c.Param("id"), req.DoctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, q)
}

type respondRequest struct {
	DoctorID string `json:"doctor_id"`
	Response string `json:"response"`
}

func (h *Handler) Respond(c echo.Context) error {
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DoctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}

	q, err := h.svc.Respond(c.Request().Context(), c.Param("id"), req.DoctorID, req.Response)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, stats)
}

