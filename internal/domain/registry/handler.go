package registry

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/careroute/careroute/internal/platform/auth"
	"github.com/careroute/careroute/pkg/apperror"
	"github.com/careroute/careroute/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.RegisterPatient)
	api.GET("/patients", h.FindPatientByEmail)
	api.GET("/patients/unassigned", h.ListUnassignedPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients/:id/assign", h.AssignPatient)
	api.POST("/patients/:id/unassign", h.UnassignPatient)

	api.POST("/doctors", h.RegisterDoctor)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/patients", h.ListDoctorPatients)
	api.PUT("/doctors/:id/availability", h.SetDoctorAvailability, auth.RequireRole("doctor"))
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in RegisterPatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), in)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) FindPatientByEmail(c echo.Context) error {
	p, err := h.svc.FindPatientByEmail(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListUnassignedPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUnassignedPatients(c.Request().Context(), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type assignRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) AssignPatient(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	p, err := h.svc.AssignPatientToDoctor(c.Request().Context(), c.Param("id"), req.DoctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UnassignPatient(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	p, err := h.svc.UnassignPatient(c.Request().Context(), c.Param("id"), req.DoctorID)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var in RegisterDoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RegisterDoctor(c.Request().Context(), in)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	d, err := h.svc.GetDoctor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListDoctorPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctorPatients(c.Request().Context(), c.Param("id"), pg)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) SetDoctorAvailability(c echo.Context) error {
	var in AvailabilityInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.SetDoctorAvailability(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
