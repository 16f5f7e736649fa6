package chart

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dischargeflow/dischargeflow/internal/platform/auth"
	"github.com/dischargeflow/dischargeflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.StaffRoles()...))
	staff.GET("/patients/:id/labs", h.ListLabs)
	staff.GET("/patients/:id/medications", h.ListMedications)
	staff.GET("/patients/:id/billing", h.ListBillingItems)
	staff.GET("/patients/:id/insurance", h.GetInsurance)
	staff.GET("/patients/:id/notes", h.ListNotes)
	staff.GET("/patients/:id/timeline", h.GetTimeline)
	staff.GET("/patients/:id/dashboard", h.GetDashboard)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
	clinical.POST("/patients/:id/labs", h.OrderLab)
	clinical.PUT("/labs/:id", h.UpdateLab)
	clinical.POST("/patients/:id/medications", h.PrescribeMedication)
	clinical.PUT("/medications/:id", h.UpdateMedication)
	clinical.POST("/patients/:id/notes", h.AddNote)

	desk := api.Group("", auth.RequireRole(auth.RoleBilling, auth.RoleReceptionist))
	desk.POST("/patients/:id/billing", h.AddBillingItem)
	desk.PUT("/billing/:id", h.UpdateBillingItem)
	desk.POST("/patients/:id/insurance", h.AddInsurance)
	desk.PUT("/patients/:id/insurance", h.UpdateInsurance)
	desk.DELETE("/patients/:id/insurance", h.DeleteInsurance)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actorInfo(c echo.Context) (string, string) {
	ctx := c.Request().Context()
	return auth.NameFromContext(ctx), auth.RoleFromContext(ctx)
}

// -- Labs --

func (h *Handler) OrderLab(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var l LabTest
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.PatientID = patientID
	actor, role := actorInfo(c)
	if err := h.svc.OrderLab(c.Request().Context(), &l, actor, role); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListLabs(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	labs, err := h.svc.ListLabs(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, labs)
}

func (h *Handler) UpdateLab(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var l LabTest
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, role := actorInfo(c)
	updated, err := h.svc.UpdateLab(c.Request().Context(), id, &l, actor, role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// -- Medications --

func (h *Handler) PrescribeMedication(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.PatientID = patientID
	actor, role := actorInfo(c)
	if err := h.svc.PrescribeMedication(c.Request().Context(), &m, actor, role); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	meds, err := h.svc.ListMedications(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, meds)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, role := actorInfo(c)
	updated, err := h.svc.UpdateMedication(c.Request().Context(), id, &m, actor, role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// -- Billing --

func (h *Handler) AddBillingItem(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var b BillingItem
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.PatientID = patientID
	actor, role := actorInfo(c)
	if err := h.svc.AddBillingItem(c.Request().Context(), &b, actor, role); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBillingItems(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListBillingItems(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateBillingItem(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var b BillingItem
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, role := actorInfo(c)
	updated, err := h.svc.UpdateBillingItem(c.Request().Context(), id, &b, actor, role)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// -- Insurance --

func (h *Handler) AddInsurance(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins.PatientID = patientID
	if err := h.svc.AddInsurance(c.Request().Context(), &ins); err != nil {
		if errors.Is(err, ErrInsuranceExists) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) GetInsurance(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	ins, err := h.svc.GetInsurance(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) UpdateInsurance(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.UpdateInsurance(c.Request().Context(), patientID, &ins)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteInsurance(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveInsurance(c.Request().Context(), patientID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Notes --

func (h *Handler) AddNote(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var n Note
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.PatientID = patientID
	ctx := c.Request().Context()
	if n.Author == "" {
		n.Author = auth.NameFromContext(ctx)
	}
	if err := h.svc.AddNote(ctx, &n, auth.RoleFromContext(ctx)); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	notes, err := h.svc.ListNotes(c.Request().Context(), patientID, c.QueryParam("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, notes)
}

// -- Timeline / Dashboard --

func (h *Handler) GetTimeline(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	events, total, err := h.svc.GetTimeline(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDashboard(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	dash, err := h.svc.GetDashboard(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, dash)
}
