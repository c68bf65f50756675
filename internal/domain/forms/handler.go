package forms

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chw/forms/internal/formengine/wire"
	"github.com/chw/forms/internal/platform/auth"
	"github.com/chw/forms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleHCW))
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))

	admin.POST("/form-templates", h.CreateTemplate)
	read.GET("/form-templates", h.ListTemplates)
	read.GET("/form-templates/:id", h.GetTemplate)
	read.GET("/form-templates/:id/form", h.RenderTemplate)
	admin.POST("/form-templates/:id/archive", h.ArchiveTemplate)

	read.POST("/form-responses", h.CreateResponse)
	read.GET("/form-responses", h.ListResponses)
	read.GET("/form-responses/:id", h.GetResponse)
	read.PUT("/form-responses/:id", h.UpdateResponse)
}

// httpError maps service errors to responses. Engine findings are returned
// as a body listing every problem.
func httpError(c echo.Context, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusUnprocessableEntity, ve)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Templates --

// CreateTemplate accepts a JSON template, or YAML when the content type says so.
func (h *Handler) CreateTemplate(c echo.Context) error {
	var in wire.Template
	if IsYAML(c.Request().Header.Get(echo.HeaderContentType)) {
		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		if in, err = DecodeTemplate(data); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	} else if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	t, err := h.svc.CreateTemplate(ctx, in, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, t.ToWire())
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, t.ToWire())
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := TemplateFilter{IncludeArchived: c.QueryParam("include_archived") == "true"}
	if v := c.QueryParam("classification_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid classification_id")
		}
		f.ClassificationID = &id
	}

	items, total, err := h.svc.ListTemplates(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	out := make([]wire.Template, len(items))
	for i, t := range items {
		out[i] = t.ToWire()
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset).WithLinks(c))
}

func (h *Handler) RenderTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	form, err := h.svc.RenderTemplate(c.Request().Context(), id,
		c.QueryParam("lang"), c.Request().Header.Get("Accept-Language"))
	if err != nil {
		return httpError(c, err)
	}
	c.Response().Header().Set("Content-Language", form.Language)
	return c.JSON(http.StatusOK, form)
}

// ArchiveTemplate archives a template version; ?archived=false restores it.
func (h *Handler) ArchiveTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	archived := true
	if v := c.QueryParam("archived"); v != "" {
		if archived, err = strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid archived flag")
		}
	}
	if err := h.svc.ArchiveTemplate(c.Request().Context(), id, archived); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Responses --

func (h *Handler) CreateResponse(c echo.Context) error {
	var body wire.CreateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	resp, err := h.svc.CreateResponse(ctx, body, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, resp.ToWire())
}

func (h *Handler) GetResponse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.GetResponse(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, resp.ToWire())
}

func (h *Handler) ListResponses(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListResponses(c.Request().Context(), c.QueryParam("patient_id"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(c, err)
	}
	out := make([]wire.Response, len(items))
	for i, r := range items {
		out[i] = r.ToWire()
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg.Limit, pg.Offset).WithLinks(c))
}

func (h *Handler) UpdateResponse(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var deltas []wire.EditDelta
	if err := c.Bind(&deltas); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.UpdateResponse(c.Request().Context(), id, deltas)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, resp.ToWire())
}
