package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"net/http"
	"splitform/internal/splitform"
	"time"
)

type FormHandler struct {
	fetcher  splitform.PaymentFetcher
	sessions splitform.SessionStore
	rules    splitform.Rules
	logger   *slog.Logger
	now      func() time.Time
}

func NewFormHandler(fetcher splitform.PaymentFetcher, sessions splitform.SessionStore, rules splitform.Rules, logger *slog.Logger) *FormHandler {
	return &FormHandler{
		fetcher:  fetcher,
		sessions: sessions,
		rules:    rules,
		logger:   logger,
		now:      time.Now,
	}
}

type formResponse struct {
	ID         string                `json:"id"`
	State      splitform.State       `json:"state"`
	Form       *splitform.Form       `json:"form,omitempty"`
	Validation *splitform.Validation `json:"validation,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type methodPatch struct {
	Index      int      `json:"index"`
	Percentage *float64 `json:"percentage"`
}

type patchRequest struct {
	Observations *string       `json:"observations"`
	Methods      []methodPatch `json:"methods"`
}

type saveResponse struct {
	ID         string               `json:"id"`
	Saved      json.RawMessage      `json:"saved"`
	Validation splitform.Validation `json:"validation"`
}

var tracer = otel.Tracer("form-handler")

func startSpan(c echo.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(c.Request().Context(), name, trace.WithAttributes(
		attribute.String("handler", name),
		attribute.String("form.id", c.Param("id")),
	))
}

// Open builds a new form from the payments source and keeps it as a session.
func (h *FormHandler) Open(c echo.Context) error {
	ctx, span := startSpan(c, "open-form")
	defer span.End()

	ctrl := splitform.NewController(h.fetcher, h.rules, h.logger)
	sess := splitform.NewSession(h.now())

	fetchErr := ctrl.Initialize(ctx)
	sess.State = ctrl.State()
	sess.Form = ctrl.Form()

	if err := h.sessions.Put(ctx, sess); err != nil {
		span.RecordError(err)
		h.logger.Error("failed to store session", "id", sess.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to store form")
	}

	if fetchErr != nil {
		span.RecordError(fetchErr)
		return c.JSON(http.StatusBadGateway, formResponse{
			ID:    sess.ID,
			State: sess.State,
			Error: splitform.ErrFetchPayment.Error(),
		})
	}

	v, _ := ctrl.Validation()
	span.SetAttributes(attribute.Int("form.methods", len(sess.Form.Methods)))
	return c.JSON(http.StatusCreated, formResponse{
		ID:         sess.ID,
		State:      sess.State,
		Form:       sess.Form,
		Validation: &v,
	})
}

func (h *FormHandler) Get(c echo.Context) error {
	ctx, span := startSpan(c, "get-form")
	defer span.End()

	sess, err := h.load(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		return err
	}

	resp := formResponse{ID: sess.ID, State: sess.State}
	if sess.Form != nil {
		v := splitform.Validate(sess.Form, h.rules)
		resp.Form = sess.Form
		resp.Validation = &v
	}
	return c.JSON(http.StatusOK, resp)
}

// Update applies edits and re-validates the whole form.
func (h *FormHandler) Update(c echo.Context) error {
	ctx, span := startSpan(c, "update-form")
	defer span.End()

	var req patchRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := h.load(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		return err
	}

	ctrl := splitform.NewController(h.fetcher, h.rules, h.logger)
	v, err := ctrl.Load(sess.Form)
	if errors.Is(err, splitform.ErrNoForm) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	if req.Observations != nil {
		v, _ = ctrl.SetObservations(*req.Observations)
	}
	for _, m := range req.Methods {
		v, err = ctrl.SetPercentage(m.Index, m.Percentage)
		if errors.Is(err, splitform.ErrMethodIndex) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	sess.Form = ctrl.Form()
	if err := h.sessions.Put(ctx, sess); err != nil {
		span.RecordError(err)
		h.logger.Error("failed to store session", "id", sess.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to store form")
	}

	span.SetAttributes(attribute.Bool("form.valid", v.Valid))
	return c.JSON(http.StatusOK, formResponse{
		ID:         sess.ID,
		State:      sess.State,
		Form:       sess.Form,
		Validation: &v,
	})
}

// Save logs the serialized form value. Nothing is persisted.
func (h *FormHandler) Save(c echo.Context) error {
	ctx, span := startSpan(c, "save-form")
	defer span.End()

	sess, err := h.load(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		return err
	}

	ctrl := splitform.NewController(h.fetcher, h.rules, h.logger.With("id", sess.ID))
	v, err := ctrl.Load(sess.Form)
	if errors.Is(err, splitform.ErrNoForm) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	data, err := ctrl.Save()
	if err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, saveResponse{
		ID:         sess.ID,
		Saved:      data,
		Validation: v,
	})
}

func (h *FormHandler) Delete(c echo.Context) error {
	ctx, span := startSpan(c, "delete-form")
	defer span.End()

	err := h.sessions.Delete(ctx, c.Param("id"))
	if errors.Is(err, splitform.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("failed to delete session", "id", c.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to delete form")
	}
	return c.NoContent(http.StatusNoContent)
}

// Validate checks a posted form without touching any session.
func (h *FormHandler) Validate(c echo.Context) error {
	_, span := startSpan(c, "validate-form")
	defer span.End()

	var f splitform.Form
	if err := c.Bind(&f); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	return c.JSON(http.StatusOK, splitform.Validate(&f, h.rules))
}

func (h *FormHandler) load(ctx context.Context, id string) (*splitform.Session, error) {
	sess, err := h.sessions.Get(ctx, id)
	if errors.Is(err, splitform.ErrSessionNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		h.logger.Error("failed to load session", "id", id, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "unable to load form")
	}
	return sess, nil
}

// Register mounts the form routes on e.
func Register(e *echo.Echo, h *FormHandler) {
	e.POST("/forms", h.Open)
	e.POST("/forms/validate", h.Validate)
	e.GET("/forms/:id", h.Get)
	e.PATCH("/forms/:id", h.Update)
	e.POST("/forms/:id/save", h.Save)
	e.DELETE("/forms/:id", h.Delete)
}
