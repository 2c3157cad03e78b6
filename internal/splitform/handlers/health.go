package handlers

import (
	"github.com/labstack/echo/v4"
	"net/http"
)

// SourceStatus reports whether the payments source looked healthy on the last check.
type SourceStatus interface {
	Failing() bool
}

type HealthHandler struct {
	source SourceStatus
}

func NewHealthHandler(source SourceStatus) *HealthHandler {
	return &HealthHandler{source: source}
}

type healthResponse struct {
	Status        string `json:"status"`
	SourceFailing bool   `json:"sourceFailing"`
}

// Handle always answers 200 while the API is up; upstream trouble is only reported.
func (h *HealthHandler) Handle(c echo.Context) error {
	failing := h.source != nil && h.source.Failing()
	status := "ok"
	if failing {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:        status,
		SourceFailing: failing,
	})
}
