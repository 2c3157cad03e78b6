package handlers

import (
	"context"
	"net/http"
	"splitform/internal/payments"
	"splitform/internal/payments/workers"
)

type summaryReader interface {
	Summary(ctx context.Context) (*payments.Summary, error)
}

type SummaryHandler struct {
	store summaryReader
}

func NewSummaryHandler(store summaryReader) *SummaryHandler {
	return &SummaryHandler{
		store: store,
	}
}

func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Summary(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HealthHandler answers the source monitor of the form API.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workers.SourceHealth{Failing: false})
}
