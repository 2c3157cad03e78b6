package handlers

import (
	"context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"net/http"
)

type purger interface {
	Purge(ctx context.Context) error
}

type PurgeHandler struct {
	store  purger
	logger *slog.Logger
}

func NewPurgeHandler(store purger, logger *slog.Logger) *PurgeHandler {
	return &PurgeHandler{
		store:  store,
		logger: logger,
	}
}

func (h *PurgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("purge-payments-handler")
	ctx, span := tracer.Start(r.Context(), "purge-payments-handler", trace.WithAttributes(
		attribute.String("handler", "purge-payments"),
	))
	defer span.End()

	if err := h.store.Purge(ctx); err != nil {
		span.RecordError(err)
		h.logger.Error("Error purging payments", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
