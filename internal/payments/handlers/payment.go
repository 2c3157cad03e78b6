package handlers

import (
	"context"
	"errors"
	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"net/http"
	"splitform/internal/payments"
)

type paymentLister interface {
	List(ctx context.Context) ([]payments.Payment, error)
}

type importPublisher interface {
	Publish(ctx context.Context, list []payments.Payment) error
}

// ListHandler serves the payment list the split form is built from.
type ListHandler struct {
	store  paymentLister
	logger *slog.Logger
}

func NewListHandler(store paymentLister, logger *slog.Logger) *ListHandler {
	return &ListHandler{
		store:  store,
		logger: logger,
	}
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list payments", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// ImportHandler accepts a JSON array of payments and queues them for the import worker.
type ImportHandler struct {
	queue  importPublisher
	logger *slog.Logger
}

func NewImportHandler(queue importPublisher, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		queue:  queue,
		logger: logger,
	}
}

func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("import-handler")
	ctx, span := tracer.Start(r.Context(), "import-handler", trace.WithAttributes(
		attribute.String("handler", "import"),
	))
	defer span.End()

	var list []payments.Payment
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&list); err != nil {
		span.RecordError(err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.Int("payments.count", len(list)))

	if err := h.queue.Publish(ctx, list); err != nil {
		span.RecordError(err)
		if errors.Is(err, payments.ErrInvalidPayment) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("error while publishing payments", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigFastest.NewEncoder(w).Encode(v)
}
