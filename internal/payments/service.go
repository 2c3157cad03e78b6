package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"io"
	"net/http"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from payments source")
)

// PaymentService reads the payment list from the remote payments resource.
// It issues exactly one request per call: no retry, no backoff.
type PaymentService struct {
	sourceURL  string
	httpClient *http.Client
}

func NewPaymentService(httpClient *http.Client, sourceURL string) *PaymentService {
	return &PaymentService{
		httpClient: httpClient,
		sourceURL:  sourceURL,
	}
}

func (s *PaymentService) GetPayments(ctx context.Context) ([]Payment, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "get-payments", trace.WithAttributes(
		attribute.String("service.url", s.sourceURL),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create HTTP request")
		return nil, fmt.Errorf("unable to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error sending HTTP request")
		return nil, fmt.Errorf("unable to fetch payments: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Payments source returned an error")
		return nil, err
	}

	var list []Payment
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode response body")
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}

	span.SetAttributes(attribute.Int("payments.count", len(list)))
	span.SetStatus(codes.Ok, "Payments fetched")
	return list, nil
}
