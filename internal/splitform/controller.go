package splitform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"splitform/internal/payments"
	"sync"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

var (
	ErrNoForm       = errors.New("form is not initialized")
	ErrMethodIndex  = errors.New("method index out of range")
	ErrFetchPayment = errors.New("unable to load payments")
)

type PaymentFetcher interface {
	GetPayments(ctx context.Context) ([]payments.Payment, error)
}

// Controller owns one split form through its lifecycle:
// loading, then ready once payments are fetched, or failed when the
// first fetch errors. Every mutation re-runs validation.
type Controller struct {
	fetcher    PaymentFetcher
	rules      Rules
	validators []FormValidator
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	form       *Form
	validation Validation
}

func NewController(fetcher PaymentFetcher, rules Rules, logger *slog.Logger) *Controller {
	return &Controller{
		fetcher:    fetcher,
		rules:      rules,
		validators: rules.Validators(),
		logger:     logger,
		state:      StateLoading,
	}
}

// Initialize fetches the payments and rebuilds the form from scratch.
// A failed fetch is logged and returned; an existing form is left untouched,
// otherwise the controller moves to StateFailed with no form.
func (c *Controller) Initialize(ctx context.Context) error {
	list, err := c.fetcher.GetPayments(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to fetch payments", "error", err)
		if c.form == nil {
			c.state = StateFailed
		}
		return fmt.Errorf("%w: %w", ErrFetchPayment, err)
	}

	c.form = Build(list)
	c.state = StateReady
	c.validation = validate(c.form, c.rules, c.validators)

	c.logger.Debug("form built", "methods", len(c.form.Methods))
	return nil
}

// Load restores a previously built form, e.g. one kept in a session.
// A nil form is rejected with ErrNoForm and the controller is left as is.
func (c *Controller) Load(f *Form) (Validation, error) {
	if f == nil {
		return Validation{}, ErrNoForm
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.form = f.Clone()
	c.state = StateReady
	c.validation = validate(c.form, c.rules, c.validators)
	return c.validation, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Form returns a copy of the current form, or nil before a successful fetch.
func (c *Controller) Form() *Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Clone()
}

func (c *Controller) Validation() (Validation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form == nil {
		return Validation{}, ErrNoForm
	}
	return c.validation, nil
}

func (c *Controller) SetPercentage(index int, p *float64) (Validation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form == nil {
		return Validation{}, ErrNoForm
	}
	if index < 0 || index >= len(c.form.Methods) {
		return Validation{}, fmt.Errorf("%w: %d", ErrMethodIndex, index)
	}

	c.form.Methods[index].Percentage = copyPercentage(p)
	c.validation = validate(c.form, c.rules, c.validators)
	return c.validation, nil
}

func (c *Controller) SetObservations(s string) (Validation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form == nil {
		return Validation{}, ErrNoForm
	}

	c.form.Observations = s
	c.validation = validate(c.form, c.rules, c.validators)
	return c.validation, nil
}

// Save serializes the current form value and logs it. Nothing is sent anywhere.
func (c *Controller) Save() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form == nil {
		return nil, ErrNoForm
	}

	data, err := json.Marshal(c.form)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize form: %w", err)
	}

	c.logger.Info("Saved", "form", string(data), "valid", c.validation.Valid)
	return data, nil
}
