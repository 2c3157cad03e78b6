package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidPayment = errors.New("invalid payment")
)

const messageField = "data"

// ImportQueue publishes payments to the Redis stream consumed by the import worker.
type ImportQueue struct {
	redisClient *redis.Client
	stream      string
}

func NewImportQueue(redisClient *redis.Client, stream string) *ImportQueue {
	return &ImportQueue{
		redisClient: redisClient,
		stream:      stream,
	}
}

func (q *ImportQueue) Publish(ctx context.Context, list []Payment) error {
	pipe := q.redisClient.Pipeline()
	for _, p := range list {
		data, err := EncodeMessage(p)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.stream,
			Values: map[string]interface{}{
				messageField: data,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish payments: %w", err)
	}
	return nil
}

func EncodeMessage(p Payment) (string, error) {
	if err := p.Check(); err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payment: %w", err)
	}
	return string(data), nil
}

// DecodeMessage reads a payment back from a stream entry.
func DecodeMessage(values map[string]interface{}) (Payment, error) {
	raw, ok := values[messageField].(string)
	if !ok {
		return Payment{}, fmt.Errorf("%w: missing %q field", ErrInvalidPayment, messageField)
	}

	var p Payment
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if err := p.Check(); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// Check rejects records the store cannot key.
func (p Payment) Check() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPayment)
	}
	return nil
}
