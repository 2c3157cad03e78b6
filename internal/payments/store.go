package payments

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	position   BIGSERIAL,
	id         TEXT PRIMARY KEY,
	percentage DOUBLE PRECISION NULL
);
`

const upsertPayment = `
INSERT INTO payments (id, percentage) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET percentage = EXCLUDED.percentage
`

// PaymentStore is the Postgres-backed payments resource.
// Rows come back in insertion order so the form keeps source order.
type PaymentStore struct {
	dbpool *pgxpool.Pool
	logger *slog.Logger
}

func NewPaymentStore(dbpool *pgxpool.Pool, logger *slog.Logger) *PaymentStore {
	return &PaymentStore{
		dbpool: dbpool,
		logger: logger,
	}
}

func (ps *PaymentStore) EnsureSchema(ctx context.Context) error {
	if _, err := ps.dbpool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}
	return nil
}

func (ps *PaymentStore) List(ctx context.Context) ([]Payment, error) {
	rows, err := ps.dbpool.Query(ctx, "SELECT id, percentage FROM payments ORDER BY position")
	if err != nil {
		return nil, err
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.Percentage)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan payments: %w", err)
	}

	if list == nil {
		list = []Payment{}
	}
	return list, nil
}

func (ps *PaymentStore) Summary(ctx context.Context) (*Summary, error) {
	const query = `
	SELECT COUNT(*) AS total,
	       COUNT(percentage) AS with_percentage,
	       COALESCE(SUM(percentage), 0) AS assigned_percentage
	FROM payments;
	`

	var s Summary
	if err := ps.dbpool.QueryRow(ctx, query).Scan(&s.Total, &s.WithPercentage, &s.AssignedPercentage); err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert writes a batch of payments in one round trip.
func (ps *PaymentStore) Upsert(ctx context.Context, batch []Payment) error {
	if len(batch) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, p := range batch {
		b.Queue(upsertPayment, p.ID, p.Percentage)
	}

	if err := ps.dbpool.SendBatch(ctx, b).Close(); err != nil {
		ps.logger.Error("failed to upsert payments", "batchSize", len(batch), "error", err)
		return err
	}
	return nil
}

func (ps *PaymentStore) Purge(ctx context.Context) error {
	_, err := ps.dbpool.Exec(ctx, "TRUNCATE TABLE payments")
	return err
}
