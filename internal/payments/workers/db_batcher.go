package workers

import (
	"context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"log/slog"
	"splitform/internal/payments"
	"time"
)

const (
	maxBatchSize   = 100
	maxBatchWindow = 50 * time.Millisecond
)

type PaymentWriter interface {
	Upsert(ctx context.Context, batch []payments.Payment) error
}

// FlushFunc receives the stream ids of a written batch. err is non-nil when
// the write failed and nothing in the batch was stored.
type FlushFunc func(messageIDs []string, err error)

type batchEntry struct {
	payment   payments.Payment
	messageID string
}

// DbBatcher groups imported payments and writes them by size or time window.
type DbBatcher struct {
	writer    PaymentWriter
	bufferCh  chan batchEntry
	onFlush   FlushFunc
	logger    *slog.Logger
	batchSize int
	window    time.Duration
}

func NewDbBatcher(writer PaymentWriter, logger *slog.Logger) *DbBatcher {
	return &DbBatcher{
		writer:    writer,
		bufferCh:  make(chan batchEntry, 10*maxBatchSize),
		logger:    logger,
		batchSize: maxBatchSize,
		window:    maxBatchWindow,
	}
}

// OnFlush registers the callback run after every write attempt. It must be
// set before Run starts.
func (db *DbBatcher) OnFlush(fn FlushFunc) {
	db.onFlush = fn
}

// PushPayment blocks while the buffer is full. Queuing is not storing: the
// caller learns the outcome for messageID through the OnFlush callback.
func (db *DbBatcher) PushPayment(ctx context.Context, payment payments.Payment, messageID string) error {
	select {
	case db.bufferCh <- batchEntry{payment: payment, messageID: messageID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run flushes until ctx is cancelled, then drains what is already buffered.
func (db *DbBatcher) Run(ctx context.Context) {
	var (
		batch      []batchEntry
		timer      *time.Timer
		timerCh    <-chan time.Time
		addToBatch = func(entry batchEntry) {
			batch = append(batch, entry)
			if len(batch) == 1 {
				if timer == nil {
					timer = time.NewTimer(db.window)
				} else {
					timer.Reset(db.window)
				}
				timerCh = timer.C
			}
			if len(batch) >= db.batchSize {
				db.flush(batch)
				batch = nil
				if timer != nil {
					timer.Stop()
				}
				timerCh = nil
			}
		}
	)

	for {
		select {
		case entry := <-db.bufferCh:
			addToBatch(entry)
		case <-timerCh:
			if len(batch) > 0 {
				db.logger.Debug("Flushing batch", "batchSize", len(batch))
				db.flush(batch)
				batch = nil
			}
			timerCh = nil
		case <-ctx.Done():
			batch = db.drain(batch)
			if len(batch) > 0 {
				db.flush(batch)
			}
			return
		}
	}
}

func (db *DbBatcher) drain(batch []batchEntry) []batchEntry {
	for {
		select {
		case entry := <-db.bufferCh:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
}

var tracer = otel.Tracer("db-batcher")

func (db *DbBatcher) flush(batch []batchEntry) {
	ctx, span := tracer.Start(
		context.Background(),
		"db_batcher.flush",
		trace.WithAttributes(
			attribute.Int("batch.size", len(batch)),
		),
	)
	defer span.End()

	rows := make([]payments.Payment, len(batch))
	ids := make([]string, 0, len(batch))
	for i, entry := range batch {
		rows[i] = entry.payment
		if entry.messageID != "" {
			ids = append(ids, entry.messageID)
		}
	}

	err := db.writer.Upsert(ctx, rows)
	if err != nil {
		db.logger.Error("failed to write payments", "batchSize", len(batch), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("rows.written", len(batch)))
	}

	if db.onFlush != nil {
		db.onFlush(ids, err)
	}
}
