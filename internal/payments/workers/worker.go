package workers

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"log/slog"
	"splitform/internal/payments"
	"strings"
	"sync/atomic"
	"time"
)

const (
	readCount  = 200
	readBlock  = time.Second
	ackTimeout = 5 * time.Second
)

// ImportWorker consumes the payment import stream and hands records to the
// batcher. Entries are acked once their batch is stored; a failed write
// leaves them pending and the next read re-delivers this consumer's backlog.
type ImportWorker struct {
	redisClient *redis.Client
	batcher     *DbBatcher
	logger      *slog.Logger
	stream      string
	group       string
	consumer    string

	retryPending atomic.Bool

	messagesTotal  int64
	messagesFailed int64
}

func NewImportWorker(redisClient *redis.Client, batcher *DbBatcher, stream, group, consumer string, logger *slog.Logger) *ImportWorker {
	w := &ImportWorker{
		redisClient: redisClient,
		batcher:     batcher,
		logger:      logger,
		stream:      stream,
		group:       group,
		consumer:    consumer,
	}
	batcher.OnFlush(w.handleFlush)
	// pick up anything a previous run left unacked
	w.retryPending.Store(true)
	return w
}

func (w *ImportWorker) EnsureGroup(ctx context.Context) error {
	err := w.redisClient.XGroupCreateMkStream(ctx, w.stream, w.group, "$").Err()
	if err != nil && !isGroupExistsErr(err) {
		return err
	}
	return nil
}

func isGroupExistsErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Run reads the stream until ctx is cancelled.
func (w *ImportWorker) Run(ctx context.Context) error {
	for {
		streams, err := w.read(ctx)

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			w.logger.Error("failed to read import stream", "consumer", w.consumer, "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			if len(stream.Messages) == 0 {
				continue
			}
			w.ack(ctx, w.Process(ctx, stream.Messages))
		}
	}
}

// read fetches new entries, or this consumer's pending ones after a failed write.
func (w *ImportWorker) read(ctx context.Context) ([]redis.XStream, error) {
	args := &redis.XReadGroupArgs{
		Group:    w.group,
		Consumer: w.consumer,
		Streams:  []string{w.stream, ">"},
		Block:    readBlock,
		Count:    readCount,
	}
	if w.retryPending.CompareAndSwap(true, false) {
		args.Streams = []string{w.stream, "0"}
		args.Block = -1
	}
	return w.redisClient.XReadGroup(ctx, args).Result()
}

// Process decodes a batch of stream entries and queues the valid ones. It
// returns the ids of malformed entries, which can be acked and dropped right
// away; valid entries are acked by handleFlush once stored.
func (w *ImportWorker) Process(ctx context.Context, messages []redis.XMessage) []string {
	tr := otel.Tracer("import-worker")
	ctx, span := tr.Start(ctx, "process-batch")
	defer span.End()

	var dropped []string
	queued := 0
	for _, msg := range messages {
		w.messagesTotal++

		p, err := payments.DecodeMessage(msg.Values)
		if err != nil {
			w.messagesFailed++
			w.logger.Warn("dropping invalid import message", "messageId", msg.ID, "error", err)
			dropped = append(dropped, msg.ID)
			continue
		}

		if err := w.batcher.PushPayment(ctx, p, msg.ID); err != nil {
			// the entry stays pending for this consumer
			w.logger.Warn("import interrupted", "messageId", msg.ID, "error", err)
			break
		}
		queued++
	}

	span.SetAttributes(
		attribute.Int("batch.size", len(messages)),
		attribute.Int("batch.queued", queued),
		attribute.Int("batch.dropped", len(dropped)),
	)
	w.logger.Debug("Processed messages", "consumer", w.consumer, "batchSize", len(messages), "total", w.messagesTotal, "failed", w.messagesFailed)
	return dropped
}

func (w *ImportWorker) handleFlush(ids []string, err error) {
	if err != nil {
		w.logger.Warn("batch not stored, keeping entries pending", "count", len(ids), "error", err)
		w.retryPending.Store(true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	w.ack(ctx, ids)
}

func (w *ImportWorker) ack(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := w.redisClient.XAck(ctx, w.stream, w.group, ids...).Err(); err != nil {
		w.logger.Error("failed to ack messages", "count", len(ids), "error", err)
	}
}
