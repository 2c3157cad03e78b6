package workers

import (
	"context"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"splitform/internal/payments"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]payments.Payment
}

func (w *recordingWriter) Upsert(_ context.Context, batch []payments.Payment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]payments.Payment, len(batch))
	copy(cp, batch)
	w.batches = append(w.batches, cp)
	return nil
}

func (w *recordingWriter) written() []payments.Payment {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []payments.Payment
	for _, b := range w.batches {
		all = append(all, b...)
	}
	return all
}

func (w *recordingWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func TestDbBatcherFlushesOnWindow(t *testing.T) {
	writer := &recordingWriter{}
	b := NewDbBatcher(writer, discardLogger())
	b.window = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.PushPayment(ctx, payments.Payment{ID: id}, ""))
	}

	require.Eventually(t, func() bool { return len(writer.written()) == 3 }, time.Second, 5*time.Millisecond)
	got := writer.written()
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestDbBatcherFlushesOnSize(t *testing.T) {
	writer := &recordingWriter{}
	b := NewDbBatcher(writer, discardLogger())
	b.batchSize = 2
	b.window = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, b.PushPayment(ctx, payments.Payment{ID: id}, ""))
	}

	require.Eventually(t, func() bool { return writer.batchCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDbBatcherDrainsOnCancel(t *testing.T) {
	writer := &recordingWriter{}
	b := NewDbBatcher(writer, discardLogger())
	b.window = time.Hour

	for _, id := range []string{"a", "b"} {
		require.NoError(t, b.PushPayment(context.Background(), payments.Payment{ID: id}, ""))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	assert.Len(t, writer.written(), 2)
}

type failingWriter struct {
	calls atomic.Int32
}

func (w *failingWriter) Upsert(context.Context, []payments.Payment) error {
	w.calls.Add(1)
	return errors.New("connection refused")
}

const (
	testStream = "payments-import"
	testGroup  = "import"
)

// newStreamWorker starts an in-process redis with the consumer group created
// and one valid and one malformed entry delivered to worker-1.
func newStreamWorker(t *testing.T, writer PaymentWriter) (*ImportWorker, *DbBatcher, *redis.Client, []redis.XMessage) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	b := NewDbBatcher(writer, discardLogger())
	w := NewImportWorker(client, b, testStream, testGroup, "worker-1", discardLogger())
	require.NoError(t, w.EnsureGroup(ctx))
	require.NoError(t, w.EnsureGroup(ctx))

	require.NoError(t, payments.NewImportQueue(client, testStream).Publish(ctx, []payments.Payment{{ID: "visa"}}))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: testStream, Values: map[string]interface{}{"data": "not json"}}).Err())

	// nothing is pending yet, skip the startup backlog pass
	w.retryPending.Store(false)

	streams, err := w.read(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 2)
	return w, b, client, streams[0].Messages
}

func flushNow(b *DbBatcher) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	pending, err := client.XPending(context.Background(), testStream, testGroup).Result()
	require.NoError(t, err)
	return pending.Count
}

func TestImportWorkerProcess(t *testing.T) {
	b := NewDbBatcher(&recordingWriter{}, discardLogger())
	w := NewImportWorker(nil, b, testStream, testGroup, "worker-1", discardLogger())

	good, err := payments.EncodeMessage(payments.Payment{ID: "visa"})
	require.NoError(t, err)

	dropped := w.Process(context.Background(), []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"data": good}},
		{ID: "2-0", Values: map[string]interface{}{"data": "not json"}},
	})

	assert.True(t, w.retryPending.Load(), "first read replays the backlog")
	assert.Equal(t, []string{"2-0"}, dropped)
	assert.Equal(t, int64(2), w.messagesTotal)
	assert.Equal(t, int64(1), w.messagesFailed)

	queued := b.drain(nil)
	require.Len(t, queued, 1)
	assert.Equal(t, "1-0", queued[0].messageID)
	assert.Equal(t, "visa", queued[0].payment.ID)
}

func TestImportWorkerAcksAfterWrite(t *testing.T) {
	writer := &recordingWriter{}
	w, b, client, messages := newStreamWorker(t, writer)
	ctx := context.Background()

	w.ack(ctx, w.Process(ctx, messages))
	assert.Equal(t, int64(1), pendingCount(t, client), "valid entry is pending until stored")

	flushNow(b)
	require.Len(t, writer.written(), 1)
	assert.Equal(t, int64(0), pendingCount(t, client))
	assert.False(t, w.retryPending.Load())
}

func TestImportWorkerKeepsEntriesPendingWhenWriteFails(t *testing.T) {
	writer := &failingWriter{}
	w, b, client, messages := newStreamWorker(t, writer)
	ctx := context.Background()

	w.ack(ctx, w.Process(ctx, messages))
	flushNow(b)

	assert.Equal(t, int32(1), writer.calls.Load())
	assert.Equal(t, int64(1), pendingCount(t, client))
	require.True(t, w.retryPending.Load())

	streams, err := w.read(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)
	assert.Equal(t, messages[0].ID, streams[0].Messages[0].ID)

	p, err := payments.DecodeMessage(streams[0].Messages[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "visa", p.ID)
}

func TestDbBatcherReportsFlushedIDs(t *testing.T) {
	tests := []struct {
		name    string
		writer  PaymentWriter
		wantErr bool
	}{
		{name: "stored", writer: &recordingWriter{}},
		{name: "write failed", writer: &failingWriter{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewDbBatcher(tt.writer, discardLogger())
			var (
				gotIDs []string
				gotErr error
			)
			b.OnFlush(func(ids []string, err error) {
				gotIDs = append(gotIDs, ids...)
				gotErr = err
			})

			require.NoError(t, b.PushPayment(context.Background(), payments.Payment{ID: "visa"}, "1-0"))
			require.NoError(t, b.PushPayment(context.Background(), payments.Payment{ID: "cash"}, "1-1"))
			flushNow(b)

			assert.Equal(t, []string{"1-0", "1-1"}, gotIDs)
			if tt.wantErr {
				assert.Error(t, gotErr)
			} else {
				assert.NoError(t, gotErr)
			}
		})
	}
}

func TestIsGroupExistsErr(t *testing.T) {
	assert.True(t, isGroupExistsErr(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isGroupExistsErr(errors.New("ERR something else")))
	assert.False(t, isGroupExistsErr(nil))
}

func TestSourceMonitor(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"failing":false}`))
	}))
	defer srv.Close()

	m := NewSourceMonitor(srv.URL, 5*time.Millisecond, srv.Client(), discardLogger())
	assert.True(t, m.CheckedAt().IsZero())

	go m.StartMonitoring()
	defer m.Stop()

	require.Eventually(t, func() bool { return !m.CheckedAt().IsZero() }, time.Second, time.Millisecond)
	assert.False(t, m.Failing())

	failing.Store(true)
	require.Eventually(t, m.Failing, time.Second, time.Millisecond)

	failing.Store(false)
	require.Eventually(t, func() bool { return !m.Failing() }, time.Second, time.Millisecond)

	m.Stop()
}

func TestSourceMonitorReportsFailingFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"failing":true}`))
	}))
	defer srv.Close()

	m := NewSourceMonitor(srv.URL, time.Hour, srv.Client(), discardLogger())
	m.checkSourceHealth()
	assert.True(t, m.Failing())
}
