// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/internal/telemetry"
)

// Default Worker knobs.
const (
	DefaultPollingInterval    = 4 * time.Second
	DefaultMaxMessagesPerPoll = 100
)

// Worker is the background polling dispatcher: it claims undispatched rows
// while this instance holds the exclusivity lease and produces them to
// Kafka in (createdAt, id) order.
type Worker struct {
	pool     *pgxpool.Pool
	producer Producer
	lease    *Lease

	pollingInterval    time.Duration
	maxMessagesPerPoll int

	now func() time.Time
	log *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollingInterval overrides the default 4s tick.
func WithPollingInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollingInterval = d }
}

// WithMaxMessagesPerPoll overrides the default 100-row batch cap.
func WithMaxMessagesPerPoll(n int) WorkerOption {
	return func(w *Worker) { w.maxMessagesPerPoll = n }
}

// NewWorker builds a Worker gated by lease. Pass outbox.NewSingleNodeLease()
// for a dev/test deployment with a single worker instance.
func NewWorker(pool *pgxpool.Pool, producer Producer, lease *Lease, opts ...WorkerOption) *Worker {
	w := &Worker{
		pool:               pool,
		producer:           producer,
		lease:              lease,
		pollingInterval:    DefaultPollingInterval,
		maxMessagesPerPoll: DefaultMaxMessagesPerPoll,
		now:                time.Now,
		log:                telemetry.Logger("github.com/kflowdev/kflow/outbox"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the polling cycle until ctx is cancelled: confirm the lease,
// select a batch, produce in order, sleep.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollingInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if !w.lease.Held() {
		return
	}

	rows, err := SelectUndispatched(ctx, w.pool, w.maxMessagesPerPoll)
	if err != nil {
		w.log.WarnContext(ctx, "outbox worker skipping tick, database unavailable", slog.Any("error", err))
		return
	}

	for _, row := range rows {
		if !w.lease.Held() {
			// Lease changed hands mid-batch; stop dispatching so the new
			// leader doesn't race us for the same rows.
			return
		}

		record := toRecord(row)
		results := w.producer.ProduceSync(ctx, record)
		if produceErr := results.FirstErr(); produceErr != nil {
			w.log.WarnContext(ctx, "outbox row produce failed, stopping batch for retry next tick",
				telemetry.OutboxRowAttr(row.ID.String()),
				telemetry.TopicAttr(row.Topic),
				slog.Any("error", produceErr),
			)
			return
		}

		if err := deleteDispatched(ctx, w.pool, row.ID); err != nil {
			w.log.ErrorContext(ctx, "failed to delete dispatched outbox row",
				telemetry.OutboxRowAttr(row.ID.String()), slog.Any("error", err))
		}
	}
}
