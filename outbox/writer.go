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
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/uow"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Strategy selects how the writer reconciles a freshly inserted row with
// Kafka delivery.
type Strategy int

const (
	// BackgroundOnly inserts the row and leaves dispatch entirely to the
	// polling Worker.
	BackgroundOnly Strategy = iota
	// ImmediateWithFallback inserts the row unconditionally, then attempts
	// a synchronous produce after the DB commit; on failure the row is
	// left for the Worker to pick up.
	ImmediateWithFallback
)

// Producer is the narrow slice of *kgo.Client the writer and worker need.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Writer is the first producer-chain middleware stage after serialization
// when the outbox is enabled.
type Writer[T any] struct {
	pool     *pgxpool.Pool
	producer Producer
	strategy Strategy
	topicFor func(declaredType string) string
	now      func() time.Time
	log      *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption[T any] func(*Writer[T])

// WithStrategy sets the dispatch strategy. Default is BackgroundOnly.
func WithStrategy[T any](s Strategy) WriterOption[T] {
	return func(w *Writer[T]) { w.strategy = s }
}

// WithTopicResolver overrides how a row's topic is derived from its
// declared type when no explicit topic override is supplied. Default is
// the declared type name unchanged.
func WithTopicResolver[T any](f func(declaredType string) string) WriterOption[T] {
	return func(w *Writer[T]) { w.topicFor = f }
}

// NewWriter builds an outbox Writer backed by pool for storage and
// producer for the ImmediateWithFallback fast path.
func NewWriter[T any](pool *pgxpool.Pool, producer Producer, opts ...WriterOption[T]) *Writer[T] {
	w := &Writer[T]{
		pool:     pool,
		producer: producer,
		strategy: BackgroundOnly,
		topicFor: func(declaredType string) string { return declaredType },
		now:      time.Now,
		log:      telemetry.Logger("github.com/kflowdev/kflow/outbox"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Invoke implements middleware.Middleware[T]. It must run after the
// Serialize stage has populated env.RawPayload and env.Headers.
func (w *Writer[T]) Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error {
	u, ok := uow.FromContext(ctx)
	if !ok || u == nil {
		return kflowerr.NewConfiguration("outbox.Writer", "no *uow.UnitOfWork found on context; the host application must start one per unit-of-work scope before invoking the producer chain")
	}

	declaredType, _ := env.DeclaredType()
	topic := ResolveTopic(declaredType, env.Headers, w.topicFor)

	row, err := NewRow(declaredType, topic, env.Key, env.RawPayload, env.Headers, w.now())
	if err != nil {
		return err
	}

	u.OnSaveChanges(func(ctx context.Context, tx uow.Tx) error {
		return Insert(ctx, tx, row)
	})

	if w.strategy == ImmediateWithFallback {
		u.OnCommitted(func(ctx context.Context) error {
			return w.tryImmediateDispatch(ctx, row)
		})
	}

	return next(ctx, env)
}

// ResolveTopic applies the standard topic precedence: an explicit $topic
// header override, then the configured resolver, then the declared type
// name unchanged. Exported so the direct-publish producer chain (no
// outbox) can apply the same precedence.
func ResolveTopic(declaredType string, headers *envelope.Headers, topicFor func(string) string) string {
	if t, ok := headers.GetString("$topic"); ok && t != "" {
		return t
	}
	if topicFor != nil {
		return topicFor(declaredType)
	}
	return declaredType
}

// tryImmediateDispatch attempts a synchronous produce for a row that was
// unconditionally inserted before the attempt, deleting it only on ack. A
// failed/timed-out attempt leaves the row for the Worker; it is never an
// error surfaced to the application.
func (w *Writer[T]) tryImmediateDispatch(ctx context.Context, row *Row) error {
	claimed, err := claimForImmediate(ctx, w.pool, row.ID, w.now())
	if err != nil {
		w.log.ErrorContext(ctx, "failed to claim outbox row for immediate dispatch",
			telemetry.OutboxRowAttr(row.ID.String()), slog.Any("error", err))
		return nil
	}
	if !claimed {
		// The background Worker already claimed and is dispatching this
		// row; yielding keeps a single logical dispatcher per row.
		return nil
	}

	record := toRecord(row)
	results := w.producer.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		w.log.WarnContext(ctx, "immediate outbox dispatch failed, leaving row for background worker",
			telemetry.OutboxRowAttr(row.ID.String()),
			telemetry.TopicAttr(row.Topic),
			slog.Any("error", err),
		)
		if revertErr := revertClaim(ctx, w.pool, row.ID); revertErr != nil {
			w.log.ErrorContext(ctx, "failed to revert outbox row claim after failed immediate dispatch",
				telemetry.OutboxRowAttr(row.ID.String()), slog.Any("error", revertErr))
		}
		return nil
	}

	if err := deleteDispatched(ctx, w.pool, row.ID); err != nil {
		w.log.ErrorContext(ctx, "failed to delete immediately dispatched outbox row",
			telemetry.OutboxRowAttr(row.ID.String()),
			slog.Any("error", err),
		)
	}
	return nil
}
