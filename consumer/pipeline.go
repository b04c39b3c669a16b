// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package consumer

import (
	"context"
	"log/slog"

	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/serde"
	"github.com/kflowdev/kflow/uow"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RecordCommitter is the narrow slice of *kgo.Client the Pipeline needs to
// commit offsets after an application's SaveChanges succeeds.
type RecordCommitter interface {
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

func recordToEnvelope[T any](r *kgo.Record) *envelope.Envelope[T] {
	env := &envelope.Envelope[T]{
		Headers:    envelope.NewHeaders(),
		Key:        r.Key,
		RawPayload: r.Value,
		TopicPartitionOffset: &envelope.TopicPartitionOffset{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
		},
	}
	for _, h := range r.Headers {
		env.Headers.Set(h.Key, h.Value)
	}
	return env
}

// NewEnqueueFuncs builds the PollService dispatch closures for declared
// type T: each wraps a fetched record into an Envelope
// (payload/headers/key/topic-partition-offset only — Message stays nil
// until the Pipeline decodes it). tryEnqueue is the poll loop's
// non-blocking attempt; enqueueBlocking is used after the poll loop has
// paused the source partition, so the record is retried rather than
// dropped once the buffer has room again.
func NewEnqueueFuncs[T any](buf *buffer.PerTypeBuffer[*envelope.Envelope[T]]) (tryEnqueue func(ctx context.Context, r *kgo.Record) bool, enqueueBlocking func(ctx context.Context, r *kgo.Record) error) {
	tryEnqueue = func(_ context.Context, r *kgo.Record) bool {
		return buf.TryEnqueue(recordToEnvelope[T](r))
	}
	enqueueBlocking = func(ctx context.Context, r *kgo.Record) error {
		return buf.EnqueueBlocking(ctx, recordToEnvelope[T](r))
	}
	return tryEnqueue, enqueueBlocking
}

// Pipeline is one reader per declared type per unit-of-work scope, draining
// its per-type buffer through deserialization and the consumer middleware
// chain.
type Pipeline[T any] struct {
	buf       *buffer.PerTypeBuffer[*envelope.Envelope[T]]
	codec     serde.Codec[T]
	chain     *middleware.Chain[T]
	committer RecordCommitter
	log       *slog.Logger
}

// NewPipeline builds a Pipeline. chain should include the inbox
// Deduplicator (if enabled) ahead of any application-supplied stages.
func NewPipeline[T any](buf *buffer.PerTypeBuffer[*envelope.Envelope[T]], codec serde.Codec[T], chain *middleware.Chain[T], committer RecordCommitter) *Pipeline[T] {
	return &Pipeline[T]{
		buf:       buf,
		codec:     codec,
		chain:     chain,
		committer: committer,
		log:       telemetry.Logger("github.com/kflowdev/kflow/consumer"),
	}
}

// Next pulls one envelope from the buffer, deserializes and runs it through
// the middleware chain, and returns the decoded message. It loops past
// dedup-dropped (cleaned) envelopes rather than returning them, since those
// carry no delivery to the application. The returned commit func must be
// called by the application (typically
// from a uow.PostCommitHook registered on the scope's UnitOfWork) after
// SaveChanges succeeds, to commit the corresponding Kafka offset.
func (p *Pipeline[T]) Next(ctx context.Context) (msg *T, commit func(context.Context) error, err error) {
	for {
		env, err := p.buf.DequeueBlocking(ctx)
		if err != nil {
			return nil, nil, kflowerr.NewCancellation(err)
		}

		declaredType, _ := env.DeclaredType()
		decoded, err := p.codec.Deserialize(env.Headers, env.RawPayload)
		if err != nil {
			return nil, nil, kflowerr.NewSerialization(declaredType, err)
		}
		env.Message = decoded

		if err := p.chain.Run(ctx, env); err != nil {
			return nil, nil, kflowerr.NewPipelineFatal(declaredType, err)
		}

		if env.Cleaned {
			p.log.DebugContext(ctx, "envelope dropped by middleware chain", telemetry.MessageTypeAttr(declaredType))
			continue
		}

		tpo := env.TopicPartitionOffset
		record := &kgo.Record{Topic: tpo.Topic, Partition: tpo.Partition, Offset: tpo.Offset}
		return env.Message, func(ctx context.Context) error {
			return p.committer.CommitRecords(ctx, record)
		}, nil
	}
}

// CommitAfter registers commit as a post-commit hook on u, the idiomatic
// way an application wires Pipeline.Next's returned commit func into its
// unit-of-work scope so the Kafka offset commits only after the
// application's own changes have been saved.
func CommitAfter(u *uow.UnitOfWork, commit func(context.Context) error) {
	u.OnCommitted(commit)
}
