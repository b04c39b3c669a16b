// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kflow

import (
	"context"
	"log/slog"

	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/outbox"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ProduceStage is the producer chain's terminal "Produce" stage, publishing
// an already-serialized envelope directly to Kafka. It is used in place of
// an outbox.Writer stage when a message type opts out of the transactional
// outbox and accepts at-most-once produce semantics.
type ProduceStage[T any] struct {
	producer outbox.Producer
	topicFor func(declaredType string) string
	log      *slog.Logger
}

// NewProduceStage builds a ProduceStage backed by producer. topicFor may be
// nil, in which case the declared type name is used unchanged unless
// overridden by a $topic header.
func NewProduceStage[T any](producer outbox.Producer, topicFor func(declaredType string) string) *ProduceStage[T] {
	return &ProduceStage[T]{
		producer: producer,
		topicFor: topicFor,
		log:      telemetry.Logger("github.com/kflowdev/kflow"),
	}
}

func (s *ProduceStage[T]) Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error {
	declaredType, _ := env.DeclaredType()
	topic := outbox.ResolveTopic(declaredType, env.Headers, s.topicFor)

	record := &kgo.Record{
		Topic: topic,
		Key:   env.Key,
		Value: env.RawPayload,
	}
	for _, key := range env.Headers.Keys() {
		v, _ := env.Headers.Get(key)
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: key, Value: v})
	}

	results := s.producer.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		s.log.WarnContext(ctx, "direct produce failed", telemetry.TopicAttr(topic), slog.Any("error", err))
		return kflowerr.NewDispatch(topic, err)
	}
	return next(ctx, env)
}

// Produce runs msg through chain — the full producer chain for T, built by
// the caller from serde.NewStage, an optional outbox.Writer or
// ProduceStage, and any application middleware — and is the generic public
// producer entrypoint a host application calls per message. The caller is
// responsible for having placed a *uow.UnitOfWork on ctx first when chain
// includes an outbox.Writer stage.
func Produce[T any](ctx context.Context, chain *middleware.Chain[T], msg *T) error {
	env := envelope.New(msg)
	return chain.Run(ctx, env)
}
