// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kflow

import (
	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/consumer"
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/serde"
)

// ConsumerOption configures the per-type buffer a NewConsumer call builds.
type ConsumerOption[T any] func(*consumerConfig[T])

type consumerConfig[T any] struct {
	capacity int
}

// WithBufferCapacity overrides the declared type's per-type buffer
// capacity; the client-wide kconfig.ConsumerConfig.MaxBufferedMessages
// default applies if omitted.
func WithBufferCapacity[T any](capacity int) ConsumerOption[T] {
	return func(c *consumerConfig[T]) {
		c.capacity = capacity
	}
}

// NewConsumer builds the per-type buffer, binds it to the Client's single
// poll service — every declared type shares that PollService; NewConsumer
// has no option for a dedicated connection — and returns the consumer Pipeline that
// drains it, the generic public consumer entrypoint a host application
// calls per declared type. chain should list the inbox Deduplicator first,
// if enabled, ahead of any application stages.
func NewConsumer[T any](c *Client, topic, declaredType string, codec serde.Codec[T], chain *middleware.Chain[T], opts ...ConsumerOption[T]) (*consumer.Pipeline[T], error) {
	cc := consumerConfig[T]{capacity: c.cfg.Consumer.MaxBufferedMessages}
	for _, opt := range opts {
		opt(&cc)
	}

	buf, err := buffer.New[*envelope.Envelope[T]](cc.capacity,
		buffer.WithPolicy[*envelope.Envelope[T]](c.cfg.Consumer.BackpressurePolicy()),
		buffer.WithWatermarks[*envelope.Envelope[T]](c.cfg.Consumer.HighWaterMark, c.cfg.Consumer.LowWaterMark),
	)
	if err != nil {
		return nil, err
	}

	tryEnqueue, enqueueBlocking := consumer.NewEnqueueFuncs(buf)
	consumer.Bind(c.PollService, topic, declaredType, buf, tryEnqueue, enqueueBlocking)

	return consumer.NewPipeline(buf, codec, chain, c.consumerClient), nil
}
