// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package consumer implements the poll service and pipeline: a
// single-threaded Kafka poll loop that fans fetched records out to per-type
// buffers, plus a per-type reader that drains a buffer through the
// middleware chain and into the application.
//
// Grounded on github.com/z5labs/humus's queue/kafka event loop: one
// goroutine polls, per-topic dispatch happens on that same goroutine, and
// downstream processing runs on its own goroutines reading from the
// per-type buffers fed by the poll loop.
package consumer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/subscription"
	"github.com/twmb/franz-go/pkg/kgo"
)

// topicPartition identifies a single partition of a topic, the unit
// PollService pauses/resumes on.
type topicPartition struct {
	topic     string
	partition int32
}

// topicBinding is what PollService needs to route a fetched record for
// topic to its per-type buffer and to signal backpressure back to the
// poll loop.
type topicBinding struct {
	// tryEnqueue attempts to hand one record to the bound type's buffer
	// without blocking. It returns false only under ApplyBackpressure-at-
	// capacity.
	tryEnqueue func(ctx context.Context, r *kgo.Record) bool
	// enqueueBlocking hands the record to the buffer, waiting for room if
	// necessary; used after tryEnqueue fails so the record is retried
	// rather than dropped.
	enqueueBlocking func(ctx context.Context, r *kgo.Record) error
	// aboveHigh / belowLow report edge-triggered watermark crossings on
	// the bound buffer (buffer.PerTypeBuffer.AboveHighWatermark/BelowLowWatermark).
	aboveHigh func() bool
	belowLow  func() bool
}

// Client is the narrow slice of *kgo.Client the poll service needs.
// Declaring it here (rather than depending on *kgo.Client directly)
// keeps PollService's dispatch/pause/resume logic unit-testable with a
// fake, the same structural-interface approach the uow package uses for
// *pgx.Tx.
type Client interface {
	AddConsumeTopics(topics ...string)
	PurgeTopicsFromClient(topics ...string)
	PollFetches(ctx context.Context) kgo.Fetches
	PauseFetchPartitions(topicPartitions map[string][]int32) map[string][]int32
	ResumeFetchPartitions(topicPartitions map[string][]int32)
	Close()
}

// PollService owns a single underlying Client and its poll loop, running
// on a dedicated goroutine. Declared types share the process-wide default
// PollService unless configured for an exclusive connection.
type PollService struct {
	client   Client
	registry *subscription.Registry

	mu          sync.Mutex
	bindings    map[string]topicBinding // topic -> binding
	pausedParts map[topicPartition]bool

	log *slog.Logger
}

// NewPollService wraps an already-constructed Client (brokers, consumer
// group, TLS, cooperative-sticky balancer, kotel/kslog hooks all
// configured by the caller via kconfig) with the poll/dispatch loop.
func NewPollService(client Client, registry *subscription.Registry) *PollService {
	return &PollService{
		client:      client,
		registry:    registry,
		bindings:    make(map[string]topicBinding),
		pausedParts: make(map[topicPartition]bool),
		log:         telemetry.Logger("github.com/kflowdev/kflow/consumer"),
	}
}

// Bind registers typ's buffer under topic and subscribes to topic if this
// is the type's first active reader. Unbind should be called by the
// reader's disposal.
func Bind[T any](svc *PollService, topic, typ string, buf *buffer.PerTypeBuffer[T], tryEnqueue func(ctx context.Context, r *kgo.Record) bool, enqueueBlocking func(ctx context.Context, r *kgo.Record) error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.bindings[topic] = topicBinding{
		tryEnqueue:      tryEnqueue,
		enqueueBlocking: enqueueBlocking,
		aboveHigh:       buf.AboveHighWatermark,
		belowLow:        buf.BelowLowWatermark,
	}

	if svc.registry.Activate(typ) {
		svc.client.AddConsumeTopics(topic)
		svc.log.Info("subscribed to topic", telemetry.TopicAttr(topic), telemetry.MessageTypeAttr(typ))
	}
}

// Unbind reverses Bind, unsubscribing from topic if typ has no other
// active readers.
func (svc *PollService) Unbind(topic, typ string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	delete(svc.bindings, topic)
	if svc.registry.Deactivate(typ) {
		svc.client.PurgeTopicsFromClient(topic)
		svc.log.Info("unsubscribed from topic", telemetry.TopicAttr(topic), telemetry.MessageTypeAttr(typ))
	}
}

// Run drives the poll loop until ctx is cancelled. Everything below — the
// fetch, the dispatch, the pause/resume bookkeeping — runs on this single
// goroutine, so the Client itself never needs its own locking.
func (svc *PollService) Run(ctx context.Context) error {
	defer svc.client.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fetches := svc.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			svc.log.WarnContext(ctx, "fetch error",
				telemetry.TopicAttr(topic), telemetry.PartitionAttr(partition), slog.Any("error", err))
		})

		fetches.EachRecord(func(r *kgo.Record) {
			svc.dispatch(ctx, r)
		})
	}
}

func (svc *PollService) dispatch(ctx context.Context, r *kgo.Record) {
	svc.mu.Lock()
	binding, ok := svc.bindings[r.Topic]
	svc.mu.Unlock()
	if !ok {
		svc.log.WarnContext(ctx, "record for unbound topic dropped", telemetry.TopicAttr(r.Topic))
		return
	}

	if !binding.tryEnqueue(ctx, r) {
		// Under ApplyBackpressure a record is never dropped silently.
		// Pause the partition first, then block this single-threaded poll
		// loop on the retry until a consumer drains the buffer — the
		// record is enqueued, never discarded.
		svc.pausePartition(ctx, r.Topic, r.Partition)
		if err := binding.enqueueBlocking(ctx, r); err != nil {
			svc.log.WarnContext(ctx, "enqueue blocking aborted",
				telemetry.TopicAttr(r.Topic), telemetry.PartitionAttr(r.Partition), slog.Any("error", err))
			return
		}
	}

	if binding.aboveHigh() {
		svc.pausePartition(ctx, r.Topic, r.Partition)
	}
	if binding.belowLow() {
		svc.resumePartition(ctx, r.Topic, r.Partition)
	}
}

func (svc *PollService) pausePartition(ctx context.Context, topic string, partition int32) {
	tp := topicPartition{topic: topic, partition: partition}

	svc.mu.Lock()
	already := svc.pausedParts[tp]
	svc.pausedParts[tp] = true
	svc.mu.Unlock()

	if already {
		return
	}
	svc.client.PauseFetchPartitions(map[string][]int32{topic: {partition}})
	svc.log.InfoContext(ctx, "paused partition", telemetry.TopicAttr(topic), telemetry.PartitionAttr(partition))
}

func (svc *PollService) resumePartition(ctx context.Context, topic string, partition int32) {
	tp := topicPartition{topic: topic, partition: partition}

	svc.mu.Lock()
	wasPaused := svc.pausedParts[tp]
	delete(svc.pausedParts, tp)
	svc.mu.Unlock()

	if !wasPaused {
		return
	}
	svc.client.ResumeFetchPartitions(map[string][]int32{topic: {partition}})
	svc.log.InfoContext(ctx, "resumed partition", telemetry.TopicAttr(topic), telemetry.PartitionAttr(partition))
}
