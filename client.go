// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kflow wires together the envelope/middleware chain, serialization
// registry, inbox deduplicator, outbox writer and polling worker,
// exclusivity lease, consumer poll service and per-type buffer, subscription
// registry and consumer pipeline into a single Client, the public entrypoint
// a host application constructs once per process.
package kflow

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/consumer"
	"github.com/kflowdev/kflow/inbox"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kconfig"
	"github.com/kflowdev/kflow/outbox"
	"github.com/kflowdev/kflow/serde"
	"github.com/kflowdev/kflow/subscription"
	"github.com/kflowdev/kflow/uow"
	"github.com/sourcegraph/conc/pool"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is the process-wide wiring for a kflow deployment: one pgxpool-
// backed Store, one producer-side Kafka client, one consumer-side Kafka
// client plus poll service, the outbox worker/lease and inbox cleanup
// background tasks, and the serialization/subscription registries shared
// by every declared message type.
type Client struct {
	cfg kconfig.ClientConfig

	Store         *uow.Store
	Registry      *serde.Registry
	Subscriptions *subscription.Registry
	PollService   *consumer.PollService

	producer       *kgo.Client
	consumerClient *kgo.Client

	Worker  *outbox.Worker
	Lease   *outbox.Lease
	Cleanup *inbox.Cleanup

	log *slog.Logger
}

// New builds a Client from cfg, a caller-owned pgxpool.Pool (the host's
// choice of DSN, pooling limits and lifecycle remain its own concern;
// uow.Store only wraps whatever pool is handed to it).
func New(ctx context.Context, cfg kconfig.ClientConfig, pool *pgxpool.Pool) (*Client, error) {
	tlsConfig, err := kconfig.BuildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	producer, err := newProducerClient(cfg.Brokers, tlsConfig)
	if err != nil {
		return nil, err
	}

	consumerClient, err := newConsumerClient(cfg.Brokers, cfg.Consumer.GroupID, tlsConfig)
	if err != nil {
		producer.Close()
		return nil, err
	}

	var lease *outbox.Lease
	if cfg.Outbox.UseSingleNode {
		lease = outbox.NewSingleNodeLease()
	} else {
		lease, err = outbox.NewLease(ctx, outbox.LeaseConfig{
			Brokers:           cfg.Brokers,
			Topic:             cfg.Outbox.Exclusive.TopicName,
			Group:             cfg.Outbox.Exclusive.GroupID,
			HeartbeatInterval: cfg.Outbox.Exclusive.HeartbeatInterval.AsDuration(),
			SessionTimeout:    cfg.Outbox.Exclusive.SessionTimeout.AsDuration(),
		})
		if err != nil {
			producer.Close()
			consumerClient.Close()
			return nil, err
		}
	}

	worker := outbox.NewWorker(pool, producer, lease,
		outbox.WithPollingInterval(cfg.Outbox.PollingInterval.AsDuration()),
		outbox.WithMaxMessagesPerPoll(cfg.Outbox.MaxMessagesPerPoll),
	)

	cleanup := inbox.NewCleanup(pool, lease,
		inbox.WithCleanupInterval(cfg.Inbox.CleanupInterval.AsDuration()),
		inbox.WithRetentionWindow(cfg.Inbox.DeduplicationTimeWindow.AsDuration()),
	)

	subs := subscription.New()

	return &Client{
		cfg:            cfg,
		Store:          uow.NewStore(pool),
		Registry:       serde.NewRegistry(),
		Subscriptions:  subs,
		PollService:    consumer.NewPollService(consumerClient, subs),
		producer:       producer,
		consumerClient: consumerClient,
		Worker:         worker,
		Lease:          lease,
		Cleanup:        cleanup,
		log:            telemetry.Logger("github.com/kflowdev/kflow"),
	}, nil
}

// Producer exposes the producer-side Kafka client for direct-publish
// chains built with NewProduceStage (no transactional outbox).
func (c *Client) Producer() outbox.Producer {
	return c.producer
}

// Run drives every background task — the consumer poll loop, the outbox
// polling worker, the exclusivity lease's coordination loop, and the inbox
// cleanup task — concurrently until ctx is cancelled, returning the first
// non-nil error any of them produces. Grounded on queue/kafka's
// conc/pool.ContextPool fan-out in event_loop.go's ProcessQueue.
func (c *Client) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(c.PollService.Run)
	p.Go(c.Worker.Run)
	p.Go(c.Lease.Run)
	p.Go(c.Cleanup.Run)
	return p.Wait()
}

// Close releases the producer-side Kafka client and the exclusivity
// lease's Kafka client. The consumer-side client is closed by
// PollService.Run on its own exit.
func (c *Client) Close() {
	c.producer.Close()
	c.Lease.Close()
}
