// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kflowdev/kflow"
	"github.com/kflowdev/kflow/consumer"
	"github.com/kflowdev/kflow/inbox"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/serde"
	"github.com/kflowdev/kflow/uow"
)

// Consumer drains OrderCreated events from the orders topic, deduplicating
// against the inbox before logging each one.
type Consumer struct {
	store    *uow.Store
	pipeline *consumer.Pipeline[OrderCreated]
}

// NewConsumer binds a Consumer Pipeline for OrderCreated to client's
// Consumer Poll Service, subscribing to OrdersTopic.
func NewConsumer(client *kflow.Client) (*Consumer, error) {
	codec, err := serde.NewJSONCodec[OrderCreated](serde.JSONOptions{TypeName: "OrderCreated"})
	if err != nil {
		return nil, fmt.Errorf("app: failed to build OrderCreated codec: %w", err)
	}

	dedup, err := inbox.NewDeduplicator[OrderCreated]("OrderCreated", func(order *OrderCreated) any {
		return order.OrderID
	})
	if err != nil {
		return nil, fmt.Errorf("app: failed to build inbox deduplicator: %w", err)
	}

	chain := middleware.New[OrderCreated](dedup)

	pipeline, err := kflow.NewConsumer(client, OrdersTopic, "OrderCreated", codec, chain)
	if err != nil {
		return nil, fmt.Errorf("app: failed to build consumer pipeline: %w", err)
	}

	return &Consumer{store: client.Store, pipeline: pipeline}, nil
}

// Run pulls envelopes from the pipeline until ctx is cancelled. The inbox
// Deduplicator runs inside Next, so the unit of work must already be open
// and attached to ctx before Next is called, not after.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		u, err := c.store.Begin(ctx)
		if err != nil {
			return fmt.Errorf("app: failed to begin unit of work: %w", err)
		}
		scoped := uow.WithContext(ctx, u)

		order, commit, err := c.pipeline.Next(scoped)
		if err != nil {
			_ = u.Rollback(ctx)
			return err
		}

		consumer.CommitAfter(u, commit)

		if err := u.SaveChanges(scoped); err != nil {
			slog.ErrorContext(ctx, "failed to commit consumed order", slog.Any("error", err))
			continue
		}

		slog.InfoContext(ctx, "consumed order",
			slog.String("orderId", order.OrderID),
			slog.Float64("amount", order.Amount),
			slog.Int("quantity", order.Quantity),
		)
	}
}
