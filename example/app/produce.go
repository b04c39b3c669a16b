// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"fmt"

	"github.com/kflowdev/kflow"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/outbox"
	"github.com/kflowdev/kflow/serde"
	"github.com/kflowdev/kflow/uow"
)

// Producer publishes OrderCreated events through the outbox: each call
// inserts a row in the same transaction as the rest of the caller's unit
// of work, then lets the outbox's ImmediateWithFallback strategy attempt
// a best-effort synchronous dispatch before the polling worker ever sees
// it.
type Producer struct {
	store *uow.Store
	chain *middleware.Chain[OrderCreated]
}

// NewProducer builds a Producer wired to client's outbox writer.
func NewProducer(client *kflow.Client) (*Producer, error) {
	codec, err := serde.NewJSONCodec[OrderCreated](serde.JSONOptions{TypeName: "OrderCreated"})
	if err != nil {
		return nil, fmt.Errorf("app: failed to build OrderCreated codec: %w", err)
	}

	writer := outbox.NewWriter[OrderCreated](
		client.Store.Pool(),
		client.Producer(),
		outbox.WithStrategy[OrderCreated](outbox.ImmediateWithFallback),
		outbox.WithTopicResolver[OrderCreated](func(string) string { return OrdersTopic }),
	)

	chain := middleware.New[OrderCreated](
		serde.NewStage[OrderCreated](codec),
		writer,
	)

	return &Producer{store: client.Store, chain: chain}, nil
}

// Produce inserts order into the outbox as part of a fresh unit of work
// and commits it.
func (p *Producer) Produce(ctx context.Context, order *OrderCreated) error {
	u, err := p.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("app: failed to begin unit of work: %w", err)
	}

	ctx = uow.WithContext(ctx, u)
	if err := kflow.Produce(ctx, p.chain, order); err != nil {
		_ = u.Rollback(ctx)
		return fmt.Errorf("app: failed to produce order %s: %w", order.OrderID, err)
	}

	if err := u.SaveChanges(ctx); err != nil {
		return fmt.Errorf("app: failed to save order %s: %w", order.OrderID, err)
	}
	return nil
}
