// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kflow provides a transactional messaging runtime on top of
// Postgres and Kafka: produced messages are written to an outbox table in
// the same database transaction as the rest of a unit of work, dispatched
// to Kafka by a background worker or an immediate best-effort attempt, and
// consumed messages are deduplicated against an inbox table before an
// application's business logic ever sees them.
//
// # Architecture
//
//   - Producer chain: Serialize, an optional outbox.Writer, any
//     application middleware, then either outbox dispatch or a direct
//     ProduceStage.
//   - Consumer chain: the Consumer Poll Service fans fetched records out to
//     a per-type buffer; a Consumer Pipeline drains it, deserializes, runs
//     an optional inbox Deduplicator and application middleware, and
//     returns a commit func the caller registers on its unit of work.
//
// # Producing
//
//	chain := middleware.New[OrderCreated](
//	    serde.NewStage[OrderCreated](codec),
//	    outbox.NewWriter[OrderCreated](pool, client.Producer()),
//	)
//	u, _ := client.Store.Begin(ctx)
//	ctx = uow.WithContext(ctx, u)
//	err := kflow.Produce(ctx, chain, &OrderCreated{ID: "1"})
//	err = u.SaveChanges(ctx)
//
// # Consuming
//
//	dedup, _ := inbox.NewDeduplicator[OrderCreated]("OrderCreated", func(m *OrderCreated) any { return m.ID })
//	chain := middleware.New[OrderCreated](dedup)
//	pipeline, _ := kflow.NewConsumer(client, "orders", "OrderCreated", codec, chain)
//	for {
//	    u, _ := client.Store.Begin(ctx)
//	    scoped := uow.WithContext(ctx, u)
//	    msg, commit, err := pipeline.Next(scoped)
//	    ...
//	    consumer.CommitAfter(u, commit)
//	    _ = u.SaveChanges(scoped)
//	}
//
// # Graceful shutdown
//
// Cancelling the context passed to Client.Run stops the consumer poll
// loop from fetching further records, stops the outbox worker before its
// next tick, stops the lease and inbox cleanup loops, and closes the
// consumer-side and lease Kafka clients. Run does not wait for records
// still held in a per-type buffer; a Pipeline.Next call with its own live
// context can still drain them. The producer-side client is closed by
// Client.Close.
package kflow
