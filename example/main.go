// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command example demonstrates a full kflow round trip: an OrderCreated
// event produced through the outbox, dispatched to Kafka, and consumed
// back through the inbox deduplicator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kflowdev/kflow/example/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("example exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	shutdownTelemetry, err := app.InitTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("failed to shut down telemetry providers", slog.Any("error", err))
		}
	}()

	client, pool, err := app.BuildClient(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer client.Close()

	producer, err := app.NewProducer(client)
	if err != nil {
		return err
	}

	consumer, err := app.NewConsumer(client)
	if err != nil {
		return err
	}

	runErrs := make(chan error, 1)
	go func() { runErrs <- client.Run(ctx) }()

	consumeErrs := make(chan error, 1)
	go func() { consumeErrs <- consumer.Run(ctx) }()

	go produceSamples(ctx, producer)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-runErrs:
		return err
	case err := <-consumeErrs:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// produceSamples emits one OrderCreated event every five seconds until ctx
// is cancelled, giving the consumer side something to dedup against.
func produceSamples(ctx context.Context, producer *app.Producer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			order := &app.OrderCreated{
				OrderID:  uuid.NewString(),
				Amount:   42.50,
				Quantity: 1,
			}
			if err := producer.Produce(ctx, order); err != nil {
				slog.ErrorContext(ctx, "failed to produce order", slog.Any("error", err))
			}
		}
	}
}
