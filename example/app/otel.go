// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// otlpTargetEnv names the environment variable this example reads for the
// OTLP/gRPC collector address. An empty/unset value leaves tracing and
// metrics SDK-backed but exporter-less, so the example still runs with no
// collector reachable.
const otlpTargetEnv = "KFLOW_EXAMPLE_OTLP_ENDPOINT"

// InitTelemetry builds the process-wide TracerProvider and MeterProvider
// kflow's telemetry package resolves its tracer/meter against, registering
// them with otel.SetTracerProvider/otel.SetMeterProvider. The returned
// shutdown func flushes and closes both providers; callers should defer it.
func InitTelemetry(ctx context.Context) (shutdown func(context.Context) error, err error) {
	r, err := detectResource(ctx)
	if err != nil {
		return nil, err
	}

	var shutdowns []func(context.Context) error

	tp, err := newTracerProvider(ctx, r)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)

	mp, err := newMeterProvider(ctx, r)
	if err != nil {
		runShutdowns(ctx, shutdowns)
		return nil, err
	}
	otel.SetMeterProvider(mp)
	shutdowns = append(shutdowns, mp.Shutdown)

	return func(ctx context.Context) error {
		return runShutdowns(ctx, shutdowns)
	}, nil
}

func runShutdowns(ctx context.Context, shutdowns []func(context.Context) error) error {
	var firstErr error
	for _, s := range shutdowns {
		if err := s(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func detectResource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName("kflow-example"),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
}

// newTracerProvider builds a sdktrace.TracerProvider sampling every trace
// and batching spans to an OTLP/gRPC exporter when otlpTargetEnv is set. No
// exporter is installed otherwise, so spans are still created against a
// real SDK provider but go nowhere, which keeps the example runnable with
// no collector around.
func newTracerProvider(ctx context.Context, r *resource.Resource) (*trace.TracerProvider, error) {
	opts := []trace.TracerProviderOption{
		trace.WithResource(r),
		trace.WithSampler(trace.AlwaysSample()),
	}

	if target := os.Getenv(otlpTargetEnv); target != "" {
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithSpanProcessor(trace.NewBatchSpanProcessor(exp, trace.WithBatchTimeout(5*time.Second))))
	}

	return trace.NewTracerProvider(opts...), nil
}

// newMeterProvider mirrors newTracerProvider's OTLP-optional wiring for
// metrics, reading on a periodic interval when an exporter is configured.
func newMeterProvider(ctx context.Context, r *resource.Resource) (*metric.MeterProvider, error) {
	opts := []metric.Option{
		metric.WithResource(r),
	}

	if target := os.Getenv(otlpTargetEnv); target != "" {
		conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, err
		}
		opts = append(opts, metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(15*time.Second))))
	}

	return metric.NewMeterProvider(opts...), nil
}
