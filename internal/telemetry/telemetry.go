// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package telemetry provides the package-local logger/tracer/meter
// accessors shared by every kflow package, mirroring how
// github.com/z5labs/humus/queue/kafka resolves its slog.Logger,
// trace.Tracer and metric.Meter off the global OTel providers.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Logger returns a structured logger scoped to name. It reads straight off
// slog's default handler rather than wrapping an OTel log bridge, so that
// this module does not force a logging backend on the host application.
func Logger(name string) *slog.Logger {
	return slog.Default().With(slog.String("logger", name))
}

// Tracer returns the package-scoped tracer for name, resolved against
// whatever TracerProvider the host application configured globally.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the package-scoped meter for name, resolved against
// whatever MeterProvider the host application configured globally.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Discard returns a logger that drops every record, for components under
// test that want to exercise a path's logging calls without polluting
// test output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return true }

func (discardHandler) Handle(context.Context, slog.Record) error { return nil }

func (h discardHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h discardHandler) WithGroup(name string) slog.Handler { return h }
