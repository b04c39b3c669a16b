// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kflow

import (
	"crypto/tls"

	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel"
)

// newProducerClient builds a *kgo.Client with no consumer group, used by
// the outbox writer's immediate-dispatch path and the polling worker,
// adapted from queue/kafka.Runtime.ProcessQueue's client option set.
func newProducerClient(brokers []string, tlsConfig *tls.Config) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.WithLogger(kslog.New(telemetry.Logger("github.com/twmb/franz-go/pkg/kgo"))),
		kgo.WithHooks(
			kotel.NewTracer(
				kotel.TracerProvider(otel.GetTracerProvider()),
				kotel.TracerPropagator(otel.GetTextMapPropagator()),
				kotel.LinkSpans(),
			),
			kotel.NewMeter(kotel.MeterProvider(otel.GetMeterProvider())),
		),
	}
	if tlsConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, kflowerr.NewConfiguration("kflow.Client", "failed to build producer client: "+err.Error())
	}
	return client, nil
}

// newConsumerClient builds a *kgo.Client joined to groupID with
// cooperative-sticky rebalancing and auto-commit disabled; offsets are
// committed only by consumer.Pipeline's post-commit hook, once the
// application has durably processed the record, adapted from the same
// Runtime.ProcessQueue option set.
func newConsumerClient(brokers []string, groupID string, tlsConfig *tls.Config) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.DisableAutoCommit(),
		kgo.WithLogger(kslog.New(telemetry.Logger("github.com/twmb/franz-go/pkg/kgo"))),
		kgo.WithHooks(
			kotel.NewTracer(
				kotel.TracerProvider(otel.GetTracerProvider()),
				kotel.TracerPropagator(otel.GetTextMapPropagator()),
				kotel.LinkSpans(),
				kotel.ConsumerGroup(groupID),
			),
			kotel.NewMeter(kotel.MeterProvider(otel.GetMeterProvider())),
		),
	}
	if tlsConfig != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsConfig))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, kflowerr.NewConfiguration("kflow.Client", "failed to build consumer client: "+err.Error())
	}
	return client, nil
}
