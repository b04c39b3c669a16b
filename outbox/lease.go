// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package outbox

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel"
)

// Default exclusivity-lease knobs.
const (
	DefaultLeaseTopic          = "__k_outbox_exclusive"
	DefaultLeaseGroup          = "k-outbox-exclusive"
	DefaultLeaseHeartbeat      = 3 * time.Second
	DefaultLeaseSessionTimeout = 30 * time.Second
)

// LeaseConfig configures the exclusivity lease that gates a Worker's
// dispatch cycle to a single leader across a deployment.
type LeaseConfig struct {
	Brokers          []string
	Topic            string
	Group            string
	HeartbeatInterval time.Duration
	SessionTimeout   time.Duration
	// UseSingleNode bypasses leader election entirely and always grants
	// the lease, for dev/test single-process deployments.
	UseSingleNode bool
}

func (c LeaseConfig) withDefaults() LeaseConfig {
	if c.Topic == "" {
		c.Topic = DefaultLeaseTopic
	}
	if c.Group == "" {
		c.Group = DefaultLeaseGroup
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultLeaseHeartbeat
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultLeaseSessionTimeout
	}
	return c
}

// Lease tracks NotLeader/Leader state for this worker instance, driven by
// Kafka consumer-group partition assignment on a single-partition
// coordination topic.
type Lease struct {
	cfg     LeaseConfig
	client  *kgo.Client
	isLeader atomic.Bool
	log     *slog.Logger
}

// NewSingleNodeLease returns a Lease that is always held, bypassing Kafka
// coordination entirely (UseSingleNode).
func NewSingleNodeLease() *Lease {
	l := &Lease{cfg: LeaseConfig{UseSingleNode: true}, log: telemetry.Logger("github.com/kflowdev/kflow/outbox")}
	l.isLeader.Store(true)
	return l
}

// NewLease builds a Lease and ensures its coordination topic exists. It does
// not start participating in the group until Run is called.
func NewLease(ctx context.Context, cfg LeaseConfig) (*Lease, error) {
	cfg = cfg.withDefaults()
	if cfg.UseSingleNode {
		return NewSingleNodeLease(), nil
	}

	l := &Lease{cfg: cfg, log: telemetry.Logger("github.com/kflowdev/kflow/outbox")}

	admClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, kflowerr.NewConfiguration("outbox.Lease", "failed to build admin client: "+err.Error())
	}
	adm := kadm.NewClient(admClient)
	defer adm.Close()

	_, err = adm.CreateTopic(ctx, 1, -1, nil, cfg.Topic)
	if err != nil && !kerrIsTopicExists(err) {
		return nil, kflowerr.NewConfiguration("outbox.Lease", "failed to create exclusivity coordination topic: "+err.Error())
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.WithLogger(kslog.New(l.log)),
		kgo.WithHooks(
			kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
		),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(l.onAssigned),
		kgo.OnPartitionsRevoked(l.onRevoked),
		kgo.OnPartitionsLost(l.onRevoked),
	)
	if err != nil {
		return nil, kflowerr.NewConfiguration("outbox.Lease", "failed to build consumer client: "+err.Error())
	}
	l.client = client
	return l, nil
}

// kerrIsTopicExists reports whether err is a racing creator's
// TOPIC_ALREADY_EXISTS, which is expected and not fatal for lease setup.
func kerrIsTopicExists(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "ALREADY_EXISTS")
}

func (l *Lease) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	if len(assigned) == 0 {
		return
	}
	l.isLeader.Store(true)
	l.log.InfoContext(ctx, "exclusivity lease acquired")
}

func (l *Lease) onRevoked(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
	l.isLeader.Store(false)
	l.log.InfoContext(ctx, "exclusivity lease released")
}

// Held reports whether this instance currently holds the exclusivity lease.
func (l *Lease) Held() bool {
	return l.isLeader.Load()
}

// Run drives the lease's background poll loop until ctx is cancelled. It is
// a no-op for single-node leases. Callers run this on its own goroutine
// alongside the Worker.
func (l *Lease) Run(ctx context.Context) error {
	if l.cfg.UseSingleNode || l.client == nil {
		<-ctx.Done()
		return nil
	}
	defer l.client.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		fetches := l.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(_ string, _ int32, err error) {
			l.log.WarnContext(ctx, "exclusivity lease fetch error", slog.Any("error", err))
		})
	}
}

// Close releases the lease's underlying Kafka client, if any.
func (l *Lease) Close() {
	if l.client != nil {
		l.client.Close()
	}
}
