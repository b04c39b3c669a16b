// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kconfig defines ClientConfig, the YAML-loadable knob surface for
// a kflow Client, mirroring github.com/z5labs/humus's struct-tag driven
// Config/OTelConfig style.
package kconfig

import (
	"time"

	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/outbox"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so ClientConfig can decode knobs like "4s"
// or "24h" from YAML, which yaml.v3 does not do for a bare time.Duration.
type Duration time.Duration

// AsDuration converts d to a time.Duration for use by the components it
// configures.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML accepts either a duration string ("4s") or a bare integer
// nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ConsumerConfig configures the per-type buffer and backpressure policy
// shared by the poll service and its per-type buffers.
type ConsumerConfig struct {
	GroupID              string  `yaml:"groupId"`
	MaxBufferedMessages  int     `yaml:"maxBufferedMessages"`
	BackpressureMode     string  `yaml:"backpressureMode"`
	HighWaterMark        float64 `yaml:"highWaterMark"`
	LowWaterMark         float64 `yaml:"lowWaterMark"`
}

// ExclusiveConfig configures the outbox's exclusivity lease.
type ExclusiveConfig struct {
	TopicName         string   `yaml:"topicName"`
	GroupID           string   `yaml:"groupId"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval"`
	SessionTimeout    Duration `yaml:"sessionTimeout"`
}

// OutboxConfig configures the outbox writer and its polling worker.
type OutboxConfig struct {
	PollingInterval    Duration        `yaml:"pollingInterval"`
	MaxMessagesPerPoll int             `yaml:"maxMessagesPerPoll"`
	Strategy           string          `yaml:"strategy"`
	Exclusive          ExclusiveConfig `yaml:"exclusive"`
	UseSingleNode      bool            `yaml:"useSingleNode"`
}

// InboxConfig configures the inbox deduplicator and its cleanup job.
type InboxConfig struct {
	DeduplicationTimeWindow Duration `yaml:"deduplicationTimeWindow"`
	CleanupInterval         Duration `yaml:"cleanupInterval"`
}

// ClientConfig is the full YAML-loadable configuration surface for a
// kflow.Client: Kafka connectivity plus every consumer/outbox/inbox knob.
type ClientConfig struct {
	Brokers []string   `yaml:"brokers"`
	TLS     *TLSConfig `yaml:"tls"`

	Consumer ConsumerConfig `yaml:"consumer"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Inbox    InboxConfig    `yaml:"inbox"`
}

// Default returns a ClientConfig populated with the package's documented
// defaults for every knob.
func Default() ClientConfig {
	return ClientConfig{
		Consumer: ConsumerConfig{
			GroupID:             "kflow-consumer",
			MaxBufferedMessages: 1000,
			BackpressureMode:    "ApplyBackpressure",
			HighWaterMark:       buffer.DefaultHighWatermark,
			LowWaterMark:        buffer.DefaultLowWatermark,
		},
		Outbox: OutboxConfig{
			PollingInterval:    Duration(outbox.DefaultPollingInterval),
			MaxMessagesPerPoll: outbox.DefaultMaxMessagesPerPoll,
			Strategy:           "BackgroundOnly",
			Exclusive: ExclusiveConfig{
				TopicName:         outbox.DefaultLeaseTopic,
				GroupID:           outbox.DefaultLeaseGroup,
				HeartbeatInterval: Duration(outbox.DefaultLeaseHeartbeat),
				SessionTimeout:    Duration(outbox.DefaultLeaseSessionTimeout),
			},
			UseSingleNode: false,
		},
		Inbox: InboxConfig{
			DeduplicationTimeWindow: Duration(24 * time.Hour),
			CleanupInterval:         Duration(time.Hour),
		},
	}
}

// Load parses YAML from data into Default(), so any field the document
// omits keeps its default value.
func Load(data []byte) (ClientConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// BackpressurePolicy resolves the configured BackpressureMode string to a
// buffer.OverflowPolicy, defaulting to ApplyBackpressure for an unknown or
// empty value.
func (c ConsumerConfig) BackpressurePolicy() buffer.OverflowPolicy {
	switch c.BackpressureMode {
	case "DropOldest":
		return buffer.DropOldest
	case "DropNewest":
		return buffer.DropNewest
	default:
		return buffer.ApplyBackpressure
	}
}

// OutboxStrategy resolves the configured Outbox.Strategy string to an
// outbox.Strategy, defaulting to BackgroundOnly for an unknown or empty
// value.
func (c OutboxConfig) OutboxStrategy() outbox.Strategy {
	if c.Strategy == "ImmediateWithFallback" {
		return outbox.ImmediateWithFallback
	}
	return outbox.BackgroundOnly
}
