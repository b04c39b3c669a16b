// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kflow

import (
	"context"
	"sync"
	"testing"

	"github.com/kflowdev/kflow/consumer"
	"github.com/kflowdev/kflow/kconfig"
	"github.com/kflowdev/kflow/middleware"
	"github.com/kflowdev/kflow/serde"
	"github.com/kflowdev/kflow/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakePollClient struct {
	mu    sync.Mutex
	added []string
}

func (f *fakePollClient) AddConsumeTopics(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, topics...)
}
func (f *fakePollClient) PurgeTopicsFromClient(topics ...string) {}
func (f *fakePollClient) PollFetches(ctx context.Context) kgo.Fetches {
	<-ctx.Done()
	return kgo.Fetches{}
}
func (f *fakePollClient) PauseFetchPartitions(tp map[string][]int32) map[string][]int32 { return nil }
func (f *fakePollClient) ResumeFetchPartitions(tp map[string][]int32)                   {}
func (f *fakePollClient) Close()                                                        {}

func TestNewConsumer_BindsBufferAndBuildsPipeline(t *testing.T) {
	client := &fakePollClient{}
	c := &Client{
		cfg:         kconfig.Default(),
		PollService: consumer.NewPollService(client, subscription.New()),
	}

	codec, err := serde.NewJSONCodec[widget](serde.JSONOptions{})
	require.NoError(t, err)
	chain := middleware.New[widget]()

	pipeline, err := NewConsumer(c, "widgets", "widget", codec, chain)
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
	assert.Equal(t, []string{"widgets"}, client.added)
}

func TestNewConsumer_RejectsInvertedWatermarksFromConfig(t *testing.T) {
	client := &fakePollClient{}
	cfg := kconfig.Default()
	cfg.Consumer.HighWaterMark = 0.1
	cfg.Consumer.LowWaterMark = 0.9
	c := &Client{
		cfg:         cfg,
		PollService: consumer.NewPollService(client, subscription.New()),
	}

	codec, err := serde.NewJSONCodec[widget](serde.JSONOptions{})
	require.NoError(t, err)
	chain := middleware.New[widget]()

	_, err = NewConsumer(c, "widgets", "widget", codec, chain)
	require.Error(t, err)
}
