// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeClient struct {
	mu      sync.Mutex
	added   []string
	purged  []string
	paused  []map[string][]int32
	resumed []map[string][]int32
	closed  bool
}

func (f *fakeClient) AddConsumeTopics(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, topics...)
}

func (f *fakeClient) PurgeTopicsFromClient(topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, topics...)
}

func (f *fakeClient) PollFetches(ctx context.Context) kgo.Fetches {
	<-ctx.Done()
	return kgo.Fetches{}
}

func (f *fakeClient) PauseFetchPartitions(tp map[string][]int32) map[string][]int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, tp)
	return nil
}

func (f *fakeClient) ResumeFetchPartitions(tp map[string][]int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, tp)
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestBind_FirstActivationSubscribes(t *testing.T) {
	client := &fakeClient{}
	svc := NewPollService(client, subscription.New())

	buf, err := buffer.New[*envelope.Envelope[widget]](4)
	require.NoError(t, err)

	tryEnqueue, enqueueBlocking := NewEnqueueFuncs(buf)
	Bind(svc, "widgets", "widget", buf, tryEnqueue, enqueueBlocking)
	assert.Equal(t, []string{"widgets"}, client.added)
}

func TestUnbind_LastDeactivationUnsubscribes(t *testing.T) {
	client := &fakeClient{}
	svc := NewPollService(client, subscription.New())

	buf, err := buffer.New[*envelope.Envelope[widget]](4)
	require.NoError(t, err)

	tryEnqueue, enqueueBlocking := NewEnqueueFuncs(buf)
	Bind(svc, "widgets", "widget", buf, tryEnqueue, enqueueBlocking)
	svc.Unbind("widgets", "widget")
	assert.Equal(t, []string{"widgets"}, client.purged)
}

func TestDispatch_PausesOnBackpressureReject(t *testing.T) {
	client := &fakeClient{}
	svc := NewPollService(client, subscription.New())

	buf, err := buffer.New[*envelope.Envelope[widget]](1)
	require.NoError(t, err)
	tryEnqueue, enqueueBlocking := NewEnqueueFuncs(buf)
	Bind(svc, "widgets", "widget", buf, tryEnqueue, enqueueBlocking)

	svc.dispatch(context.Background(), &kgo.Record{Topic: "widgets", Partition: 0, Value: []byte("a")})

	// Drain the buffer shortly after the second record blocks on enqueue,
	// proving the record is retried (never dropped) rather than discarded.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = buf.Dequeue()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.dispatch(ctx, &kgo.Record{Topic: "widgets", Partition: 0, Value: []byte("b")})

	require.Len(t, client.paused, 1)
	assert.Equal(t, []int32{0}, client.paused[0]["widgets"])
	assert.Equal(t, 1, buf.Len())
}

func TestDispatch_UnboundTopicIsDropped(t *testing.T) {
	client := &fakeClient{}
	svc := NewPollService(client, subscription.New())
	svc.dispatch(context.Background(), &kgo.Record{Topic: "unknown", Value: []byte("a")})
	assert.Empty(t, client.paused)
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	client := &fakeClient{}
	svc := NewPollService(client, subscription.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx)
	assert.NoError(t, err)
	assert.True(t, client.closed)
}
