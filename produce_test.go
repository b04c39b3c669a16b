// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kflow

import (
	"context"
	"testing"

	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type widget struct {
	Name string
}

type fakeProducer struct {
	produced []*kgo.Record
	failWith error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	if f.failWith != nil {
		results := make(kgo.ProduceResults, len(rs))
		for i, r := range rs {
			results[i] = kgo.ProduceResult{Record: r, Err: f.failWith}
		}
		return results
	}
	f.produced = append(f.produced, rs...)
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r}
	}
	return results
}

func TestProduceStage_PublishesRecordAndCallsNext(t *testing.T) {
	producer := &fakeProducer{}
	stage := NewProduceStage[widget](producer, nil)

	env := envelope.New(&widget{Name: "gizmo"})
	env.RawPayload = []byte("gizmo")
	env.Headers.Set(envelope.HeaderType, []byte("widget"))

	called := false
	err := stage.Invoke(context.Background(), env, func(context.Context, *envelope.Envelope[widget]) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	require.Len(t, producer.produced, 1)
	assert.Equal(t, "widget", producer.produced[0].Topic)
	assert.Equal(t, []byte("gizmo"), producer.produced[0].Value)
}

func TestProduceStage_DispatchFailureIsFatal(t *testing.T) {
	producer := &fakeProducer{failWith: assert.AnError}
	stage := NewProduceStage[widget](producer, nil)

	env := envelope.New(&widget{Name: "gizmo"})
	env.Headers.Set(envelope.HeaderType, []byte("widget"))

	called := false
	err := stage.Invoke(context.Background(), env, func(context.Context, *envelope.Envelope[widget]) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestProduce_RunsChainAgainstFreshEnvelope(t *testing.T) {
	var seenMsg *widget
	chain := middleware.New(middleware.Func[widget](func(_ context.Context, env *envelope.Envelope[widget], next func(context.Context, *envelope.Envelope[widget]) error) error {
		seenMsg = env.Message
		return next(context.Background(), env)
	}))

	err := Produce(context.Background(), chain, &widget{Name: "gizmo"})
	require.NoError(t, err)
	require.NotNil(t, seenMsg)
	assert.Equal(t, "gizmo", seenMsg.Name)
}
