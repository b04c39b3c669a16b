// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/kflowdev/kflow/buffer"
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type widget struct {
	Name string
}

type fakeCodec struct {
	deserialized int
	failOn       int
}

func (f *fakeCodec) Serialize(headers *envelope.Headers, msg *widget) ([]byte, error) {
	return []byte(msg.Name), nil
}

func (f *fakeCodec) Deserialize(headers *envelope.Headers, data []byte) (*widget, error) {
	f.deserialized++
	return &widget{Name: string(data)}, nil
}

type fakeCommitter struct {
	committed []*kgo.Record
}

func (f *fakeCommitter) CommitRecords(ctx context.Context, rs ...*kgo.Record) error {
	f.committed = append(f.committed, rs...)
	return nil
}

func TestPipeline_DeliversDeserializedMessage(t *testing.T) {
	buf, err := buffer.New[*envelope.Envelope[widget]](4)
	require.NoError(t, err)

	enqueue, _ := NewEnqueueFuncs(buf)
	assert.True(t, enqueue(context.Background(), &kgo.Record{Topic: "widgets", Value: []byte("gizmo")}))

	codec := &fakeCodec{}
	committer := &fakeCommitter{}
	chain := middleware.New[widget]()
	p := NewPipeline(buf, codec, chain, committer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, commit, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gizmo", msg.Name)
	assert.Equal(t, 1, codec.deserialized)

	require.NoError(t, commit(context.Background()))
	assert.Len(t, committer.committed, 1)
}

func TestPipeline_SkipsCleanedEnvelopes(t *testing.T) {
	buf, err := buffer.New[*envelope.Envelope[widget]](4)
	require.NoError(t, err)

	enqueue, _ := NewEnqueueFuncs(buf)
	assert.True(t, enqueue(context.Background(), &kgo.Record{Topic: "widgets", Value: []byte("dropped")}))
	assert.True(t, enqueue(context.Background(), &kgo.Record{Topic: "widgets", Value: []byte("kept")}))

	codec := &fakeCodec{}
	committer := &fakeCommitter{}
	chain := middleware.New(middleware.Func[widget](func(ctx context.Context, env *envelope.Envelope[widget], next func(context.Context, *envelope.Envelope[widget]) error) error {
		if env.Message.Name == "dropped" {
			env.Clean()
			return nil
		}
		return next(ctx, env)
	}))
	p := NewPipeline(buf, codec, chain, committer)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, _, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", msg.Name)
}

func TestPipeline_FatalMiddlewareErrorWraps(t *testing.T) {
	buf, err := buffer.New[*envelope.Envelope[widget]](4)
	require.NoError(t, err)
	enqueue, _ := NewEnqueueFuncs(buf)
	enqueue(context.Background(), &kgo.Record{Topic: "widgets", Value: []byte("x")})

	boom := assert.AnError
	chain := middleware.New(middleware.Func[widget](func(ctx context.Context, env *envelope.Envelope[widget], next func(context.Context, *envelope.Envelope[widget]) error) error {
		return boom
	}))
	p := NewPipeline(buf, &fakeCodec{}, chain, &fakeCommitter{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err = p.Next(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	var fatal *kflowerr.PipelineFatal
	assert.ErrorAs(t, err, &fatal)
}
