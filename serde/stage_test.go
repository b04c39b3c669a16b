// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package serde

import (
	"context"
	"testing"

	"github.com/kflowdev/kflow/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_PopulatesRawPayloadAndCallsNext(t *testing.T) {
	codec, err := NewJSONCodec[orderCreated](JSONOptions{})
	require.NoError(t, err)
	stage := NewStage[orderCreated](codec)

	env := envelope.New(&orderCreated{ID: "42"})
	called := false
	err = stage.Invoke(context.Background(), env, func(_ context.Context, e *envelope.Envelope[orderCreated]) error {
		called = true
		assert.NotEmpty(t, e.RawPayload)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	typ, ok := env.Headers.GetString(envelope.HeaderType)
	require.True(t, ok)
	assert.Contains(t, typ, "orderCreated")
}

func TestStage_SerializeErrorShortCircuits(t *testing.T) {
	stage := NewStage[orderCreated](failingCodec{})

	env := envelope.New(&orderCreated{ID: "42"})
	called := false
	err := stage.Invoke(context.Background(), env, func(context.Context, *envelope.Envelope[orderCreated]) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

type failingCodec struct{}

func (failingCodec) Serialize(*envelope.Headers, *orderCreated) ([]byte, error) {
	return nil, assert.AnError
}

func (failingCodec) Deserialize(*envelope.Headers, []byte) (*orderCreated, error) {
	return nil, assert.AnError
}
