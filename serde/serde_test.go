// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package serde

import (
	"testing"

	"github.com/kflowdev/kflow/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCreated struct {
	ID   string
	Name *string
}

func TestRegistry_LookupUnknownOptionsType(t *testing.T) {
	r := NewRegistry()
	_, err := Lookup[orderCreated](r, JSONOptions{})
	require.Error(t, err)
}

func TestRegistry_SerializeRoundTrip(t *testing.T) {
	r := NewRegistry()
	Register[orderCreated](r, JSONOptions{}, NewJSONCodec[orderCreated])

	codec, err := Lookup[orderCreated](r, JSONOptions{})
	require.NoError(t, err)

	headers := envelope.NewHeaders()
	data, err := codec.Serialize(headers, &orderCreated{ID: "1"})
	require.NoError(t, err)

	typ, ok := headers.GetString(envelope.HeaderType)
	require.True(t, ok)
	assert.Contains(t, typ, "orderCreated")

	out, err := codec.Deserialize(headers, data)
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID)
	assert.Nil(t, out.Name)
}

func TestRegistry_CodecsCachedPerOptionsAndMessageType(t *testing.T) {
	r := NewRegistry()
	calls := 0
	Register[orderCreated](r, JSONOptions{}, func(opts any) (Codec[orderCreated], error) {
		calls++
		return NewJSONCodec[orderCreated](opts.(JSONOptions))
	})

	_, err := Lookup[orderCreated](r, JSONOptions{})
	require.NoError(t, err)
	_, err = Lookup[orderCreated](r, JSONOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestJSONCodec_DeserializeEmptyBytesIsNil(t *testing.T) {
	codec, err := NewJSONCodec[orderCreated](JSONOptions{})
	require.NoError(t, err)

	headers := envelope.NewHeaders()
	out, err := codec.Deserialize(headers, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestJSONCodec_DeserializeMalformedIsFatal(t *testing.T) {
	codec, err := NewJSONCodec[orderCreated](JSONOptions{})
	require.NoError(t, err)

	headers := envelope.NewHeaders()
	_, err = codec.Deserialize(headers, []byte("{not json"))
	require.Error(t, err)
}

func TestResolveTypeName_PrefersRuntimeType(t *testing.T) {
	headers := envelope.NewHeaders()
	headers.Set(envelope.HeaderType, []byte("Base"))
	headers.Set(envelope.HeaderRuntimeType, []byte("Derived"))

	name, ok := resolveTypeName(headers, "fallback")
	assert.True(t, ok)
	assert.Equal(t, "Derived", name)
}

func TestResolveTypeName_FallsBackToDeclaredType(t *testing.T) {
	headers := envelope.NewHeaders()
	name, ok := resolveTypeName(headers, "fallback")
	assert.False(t, ok)
	assert.Equal(t, "fallback", name)
}
