// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type orderCreated struct {
	ID string
}

func TestHeaders_OrderPreserved(t *testing.T) {
	h := NewHeaders()
	h.Set(HeaderType, []byte("orderCreated"))
	h.Set(HeaderRuntimeType, []byte("orderCreated"))
	h.Set("x-tenant", []byte("acme"))

	assert.Equal(t, []string{HeaderType, HeaderRuntimeType, "x-tenant"}, h.Keys())
	assert.Equal(t, 3, h.Len())

	v, ok := h.GetString("x-tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)
}

func TestHeaders_SetOverwritesWithoutReordering(t *testing.T) {
	h := NewHeaders()
	h.Set("a", []byte("1"))
	h.Set("b", []byte("2"))
	h.Set("a", []byte("3"))

	assert.Equal(t, []string{"a", "b"}, h.Keys())
	v, _ := h.GetString("a")
	assert.Equal(t, "3", v)
}

func TestEnvelope_CleanSuppressesDownstream(t *testing.T) {
	env := New(&orderCreated{ID: "o-1"})
	assert.False(t, env.Cleaned)

	env.Clean()
	assert.True(t, env.Cleaned)
}

func TestEnvelope_DeclaredAndRuntimeType(t *testing.T) {
	env := New(&orderCreated{ID: "o-1"})
	env.Headers.Set(HeaderType, []byte("orderCreated"))
	env.Headers.Set(HeaderRuntimeType, []byte("orderCreatedV2"))

	declared, ok := env.DeclaredType()
	assert.True(t, ok)
	assert.Equal(t, "orderCreated", declared)

	runtime, ok := env.RuntimeType()
	assert.True(t, ok)
	assert.Equal(t, "orderCreatedV2", runtime)
}

func TestEnvelope_MissingHeaderNotOK(t *testing.T) {
	env := New(&orderCreated{ID: "o-1"})
	_, ok := env.DeclaredType()
	assert.False(t, ok)
}
