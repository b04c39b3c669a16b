// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivate_FirstCallTransitions(t *testing.T) {
	r := New()
	assert.True(t, r.Activate("order.created"))
	assert.False(t, r.Activate("order.created"))
	assert.True(t, r.Active("order.created"))
}

func TestDeactivate_LastCallTransitions(t *testing.T) {
	r := New()
	r.Activate("order.created")
	r.Activate("order.created")

	assert.False(t, r.Deactivate("order.created"))
	assert.True(t, r.Active("order.created"))
	assert.True(t, r.Deactivate("order.created"))
	assert.False(t, r.Active("order.created"))
}

func TestDeactivate_NoOpWithoutActivation(t *testing.T) {
	r := New()
	assert.False(t, r.Deactivate("order.created"))
}

func TestActiveTypes_ReflectsCurrentActivations(t *testing.T) {
	r := New()
	r.Activate("a")
	r.Activate("b")
	r.Deactivate("a")

	assert.ElementsMatch(t, []string{"b"}, r.ActiveTypes())
}

func TestRegistry_ConcurrentAccessIsSafe(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); r.Activate("t") }()
		go func() { defer wg.Done(); r.Deactivate("t") }()
	}
	wg.Wait()
}
