// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_DeterministicForSameInput(t *testing.T) {
	h1, err := Fingerprint("order.created", map[string]any{"orderId": "abc"})
	require.NoError(t, err)
	h2, err := Fingerprint("order.created", map[string]any{"orderId": "abc"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFingerprint_DifferentTypeSaltDiffers(t *testing.T) {
	h1, err := Fingerprint("order.created", "abc")
	require.NoError(t, err)
	h2, err := Fingerprint("order.cancelled", "abc")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestFingerprint_DifferentKeyDiffers(t *testing.T) {
	h1, err := Fingerprint("order.created", "abc")
	require.NoError(t, err)
	h2, err := Fingerprint("order.created", "xyz")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestFingerprint_RejectsUnmarshalableKey(t *testing.T) {
	_, err := Fingerprint("order.created", make(chan int))
	assert.Error(t, err)
}
