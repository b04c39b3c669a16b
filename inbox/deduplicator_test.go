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

type order struct {
	ID string
}

func TestNewDeduplicator_NilKeyFuncErrors(t *testing.T) {
	_, err := NewDeduplicator[order]("order.created", nil)
	require.Error(t, err)
}

func TestNewDeduplicator_BuildsWithKeyFunc(t *testing.T) {
	d, err := NewDeduplicator("order.created", func(o *order) any { return o.ID })
	require.NoError(t, err)
	assert.NotNil(t, d)

	key := d.keyFunc(&order{ID: "abc"})
	assert.Equal(t, "abc", key)
}
