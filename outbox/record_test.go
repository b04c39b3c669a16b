// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecord_PopulatesTopicKeyValueAndHeaders(t *testing.T) {
	headers, err := json.Marshal(map[string]string{"$type": "order.created"})
	require.NoError(t, err)

	row := &Row{
		ID:        uuid.New(),
		Topic:     "orders",
		AggregateID: []byte("agg-1"),
		Payload:   []byte(`{"id":1}`),
		Headers:   headers,
		CreatedAt: time.Now(),
	}

	rec := toRecord(row)
	assert.Equal(t, "orders", rec.Topic)
	assert.Equal(t, []byte("agg-1"), rec.Key)
	assert.Equal(t, []byte(`{"id":1}`), rec.Value)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "$type", rec.Headers[0].Key)
	assert.Equal(t, "order.created", string(rec.Headers[0].Value))
}

func TestToRecord_MalformedHeadersYieldsNoHeaders(t *testing.T) {
	row := &Row{Topic: "orders", Payload: []byte("x"), Headers: []byte("not json")}
	rec := toRecord(row)
	assert.Empty(t, rec.Headers)
}
