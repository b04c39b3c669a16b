// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package outbox implements the transactional outbox writer and its
// background polling worker, gated by the exclusivity Lease defined in
// this package.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kflowdev/kflow/envelope"
)

// Row is the durable queue row persisted to the outbox_messages table.
// IDs are UUIDv7 so rows are time-sortable by id alone.
type Row struct {
	ID           uuid.UUID
	Type         string
	Topic        string
	AggregateID  []byte
	Payload      []byte
	Headers      json.RawMessage
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

// NewRow builds a Row ready for insertion, deriving its id and createdAt
// at construction time. headers must already include $type/$runtimeType as
// written by the producer chain's Serialize stage.
func NewRow(typ, topic string, aggregateID, payload []byte, headers *envelope.Headers, now time.Time) (*Row, error) {
	encodedHeaders, err := encodeHeaders(headers)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &Row{
		ID:          id,
		Type:        typ,
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		Headers:     encodedHeaders,
		CreatedAt:   now,
	}, nil
}

func encodeHeaders(headers *envelope.Headers) (json.RawMessage, error) {
	m := make(map[string]string, headers.Len())
	for _, k := range headers.Keys() {
		v, _ := headers.GetString(k)
		m[k] = v
	}
	return json.Marshal(m)
}

// Dispatched reports whether the row has already been confirmed delivered.
func (r *Row) Dispatched() bool {
	return r.DispatchedAt != nil
}
