// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package outbox

import (
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
)

// toRecord converts a durable outbox Row back into a producible Kafka
// record, for both the Worker's batch dispatch and the Writer's
// ImmediateWithFallback fast path.
func toRecord(row *Row) *kgo.Record {
	r := &kgo.Record{
		Topic: row.Topic,
		Key:   row.AggregateID,
		Value: row.Payload,
	}

	var headers map[string]string
	if err := json.Unmarshal(row.Headers, &headers); err != nil {
		return r
	}
	for k, v := range headers {
		r.Headers = append(r.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return r
}
