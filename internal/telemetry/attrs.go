// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import "log/slog"

// GroupIDAttr returns a slog attribute for the Kafka consumer group ID.
func GroupIDAttr(groupID string) slog.Attr {
	return slog.String("messaging.consumer.group.name", groupID)
}

// TopicAttr returns a slog attribute for the Kafka topic.
func TopicAttr(topic string) slog.Attr {
	return slog.String("messaging.destination.name", topic)
}

// PartitionAttr returns a slog attribute for the Kafka partition.
func PartitionAttr(partition int32) slog.Attr {
	return slog.Int64("messaging.destination.partition.id", int64(partition))
}

// OffsetAttr returns a slog attribute for the Kafka offset.
func OffsetAttr(offset int64) slog.Attr {
	return slog.Int64("messaging.kafka.offset", offset)
}

// MessageTypeAttr returns a slog attribute for the declared message type.
func MessageTypeAttr(typ string) slog.Attr {
	return slog.String("messaging.message.type", typ)
}

// FingerprintAttr returns a slog attribute for an inbox dedup fingerprint.
func FingerprintAttr(hash uint64) slog.Attr {
	return slog.Uint64("kflow.inbox.hash_id", hash)
}

// OutboxRowAttr returns a slog attribute for an outbox row id.
func OutboxRowAttr(id string) slog.Attr {
	return slog.String("kflow.outbox.id", id)
}

// ErrorType returns a safe, non-sensitive classification of an error for
// metrics labels, matching queue/kafka's approach of never surfacing raw
// error strings as label values.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	return "processing_error"
}
