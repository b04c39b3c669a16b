// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package envelope defines the in-flight message container that flows
// through kflow's producer and consumer middleware chains.
package envelope

// Reserved header keys written by the serialization registry (serde.Registry)
// and read back on deserialize to resolve polymorphic types.
const (
	HeaderType        = "$type"
	HeaderRuntimeType = "$runtimeType"
)

// TopicPartitionOffset identifies the Kafka coordinate a consumed record was
// read from. It is populated only on the consume path.
type TopicPartitionOffset struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Headers is an ordered mapping of header key to raw bytes. Order is
// preserved so that produced records carry headers in a stable, predictable
// sequence (useful for golden-file wire tests).
type Headers struct {
	keys   []string
	values map[string][]byte
}

// NewHeaders returns an empty, ready to use Headers value.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]byte)}
}

// Set inserts or overwrites the value for key, preserving first-insertion
// order for iteration.
func (h *Headers) Set(key string, value []byte) {
	if h.values == nil {
		h.values = make(map[string][]byte)
	}
	if _, exists := h.values[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value for key and whether it was present.
func (h *Headers) Get(key string) ([]byte, bool) {
	if h == nil || h.values == nil {
		return nil, false
	}
	v, ok := h.values[key]
	return v, ok
}

// GetString is a convenience wrapper around Get that decodes the stored
// bytes as a UTF-8 string.
func (h *Headers) GetString(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Keys returns the header keys in insertion order.
func (h *Headers) Keys() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Len returns the number of distinct headers.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Envelope is the per-message carrier threaded through a middleware Chain.
// Envelopes are allocated at pipeline entry and released at pipeline exit;
// they are never shared across goroutines.
type Envelope[T any] struct {
	// Message is the typed payload. On the consume path it is absent (nil)
	// until the consumer pipeline decodes RawPayload into it. Downstream
	// work is suppressed through Cleaned, not by clearing Message.
	Message *T

	Headers *Headers

	// Key is the partition key, copied off the Kafka record on consume. On
	// produce it stays nil unless a middleware stage sets it; the module
	// has no built-in key accessor.
	Key []byte

	// RawPayload holds serialized bytes: present on the consume path before
	// deserialization, and populated on the producer path after serialize.
	RawPayload []byte

	// TopicPartitionOffset is populated only on the consume path.
	TopicPartitionOffset *TopicPartitionOffset

	// Cleaned signals to subsequent middleware stages that no more work is
	// required for this envelope (e.g. an inbox dedup hit).
	Cleaned bool
}

// New allocates an empty envelope ready for a producer chain.
func New[T any](msg *T) *Envelope[T] {
	return &Envelope[T]{
		Message: msg,
		Headers: NewHeaders(),
	}
}

// DeclaredType returns the envelope's declared `$type` header, if set.
func (e *Envelope[T]) DeclaredType() (string, bool) {
	return e.Headers.GetString(HeaderType)
}

// RuntimeType returns the envelope's concrete `$runtimeType` header, if set.
func (e *Envelope[T]) RuntimeType() (string, bool) {
	return e.Headers.GetString(HeaderRuntimeType)
}

// Clean marks the envelope as cleaned, the mechanism middleware stages use
// to short-circuit the remainder of the chain.
func (e *Envelope[T]) Clean() {
	e.Cleaned = true
}
