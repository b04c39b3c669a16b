// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package serde

import (
	"encoding/json"
	"fmt"

	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/kflowerr"
)

// JSONOptions selects the JSON codec family. This type and its factory
// exist as the reference implementation exercised by kflow's own tests and
// examples, and are built on encoding/json because no third-party JSON
// library appears anywhere in the example corpus this module was grounded
// on (see DESIGN.md).
type JSONOptions struct {
	// TypeName overrides the $type header written on serialize. If empty,
	// the Go type name of T is used.
	TypeName string
}

// JSONCodec implements Codec[T] using encoding/json, writing $type and
// $runtimeType headers on serialize. On deserialize it always decodes into
// T; the type name resolved from those headers is used only in error
// reports, and no other concrete type is ever constructed.
type JSONCodec[T any] struct {
	declaredTypeName string
}

// NewJSONCodec builds a JSONCodec[T] for use with Register.
func NewJSONCodec[T any](opts JSONOptions) (Codec[T], error) {
	declared := opts.TypeName
	if declared == "" {
		var zero T
		declared = fmt.Sprintf("%T", zero)
	}
	return &JSONCodec[T]{declaredTypeName: declared}, nil
}

func (c *JSONCodec[T]) Serialize(headers *envelope.Headers, msg *T) ([]byte, error) {
	if msg == nil {
		return nil, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, kflowerr.NewSerialization(c.declaredTypeName, err)
	}

	headers.Set(envelope.HeaderType, []byte(c.declaredTypeName))
	if _, exists := headers.Get(envelope.HeaderRuntimeType); !exists {
		headers.Set(envelope.HeaderRuntimeType, []byte(fmt.Sprintf("%T", msg)))
	}
	return data, nil
}

func (c *JSONCodec[T]) Deserialize(headers *envelope.Headers, data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// Resolution order: $runtimeType, then $type, then declared T.
	// The reference JSON codec only has one concrete Go
	// type to unmarshal into regardless of which name resolves, since Go
	// lacks runtime polymorphic construction from a type name without a
	// registry of constructors; callers needing true polymorphic dispatch
	// register a dedicated Codec[T] per concrete subtype instead.
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		typeName, _ := resolveTypeName(headers, c.declaredTypeName)
		return nil, kflowerr.NewSerialization(typeName, err)
	}
	return &msg, nil
}

// resolveTypeName implements the $runtimeType -> $type -> declared
// fallback chain used for error reporting and for codecs that dispatch on
// name explicitly.
func resolveTypeName(headers *envelope.Headers, declared string) (string, bool) {
	if rt, ok := headers.GetString(envelope.HeaderRuntimeType); ok && rt != "" {
		return rt, true
	}
	if t, ok := headers.GetString(envelope.HeaderType); ok && t != "" {
		return t, true
	}
	return declared, false
}
