// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package serde implements the serialization registry: a process-wide
// lookup from an options type to a factory that produces a per-message-type
// Codec, with codec instances cached per (optionsType, messageType) pair.
package serde

import (
	"fmt"
	"reflect"

	"github.com/kflowdev/kflow/concurrent"
	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/kflowerr"
)

// Codec serializes and deserializes one declared message type. The
// concrete type used on serialize is the envelope's runtime type, not the
// declared T; on deserialize, the concrete type is resolved from
// $runtimeType if present, else $type, else the declared T.
type Codec[T any] interface {
	Serialize(headers *envelope.Headers, msg *T) ([]byte, error)
	Deserialize(headers *envelope.Headers, data []byte) (*T, error)
}

// CodecFactory builds a Codec[T] the first time it is requested for a
// given options value. Factories are registered once per options type at
// process startup and are expected to be stateless/reentrant.
type CodecFactory[T any] func(options any) (Codec[T], error)

type cacheKey struct {
	optionsType reflect.Type
	messageType reflect.Type
}

// Registry maps an options type (not a string) to a factory producing a
// per-message-type codec, caching constructed codecs by
// (optionsType, messageType).
type Registry struct {
	factories map[cacheKey]func(options any, messageType reflect.Type) (any, error)
	cache     *concurrent.Cache[cacheKey, any]
}

// NewRegistry returns an empty, ready to use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[cacheKey]func(options any, messageType reflect.Type) (any, error)),
		cache:     concurrent.NewCache[cacheKey, any](),
	}
}

// Register associates the options type of the zero value `options` with a
// factory producing Codec[T]. Subsequent calls to Lookup[T] with a value of
// that options type will use f to build (and then cache) a Codec[T].
func Register[T any](r *Registry, options any, f CodecFactory[T]) {
	var zero T
	key := cacheKey{optionsType: reflect.TypeOf(options), messageType: reflect.TypeOf(zero)}
	r.factories[key] = func(opts any, messageType reflect.Type) (any, error) {
		return f(opts)
	}
}

// Lookup resolves the Codec[T] registered for options's type, constructing
// and caching it on first use. It returns a *kflowerr.Configuration error
// if no factory was registered for that options type.
func Lookup[T any](r *Registry, options any) (Codec[T], error) {
	var zero T
	msgType := reflect.TypeOf(zero)
	optType := reflect.TypeOf(options)

	key := cacheKey{optionsType: optType, messageType: msgType}
	v, err := r.cache.GetOr(key, func() (any, error) {
		factory, ok := r.factories[key]
		if !ok {
			return nil, kflowerr.NewConfiguration("serde.Registry", fmt.Sprintf("no codec factory registered for options type %s", optType))
		}
		return factory(options, msgType)
	})
	if err != nil {
		return nil, err
	}
	return v.(Codec[T]), nil
}
