// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package serde

import (
	"context"

	"github.com/kflowdev/kflow/envelope"
)

// Stage adapts a Codec into the producer chain's leading Serialize stage,
// ahead of an outbox.Writer or a direct-publish Produce stage. It populates env.RawPayload and the $type / $runtimeType
// headers before handing off to the rest of the chain.
type Stage[T any] struct {
	codec Codec[T]
}

// NewStage builds the Serialize stage for codec.
func NewStage[T any](codec Codec[T]) *Stage[T] {
	return &Stage[T]{codec: codec}
}

func (s *Stage[T]) Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error {
	data, err := s.codec.Serialize(env.Headers, env.Message)
	if err != nil {
		return err
	}
	env.RawPayload = data
	return next(ctx, env)
}
