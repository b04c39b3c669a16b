// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package middleware implements the ordered producer/consumer stage chain.
// It generalizes the three-phase Consumer/Processor/Acknowledger split from
// github.com/z5labs/humus/queue into an arbitrary ordered list of stages
// that share a single Envelope and can short-circuit by marking it cleaned.
package middleware

import (
	"context"

	"github.com/kflowdev/kflow/envelope"
)

// Middleware is one stage in a producer or consumer chain. Invoke may
// mutate env, short-circuit the remaining chain by calling env.Clean(),
// or return an error which is fatal to the envelope.
type Middleware[T any] interface {
	Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error
}

// Func adapts a plain function to the Middleware interface.
type Func[T any] func(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error

func (f Func[T]) Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error {
	return f(ctx, env, next)
}

// Chain is an ordered, immutable-after-construction list of stages built
// once per pipeline (producer or consumer) and reused across every
// unit-of-work scope that pipeline serves. Disabled stages are simply
// omitted from the slice passed to New; the chain never skips a stage at
// invocation time.
type Chain[T any] struct {
	stages []Middleware[T]
}

// New builds a Chain from stages in invocation order. A nil entry panics,
// since a disabled middleware must be omitted by the caller rather than
// included as a placeholder.
func New[T any](stages ...Middleware[T]) *Chain[T] {
	for _, s := range stages {
		if s == nil {
			panic("middleware: nil stage passed to chain; omit disabled stages instead of including a nil placeholder")
		}
	}
	return &Chain[T]{stages: stages}
}

// Run invokes every stage in order, short-circuiting as soon as a stage
// marks the envelope cleaned or returns an error. It returns the first
// error encountered, which is fatal to the envelope.
func (c *Chain[T]) Run(ctx context.Context, env *envelope.Envelope[T]) error {
	return c.runFrom(ctx, 0, env)
}

func (c *Chain[T]) runFrom(ctx context.Context, idx int, env *envelope.Envelope[T]) error {
	if env.Cleaned || idx >= len(c.stages) {
		return nil
	}

	stage := c.stages[idx]
	next := func(nextCtx context.Context, nextEnv *envelope.Envelope[T]) error {
		return c.runFrom(nextCtx, idx+1, nextEnv)
	}
	return stage.Invoke(ctx, env, next)
}

// Len returns the number of stages in the chain.
func (c *Chain[T]) Len() int {
	return len(c.stages)
}
