// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kflowerr defines the error kinds shared across kflow's producer
// and consumer pipelines. Each kind is a distinct type so callers can use
// errors.As to branch on the failure class without string matching, the
// same way github.com/z5labs/humus/queue distinguishes its EOQ sentinel
// from ordinary errors.
package kflowerr

import "fmt"

// Configuration indicates a middleware or component was misconfigured
// (missing dedup key accessor, unknown codec options type, invalid
// watermark ordering, ...). Most are returned at construction time; the
// outbox writer and inbox deduplicator also return one when invoked
// without a unit of work on the context.
type Configuration struct {
	Component string
	Reason    string
}

func (e *Configuration) Error() string {
	return fmt.Sprintf("kflow: configuration error in %s: %s", e.Component, e.Reason)
}

// NewConfiguration builds a *Configuration error.
func NewConfiguration(component, reason string) error {
	return &Configuration{Component: component, Reason: reason}
}

// Serialization wraps a codec failure during serialize/deserialize. It is
// fatal to the envelope that triggered it.
type Serialization struct {
	Type string
	Err  error
}

func (e *Serialization) Error() string {
	return fmt.Sprintf("kflow: serialization error for type %s: %v", e.Type, e.Err)
}

func (e *Serialization) Unwrap() error { return e.Err }

// NewSerialization wraps err as a Serialization error for the given type.
func NewSerialization(typ string, err error) error {
	if err == nil {
		return nil
	}
	return &Serialization{Type: typ, Err: err}
}

// Dispatch wraps a Kafka produce ack failure/timeout encountered by the
// outbox writer or polling worker. The caller should leave the row in
// place and retry on the next tick.
type Dispatch struct {
	Topic string
	Err   error
}

func (e *Dispatch) Error() string {
	return fmt.Sprintf("kflow: dispatch error for topic %s: %v", e.Topic, e.Err)
}

func (e *Dispatch) Unwrap() error { return e.Err }

// NewDispatch wraps err as a Dispatch error for the given topic.
func NewDispatch(topic string, err error) error {
	if err == nil {
		return nil
	}
	return &Dispatch{Topic: topic, Err: err}
}

// Storage wraps a DB unavailability/failure encountered while reading or
// writing outbox/inbox rows.
type Storage struct {
	Op  string
	Err error
}

func (e *Storage) Error() string {
	return fmt.Sprintf("kflow: storage error during %s: %v", e.Op, e.Err)
}

func (e *Storage) Unwrap() error { return e.Err }

// NewStorage wraps err as a Storage error for the given operation.
func NewStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Storage{Op: op, Err: err}
}

// Lease represents a coordination-group rebalance or lost-lease condition.
// It is never surfaced to application code; the outbox worker simply idles
// until the lease is reacquired.
type Lease struct {
	Reason string
}

func (e *Lease) Error() string {
	return fmt.Sprintf("kflow: lease error: %s", e.Reason)
}

// NewLease builds a *Lease error.
func NewLease(reason string) error {
	return &Lease{Reason: reason}
}

// PipelineFatal wraps an unhandled error raised by consumer middleware. It
// bubbles up through the pipeline's iterator with the Kafka offset left
// uncommitted.
type PipelineFatal struct {
	Stage string
	Err   error
}

func (e *PipelineFatal) Error() string {
	return fmt.Sprintf("kflow: pipeline fatal in stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineFatal) Unwrap() error { return e.Err }

// NewPipelineFatal wraps err as a PipelineFatal error for the given stage.
func NewPipelineFatal(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineFatal{Stage: stage, Err: err}
}

// Cancellation is returned at suspension points once the caller's
// cancellation token has tripped.
type Cancellation struct {
	Err error
}

func (e *Cancellation) Error() string {
	return fmt.Sprintf("kflow: operation cancelled: %v", e.Err)
}

func (e *Cancellation) Unwrap() error { return e.Err }

// NewCancellation wraps ctx.Err() (or an equivalent) as a typed Cancellation.
func NewCancellation(err error) error {
	if err == nil {
		return nil
	}
	return &Cancellation{Err: err}
}
