// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/kflowdev/kflow/envelope"
	"github.com/kflowdev/kflow/internal/telemetry"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/uow"
)

// KeyFunc extracts the dedup key from a decoded message. The runtime
// compiles this once at configuration time and reuses it for every
// envelope of type T.
type KeyFunc[T any] func(msg *T) any

// Deduplicator is the consumer middleware stage that performs at-most-once
// insertion into the inbox ledger.
type Deduplicator[T any] struct {
	typeSalt string
	keyFunc  KeyFunc[T]
	now      func() time.Time
	log      *slog.Logger
}

// NewDeduplicator builds a Deduplicator for declared type typeSalt. It
// returns a *kflowerr.Configuration error if keyFunc is nil, since the
// inbox cannot be enabled for a type without a way to extract its key.
func NewDeduplicator[T any](typeSalt string, keyFunc KeyFunc[T]) (*Deduplicator[T], error) {
	if keyFunc == nil {
		return nil, kflowerr.NewConfiguration("inbox.Deduplicator", "no dedup key accessor provided for type "+typeSalt)
	}
	return &Deduplicator[T]{
		typeSalt: typeSalt,
		keyFunc:  keyFunc,
		now:      time.Now,
		log:      telemetry.Logger("github.com/kflowdev/kflow/inbox"),
	}, nil
}

// Invoke implements middleware.Middleware[T]. The unit-of-work's
// transaction is already open when a consumer pipeline scope starts
// (uow.Store.Begin), so the existence check and the insert both run
// against that same transaction here rather than deferred to a
// SaveChanges hook — the envelope must be marked cleaned before any
// downstream stage runs, not after the application later commits.
func (d *Deduplicator[T]) Invoke(ctx context.Context, env *envelope.Envelope[T], next func(context.Context, *envelope.Envelope[T]) error) error {
	u, ok := uow.FromContext(ctx)
	if !ok || u == nil {
		return kflowerr.NewConfiguration("inbox.Deduplicator", "no *uow.UnitOfWork found on context; the host application must start one per unit-of-work scope before invoking the consumer chain")
	}

	key := d.keyFunc(env.Message)
	hashID, err := Fingerprint(d.typeSalt, key)
	if err != nil {
		return kflowerr.NewSerialization(d.typeSalt, err)
	}

	tx := u.Tx()
	found, err := exists(ctx, tx, hashID)
	if err != nil {
		return err
	}
	if found {
		d.log.DebugContext(ctx, "inbox dedup hit, dropping envelope",
			telemetry.FingerprintAttr(hashID), telemetry.MessageTypeAttr(d.typeSalt))
		env.Clean()
		return nil
	}

	if err := insert(ctx, tx, hashID, d.now()); err != nil {
		return err
	}

	return next(ctx, env)
}
