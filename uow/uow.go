// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package uow specifies the unit-of-work boundary this core binds against.
// The host ORM / change-tracker stays the application's own concern; this
// package is the thin, concrete contract kflow needs from it: a DB
// transaction, a registered-hook SaveChanges, and commit ordering that
// guarantees the DB transaction lands before any Kafka offset commit.
//
// Store is a reference implementation over pgx/pgxpool, grounded on
// github.com/z5labs/humus's own pgx dependency and on the claim/commit SQL
// pattern in other_examples's fitpulse outbox dispatcher.
package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/kflowerr"
)

// CtxKey is the context key middleware uses to find the active
// UnitOfWork. The host application calls context.WithValue(ctx,
// uow.CtxKey{}, u) once per scope before invoking the producer chain.
type CtxKey struct{}

// WithContext returns a copy of ctx carrying u, retrievable by middleware
// (outbox.Writer on produce, inbox dedup on consume) via CtxKey.
func WithContext(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, CtxKey{}, u)
}

// FromContext retrieves the UnitOfWork stored by WithContext, if any.
func FromContext(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(CtxKey{}).(*UnitOfWork)
	return u, ok
}

// Tx is the narrow slice of pgx.Tx that hooks need to read/write rows
// inside the unit-of-work's transaction. It is satisfied structurally by
// *pgx.Tx itself; declaring it here (rather than depending on the full
// pgx.Tx interface) keeps hook authors decoupled from transaction lifecycle
// methods they must never call directly (Commit/Rollback belong solely to
// UnitOfWork.SaveChanges/Rollback).
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txLifecycle is the full set of methods UnitOfWork itself needs: Tx plus
// commit/rollback. pgx.Tx satisfies it structurally.
type txLifecycle interface {
	Tx
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Hook runs inside the DB transaction, before commit. The outbox writer
// registers one to insert its OutboxRow. The inbox deduplicator registers
// none: it inserts its InboxRow straight through Tx when it runs.
type Hook func(ctx context.Context, tx Tx) error

// PostCommitHook runs after the DB transaction has committed successfully.
// consumer.CommitAfter registers one to commit the Kafka offset returned
// by the consumer pipeline; the outbox writer's ImmediateWithFallback strategy registers one
// to attempt a synchronous produce.
type PostCommitHook func(ctx context.Context) error

// UnitOfWork wraps a single pgx transaction plus the ordered hook lists
// invoked by SaveChanges.
type UnitOfWork struct {
	tx         txLifecycle
	preCommit  []Hook
	postCommit []PostCommitHook
	done       bool
}

// Store is a pgxpool-backed factory for UnitOfWork scopes. A DB connection
// is owned solely by the UnitOfWork it was begun for, never shared across
// scopes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pgxpool.Pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool, for components (outbox worker, inbox
// cleanup) that need ad-hoc queries outside of an application-driven
// UnitOfWork.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Begin starts a new UnitOfWork scope.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, kflowerr.NewStorage("begin transaction", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Tx exposes the underlying transaction so business code and middleware
// can read/write application tables in the same scope as the outbox/inbox
// rows.
func (u *UnitOfWork) Tx() Tx {
	return u.tx
}

// OnSaveChanges registers a pre-commit hook. Hooks run in registration
// order; the outbox writer middleware registers before business code calls
// SaveChanges, satisfying "serialize & insert outbox rows" as step 1 of the
// save-changes hook list.
func (u *UnitOfWork) OnSaveChanges(h Hook) {
	u.preCommit = append(u.preCommit, h)
}

// OnCommitted registers a post-commit hook, run only once the transaction
// has committed successfully. Used for Kafka offset commits and
// ImmediateWithFallback produce attempts.
func (u *UnitOfWork) OnCommitted(h PostCommitHook) {
	u.postCommit = append(u.postCommit, h)
}

// SaveChanges runs every pre-commit hook in order, commits the underlying
// transaction, and then runs every post-commit hook in order. If any
// pre-commit hook or the commit itself fails, the transaction is rolled
// back and no post-commit hook runs — outbox rows, inbox rows and business
// state all vanish together. A post-commit hook failure is returned to the
// caller but does not and cannot roll back the already-committed
// transaction; a crash or failure between DB commit and offset commit
// produces a duplicate on redelivery, which the inbox absorbs.
func (u *UnitOfWork) SaveChanges(ctx context.Context) error {
	if u.done {
		return kflowerr.NewStorage("save changes", errAlreadyFinished)
	}

	for _, hook := range u.preCommit {
		if err := hook(ctx, u.tx); err != nil {
			_ = u.tx.Rollback(ctx)
			u.done = true
			return err
		}
	}

	if err := u.tx.Commit(ctx); err != nil {
		u.done = true
		return kflowerr.NewStorage("commit transaction", err)
	}
	u.done = true

	for _, hook := range u.postCommit {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Rollback aborts the unit of work, discarding every pre-commit hook's
// effect and running no post-commit hook.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback(ctx)
}

type errUOWReused struct{}

func (errUOWReused) Error() string { return "uow: unit of work already committed or rolled back" }

var errAlreadyFinished error = errUOWReused{}
