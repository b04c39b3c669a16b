// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	committed bool
	rolledBck bool
	commitErr error
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBck = true
	return nil
}

func newTestUOW(tx *fakeTx) *UnitOfWork {
	return &UnitOfWork{tx: tx}
}

func TestSaveChanges_RunsHooksThenCommitsThenPostCommit(t *testing.T) {
	tx := &fakeTx{}
	u := newTestUOW(tx)

	var order []string
	u.OnSaveChanges(func(ctx context.Context, tx Tx) error {
		order = append(order, "outbox-insert")
		return nil
	})
	u.OnCommitted(func(ctx context.Context) error {
		order = append(order, "offset-commit")
		return nil
	})

	err := u.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.Equal(t, []string{"outbox-insert", "offset-commit"}, order)
}

func TestSaveChanges_PreCommitHookFailureRollsBack(t *testing.T) {
	tx := &fakeTx{}
	u := newTestUOW(tx)

	boom := errors.New("boom")
	postCommitRan := false
	u.OnSaveChanges(func(ctx context.Context, tx Tx) error {
		return boom
	})
	u.OnCommitted(func(ctx context.Context) error {
		postCommitRan = true
		return nil
	})

	err := u.SaveChanges(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, tx.rolledBck)
	assert.False(t, tx.committed)
	assert.False(t, postCommitRan)
}

func TestSaveChanges_CommitFailureSkipsPostCommit(t *testing.T) {
	commitErr := errors.New("db unavailable")
	tx := &fakeTx{commitErr: commitErr}
	u := newTestUOW(tx)

	postCommitRan := false
	u.OnCommitted(func(ctx context.Context) error {
		postCommitRan = true
		return nil
	})

	err := u.SaveChanges(context.Background())
	require.Error(t, err)
	assert.False(t, postCommitRan)
}

func TestSaveChanges_ReuseAfterFinishErrors(t *testing.T) {
	tx := &fakeTx{}
	u := newTestUOW(tx)

	require.NoError(t, u.SaveChanges(context.Background()))
	err := u.SaveChanges(context.Background())
	require.Error(t, err)
}

func TestRollback_NoOpAfterSaveChanges(t *testing.T) {
	tx := &fakeTx{}
	u := newTestUOW(tx)

	require.NoError(t, u.SaveChanges(context.Background()))
	require.NoError(t, u.Rollback(context.Background()))
	assert.False(t, tx.rolledBck)
}

func TestRollback_DiscardsUncommittedWork(t *testing.T) {
	tx := &fakeTx{}
	u := newTestUOW(tx)

	require.NoError(t, u.Rollback(context.Background()))
	assert.True(t, tx.rolledBck)
	assert.False(t, tx.committed)
}
