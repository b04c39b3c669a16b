// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/uow"
)

const existsSQL = `SELECT 1 FROM inbox_messages WHERE hash_id = $1`

// exists reports whether hashID has already been recorded, inside tx so the
// check is consistent with the insert that follows it.
func exists(ctx context.Context, tx uow.Tx, hashID uint64) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, existsSQL, int64(hashID)).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, kflowerr.NewStorage("check inbox row", err)
}

const insertSQL = `INSERT INTO inbox_messages (hash_id, received_at) VALUES ($1, $2)`

// insert records hashID as seen, inside the same DB txn as the business
// write and the eventual offset commit.
func insert(ctx context.Context, tx uow.Tx, hashID uint64, receivedAt time.Time) error {
	_, err := tx.Exec(ctx, insertSQL, int64(hashID), receivedAt)
	if err != nil {
		return kflowerr.NewStorage("insert inbox row", err)
	}
	return nil
}

const deleteOlderThanSQL = `DELETE FROM inbox_messages WHERE received_at < $1`

// deleteOlderThan removes rows whose received_at predates cutoff, the
// periodic cleanup task.
func deleteOlderThan(ctx context.Context, pool *pgxpool.Pool, cutoff time.Time) (int64, error) {
	tag, err := pool.Exec(ctx, deleteOlderThanSQL, cutoff)
	if err != nil {
		return 0, kflowerr.NewStorage("delete expired inbox rows", err)
	}
	return tag.RowsAffected(), nil
}
