// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/kflowerr"
	"github.com/kflowdev/kflow/uow"
)

const insertSQL = `
INSERT INTO outbox_messages (id, type, topic, aggregate_id, payload, headers, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Insert writes row inside tx, the pre-commit half of the outbox writer's
// hook. The row is never acknowledged outside the same DB transaction that
// wrote the business data it accompanies.
func Insert(ctx context.Context, tx uow.Tx, row *Row) error {
	_, err := tx.Exec(ctx, insertSQL,
		row.ID, row.Type, row.Topic, row.AggregateID, row.Payload, row.Headers, row.CreatedAt,
	)
	if err != nil {
		return kflowerr.NewStorage("insert outbox row", err)
	}
	return nil
}

const selectUndispatchedSQL = `
SELECT id, type, topic, aggregate_id, payload, headers, created_at, dispatched_at
FROM outbox_messages
WHERE dispatched_at IS NULL
ORDER BY created_at ASC, id ASC
LIMIT $1`

// SelectUndispatched claims up to limit undispatched rows, ordered by
// (createdAt, id) ascending.
func SelectUndispatched(ctx context.Context, pool *pgxpool.Pool, limit int) ([]*Row, error) {
	rows, err := pool.Query(ctx, selectUndispatchedSQL, limit)
	if err != nil {
		return nil, kflowerr.NewStorage("select undispatched outbox rows", err)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Type, &r.Topic, &r.AggregateID, &r.Payload, &r.Headers, &r.CreatedAt, &r.DispatchedAt); err != nil {
			return nil, kflowerr.NewStorage("scan outbox row", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, kflowerr.NewStorage("iterate outbox rows", err)
	}
	return out, nil
}

const deleteSQL = `DELETE FROM outbox_messages WHERE id = $1`

// deleteDispatched removes a row once its Kafka ack has been confirmed.
func deleteDispatched(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) error {
	_, err := pool.Exec(ctx, deleteSQL, id)
	if err != nil {
		return kflowerr.NewStorage("delete dispatched outbox row", err)
	}
	return nil
}

const claimForImmediateSQL = `
UPDATE outbox_messages
SET dispatched_at = $2
WHERE id = $1 AND dispatched_at IS NULL
RETURNING id`

// claimForImmediate atomically reserves row for an ImmediateWithFallback
// dispatch attempt so the background Worker never double-dispatches it. It
// returns false if the Worker already claimed (and is concurrently
// dispatching) the row first.
func claimForImmediate(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := pool.Exec(ctx, claimForImmediateSQL, id, now)
	if err != nil {
		return false, kflowerr.NewStorage("claim outbox row for immediate dispatch", err)
	}
	return tag.RowsAffected() == 1, nil
}

const revertClaimSQL = `UPDATE outbox_messages SET dispatched_at = NULL WHERE id = $1`

// revertClaim un-reserves a row after a failed immediate-dispatch attempt
// so the background Worker's next tick can retry it.
func revertClaim(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) error {
	_, err := pool.Exec(ctx, revertClaimSQL, id)
	if err != nil {
		return kflowerr.NewStorage("revert outbox row claim", err)
	}
	return nil
}
