// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kflowdev/kflow/internal/telemetry"
)

// Default cleanup knobs.
const (
	DefaultCleanupInterval = time.Hour
	DefaultRetentionWindow = 24 * time.Hour
)

// Lease gates Cleanup to the same exclusivity winner as the outbox worker,
// satisfied structurally by *outbox.Lease.
type Lease interface {
	Held() bool
}

// Cleanup periodically deletes inbox rows past their retention window.
type Cleanup struct {
	pool     *pgxpool.Pool
	lease    Lease
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// CleanupOption configures a Cleanup.
type CleanupOption func(*Cleanup)

// WithCleanupInterval overrides the default 1h tick.
func WithCleanupInterval(d time.Duration) CleanupOption {
	return func(c *Cleanup) { c.interval = d }
}

// WithRetentionWindow overrides the default 24h retention.
func WithRetentionWindow(d time.Duration) CleanupOption {
	return func(c *Cleanup) { c.window = d }
}

// NewCleanup builds a Cleanup job gated by lease.
func NewCleanup(pool *pgxpool.Pool, lease Lease, opts ...CleanupOption) *Cleanup {
	c := &Cleanup{
		pool:     pool,
		lease:    lease,
		interval: DefaultCleanupInterval,
		window:   DefaultRetentionWindow,
		now:      time.Now,
		log:      telemetry.Logger("github.com/kflowdev/kflow/inbox"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the cleanup loop until ctx is cancelled.
func (c *Cleanup) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Cleanup) tick(ctx context.Context) {
	if !c.lease.Held() {
		return
	}

	cutoff := c.now().Add(-c.window)
	n, err := deleteOlderThan(ctx, c.pool, cutoff)
	if err != nil {
		c.log.WarnContext(ctx, "inbox cleanup tick failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		c.log.InfoContext(ctx, "inbox cleanup removed expired rows", slog.Int64("rows_deleted", n))
	}
}
