// Package retention prunes historical rows on a schedule. Resolved
// membership requests and audit entries are kept for a while as history,
// not forever.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/requests"
)

const (
	// DefaultRequestDays is how long resolved membership requests are kept
	DefaultRequestDays = 180

	// DefaultAuditDays is how long audit log entries are kept
	DefaultAuditDays = 365
)

// DeleteOldAuditEntries deletes audit_log rows older than the specified days.
// Idempotent, safe to run repeatedly.
//
// Returns the number of rows deleted.
func DeleteOldAuditEntries(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	query := `
		DELETE FROM audit_log
		WHERE created_at < NOW() - make_interval(days => $1)
	`

	tag, err := pool.Exec(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit entries: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob prunes resolved membership requests and old audit entries
// and logs the results. This is the entry point called by the cron scheduler.
// Pending requests are never touched.
func RunRetentionJob(ctx context.Context, pool *pgxpool.Pool, requestDays, auditDays int) error {
	log.Info().
		Int("request_retention_days", requestDays).
		Int("audit_retention_days", auditDays).
		Msg("Starting retention job")

	startTime := time.Now()

	requestsDeleted, err := requests.NewStore(pool).DeleteResolvedBefore(ctx, requestDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune membership requests")
		return fmt.Errorf("membership request cleanup failed: %w", err)
	}

	auditDeleted, err := DeleteOldAuditEntries(ctx, pool, auditDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune audit log")
		return fmt.Errorf("audit log cleanup failed: %w", err)
	}

	log.Info().
		Int64("requests_deleted", requestsDeleted).
		Int64("audit_entries_deleted", auditDeleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}
