package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flightontime/flightontime/internal/core"
)

// AdmissionQuery selects admission rows by exact key, key prefix, or all.
type AdmissionQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q AdmissionQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

func (q AdmissionQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE client_key = ?", []any{key}, nil
	}
	return "WHERE client_key LIKE ? ESCAPE '\\'", []any{escapeLike(strings.TrimSpace(q.Prefix)) + "%"}, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

const upsertAdmission = `
	INSERT INTO admission_stats (client_key, allowed_count, rejected_count, first_seen, last_seen, last_rejected_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(client_key) DO UPDATE SET
		allowed_count = allowed_count + excluded.allowed_count,
		rejected_count = rejected_count + excluded.rejected_count,
		first_seen = MIN(first_seen, excluded.first_seen),
		last_seen = MAX(last_seen, excluded.last_seen),
		last_rejected_at = CASE
			WHEN excluded.last_rejected_at IS NULL THEN last_rejected_at
			WHEN last_rejected_at IS NULL THEN excluded.last_rejected_at
			ELSE MAX(last_rejected_at, excluded.last_rejected_at)
		END
`

// RecordAdmissions adds the batch counts to the stored totals in one
// transaction.
func (s *Store) RecordAdmissions(ctx context.Context, batch []core.AdmissionStats) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record admissions: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertAdmission)
	if err != nil {
		return fmt.Errorf("record admissions: %w", err)
	}
	defer stmt.Close() // nolint:errcheck // closed with the transaction

	for _, stats := range batch {
		key := strings.TrimSpace(string(stats.Key))
		if key == "" {
			continue
		}

		var lastRejected sql.NullInt64
		if stats.LastRejectedAt != nil {
			lastRejected = sql.NullInt64{Int64: stats.LastRejectedAt.UnixMilli(), Valid: true}
		}

		firstSeen, lastSeen := stats.FirstSeen, stats.LastSeen
		if firstSeen.IsZero() {
			firstSeen = lastSeen
		}

		if _, err := stmt.ExecContext(ctx,
			key,
			stats.Allowed,
			stats.Rejected,
			firstSeen.UnixMilli(),
			lastSeen.UnixMilli(),
			lastRejected,
		); err != nil {
			return fmt.Errorf("record admissions for %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record admissions: %w", err)
	}
	return nil
}

// GetAdmission returns stored stats for one key, or nil when unknown.
func (s *Store) GetAdmission(ctx context.Context, key core.ClientKey) (*core.AdmissionStats, error) {
	entries, err := s.ListAdmissions(ctx, AdmissionQuery{Key: string(key)})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ListAdmissions returns matching rows ordered by client key.
func (s *Store) ListAdmissions(ctx context.Context, q AdmissionQuery) ([]core.AdmissionStats, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT client_key, allowed_count, rejected_count, first_seen, last_seen, last_rejected_at
		FROM admission_stats
		%s
		ORDER BY client_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list admissions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.AdmissionStats{}
	for rows.Next() {
		var (
			key          string
			allowed      int64
			rejected     int64
			firstSeen    int64
			lastSeen     int64
			lastRejected sql.NullInt64
		)
		if err := rows.Scan(&key, &allowed, &rejected, &firstSeen, &lastSeen, &lastRejected); err != nil {
			return nil, fmt.Errorf("scan admissions: %w", err)
		}

		stats := core.AdmissionStats{
			Key:       core.ClientKey(key),
			Allowed:   allowed,
			Rejected:  rejected,
			FirstSeen: time.UnixMilli(firstSeen).UTC(),
			LastSeen:  time.UnixMilli(lastSeen).UTC(),
		}
		if lastRejected.Valid {
			value := time.UnixMilli(lastRejected.Int64).UTC()
			stats.LastRejectedAt = &value
		}
		entries = append(entries, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admissions: %w", err)
	}

	return entries, nil
}

// CountAdmissions returns how many rows match q.
func (s *Store) CountAdmissions(ctx context.Context, q AdmissionQuery) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM admission_stats
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count admissions: %w", err)
	}
	return count, nil
}

// ResetAdmissions deletes matching rows and returns how many were removed.
func (s *Store) ResetAdmissions(ctx context.Context, q AdmissionQuery) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM admission_stats
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset admissions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset admissions: %w", err)
	}
	return affected, nil
}
