package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// appendLockKey serialises Append across engine instances.
const appendLockKey = int64(2_718_281_828)

const recordColumns = `idx, timestamp, subject, action, actor, data_hash, prev_hash, hash`

// PostgresLog persists the chain in the audit_log table. The genesis row is
// inserted by the initial migration.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Append implements Log. Reading the tail and inserting the new row happen in
// one transaction under an advisory lock.
func (l *PostgresLog) Append(ctx context.Context, subject, action, actor string, payload any) (*Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	r := &Record{
		Index:     prevIdx + 1,
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Action:    action,
		Actor:     actor,
		DataHash:  sha256Sum(body),
		PrevHash:  prevHash,
	}
	r.Hash = hashRecord(r)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.Index, r.Timestamp, r.Subject, r.Action, r.Actor, r.DataHash, r.PrevHash, r.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit record appended",
		zap.Int("idx", r.Index),
		zap.String("action", r.Action),
		zap.String("subject", r.Subject),
	)
	return r, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Record, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM audit_log WHERE idx = $1`, index)
	r, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("get audit record %d: %w", index, err)
	}
	return r, nil
}

// List implements Log.
func (l *PostgresLog) List(ctx context.Context, offset, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM audit_log ORDER BY idx DESC OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// History implements Log. audit_log_subject_idx (migration 003) serves the
// lookup.
func (l *PostgresLog) History(ctx context.Context, subject string) ([]*Record, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM audit_log WHERE subject = $1 AND idx > 0 ORDER BY idx ASC`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("audit history of %s: %w", subject, err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// Verify implements Log by streaming the whole table in index order.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `SELECT `+recordColumns+` FROM audit_log ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var prev *Record
	for rows.Next() {
		curr, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan audit record: %w", err)
		}
		if prev == nil {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis record has wrong hash: got %q", curr.Hash)
			}
		} else if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	err := row.Scan(&r.Index, &r.Timestamp, &r.Subject, &r.Action,
		&r.Actor, &r.DataHash, &r.PrevHash, &r.Hash)
	return r, err
}
