// Package audit records a durable log of every conversion request against
// Postgres, the way the teacher's ledger/evidence packages record turns and
// audit entries — direct SQL through database/sql, no ORM.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Entry is one conversion's audit record.
type Entry struct {
	RequestID    string
	Format       string
	Success      bool
	ErrorCode    int
	DurationMS   int64
	WorkerSlot   int
	ConvertedAt  time.Time
}

// Logger appends Entries to the slimlo_audit_log table. A nil *Logger is
// valid and LogEntry becomes a no-op, so audit logging can be disabled
// without branching at every call site.
type Logger struct {
	db *sql.DB
}

// Open connects to dsn and ensures the audit table exists.
func Open(ctx context.Context, dsn string) (*Logger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, err
	}
	return &Logger{db: db}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS slimlo_audit_log (
	request_id   TEXT PRIMARY KEY,
	format       TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	error_code   INTEGER NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL,
	worker_slot  INTEGER NOT NULL,
	converted_at TIMESTAMPTZ NOT NULL
)`

// LogEntry inserts e, logging (not returning) failures: audit logging must
// never fail a conversion that otherwise succeeded.
func (l *Logger) LogEntry(ctx context.Context, e Entry) {
	if l == nil || l.db == nil {
		return
	}
	const q = `INSERT INTO slimlo_audit_log
		(request_id, format, success, error_code, duration_ms, worker_slot, converted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO NOTHING`
	if _, err := l.db.ExecContext(ctx, q, e.RequestID, e.Format, e.Success, e.ErrorCode, e.DurationMS, e.WorkerSlot, e.ConvertedAt); err != nil {
		slog.Warn("audit: failed to record entry", "request_id", e.RequestID, "error", err)
	}
}

// Close closes the underlying database handle.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
