package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

const mappingDSNParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

var errStoreClosed = errors.New("mapping store closed")

// mappingRepo implements the identity store on SQLite
type mappingRepo struct {
	path  string
	mu    sync.RWMutex
	db    *sql.DB
	retry RetryPolicy
	now   func() time.Time
	log   zerolog.Logger
}

// MappingOption configures the mapping store
type MappingOption func(*mappingRepo)

// WithRetryPolicy overrides the lock retry policy
func WithRetryPolicy(p RetryPolicy) MappingOption {
	return func(r *mappingRepo) { r.retry = p }
}

// WithMappingClock overrides the clock used for retention
func WithMappingClock(now func() time.Time) MappingOption {
	return func(r *mappingRepo) { r.now = now }
}

// NewMappingRepo opens the identity store and runs retention maintenance once
func NewMappingRepo(ctx context.Context, dbPath string, log zerolog.Logger, opts ...MappingOption) (repo.MappingRepo, error) {
	r, err := openMappingRepo(dbPath, log, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := r.Maintenance(ctx); err != nil {
		r.log.Error().Err(err).Msg("Startup maintenance failed")
	}
	return r, nil
}

// OpenMappingRepo opens the identity store without the retention sweep
func OpenMappingRepo(dbPath string, log zerolog.Logger, opts ...MappingOption) (repo.MappingRepo, error) {
	r, err := openMappingRepo(dbPath, log, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func openMappingRepo(dbPath string, log zerolog.Logger, opts ...MappingOption) (*mappingRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	r := &mappingRepo{
		path:  dbPath,
		retry: DefaultStoreRetry(),
		now:   time.Now,
		log:   log.With().Str("component", "store").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	db, err := r.open()
	if err != nil {
		return nil, err
	}
	r.db = db

	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *mappingRepo) open() (*sql.DB, error) {
	dsn := r.path
	if strings.Contains(dsn, "?") {
		dsn += "&" + mappingDSNParams
	} else {
		dsn += "?" + mappingDSNParams
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (r *mappingRepo) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			original_message_id TEXT NOT NULL,
			destination_chat_id TEXT NOT NULL,
			destination_message_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			UNIQUE(chat_id, original_message_id, destination_chat_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// do runs fn under the retry policy against the current handle. Between
// attempts it reconnects, replacing only the handle that attempt used.
func (r *mappingRepo) do(ctx context.Context, op string, fn func(ctx context.Context, db *sql.DB) error) error {
	var used *sql.DB
	p := r.retry
	p.Between = func(ctx context.Context) error {
		return r.reconnect(used)
	}
	return p.Do(ctx, op, func(ctx context.Context) error {
		db, err := r.handle()
		if err != nil {
			return err
		}
		used = db
		return fn(ctx, db)
	})
}

// reconnect swaps failed for a fresh handle. If another operation already
// replaced it, the current handle is left alone.
func (r *mappingRepo) reconnect(failed *sql.DB) error {
	r.mu.Lock()
	if r.db == nil {
		r.mu.Unlock()
		return errStoreClosed
	}
	if failed == nil || r.db != failed {
		r.mu.Unlock()
		return nil
	}
	db, err := r.open()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.db = db
	r.mu.Unlock()

	failed.Close()
	r.log.Debug().Msg("Store reconnected")
	return nil
}

func (r *mappingRepo) handle() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, errStoreClosed
	}
	return r.db, nil
}

// Put upserts a mapping
func (r *mappingRepo) Put(ctx context.Context, m domain.MessageMapping) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	return r.do(ctx, "put", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT OR REPLACE INTO messages (chat_id, original_message_id, destination_chat_id, destination_message_id, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, m.SourceChatID, m.SourceMessageID, m.DestinationChatID, m.DestinationMessageID, created.Unix())
		if err != nil {
			return fmt.Errorf("failed to save mapping: %w", err)
		}
		return nil
	})
}

// Get returns the destination message id for one destination chat
func (r *mappingRepo) Get(ctx context.Context, chatID, originalID, destChatID string) (string, bool, error) {
	var destID string
	found := false
	err := r.do(ctx, "get", func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `
			SELECT destination_message_id FROM messages
			WHERE chat_id = ? AND original_message_id = ? AND destination_chat_id = ?
		`, chatID, originalID, destChatID).Scan(&destID)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query mapping: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return destID, found, nil
}

// Lookup returns every destination mapping of one source message
func (r *mappingRepo) Lookup(ctx context.Context, chatID, originalID string) ([]domain.MessageMapping, error) {
	var out []domain.MessageMapping
	err := r.do(ctx, "lookup", func(ctx context.Context, db *sql.DB) error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT destination_chat_id, destination_message_id, timestamp FROM messages
			WHERE chat_id = ? AND original_message_id = ?
			ORDER BY id
		`, chatID, originalID)
		if err != nil {
			return fmt.Errorf("failed to query mappings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m := domain.MessageMapping{SourceChatID: chatID, SourceMessageID: originalID}
			var ts int64
			if err := rows.Scan(&m.DestinationChatID, &m.DestinationMessageID, &ts); err != nil {
				return fmt.Errorf("failed to scan mapping: %w", err)
			}
			m.CreatedAt = time.Unix(ts, 0)
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// Delete removes every destination mapping of one source message
func (r *mappingRepo) Delete(ctx context.Context, chatID, originalID string) error {
	return r.do(ctx, "delete", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			DELETE FROM messages WHERE chat_id = ? AND original_message_id = ?
		`, chatID, originalID)
		if err != nil {
			return fmt.Errorf("failed to delete mapping: %w", err)
		}
		return nil
	})
}

// Count returns the number of stored rows
func (r *mappingRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.do(ctx, "count", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	})
	return n, err
}

// Maintenance counts rows, reaps rows past retention and compacts the file
func (r *mappingRepo) Maintenance(ctx context.Context) (domain.MaintenanceReport, error) {
	var report domain.MaintenanceReport

	before, err := r.Count(ctx)
	if err != nil {
		return report, err
	}
	report.Before = before

	cutoff := r.now().Add(-domain.MappingRetention).Unix()
	err = r.do(ctx, "maintenance", func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff); err != nil {
			return fmt.Errorf("failed to reap mappings: %w", err)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if err := r.do(ctx, "vacuum", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `VACUUM`)
		return err
	}); err != nil {
		r.log.Warn().Err(err).Msg("Vacuum failed")
	}

	after, err := r.Count(ctx)
	if err != nil {
		return report, err
	}
	report.After = after

	r.log.Info().
		Int64("before", report.Before).
		Int64("after", report.After).
		Int64("removed", report.Removed()).
		Msg("Store maintenance complete")
	return report, nil
}

// Close closes the database
func (r *mappingRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// isLockError reports whether err is SQLite lock contention, or a handle
// closed underneath an in-flight query by a concurrent reconnect
func isLockError(err error) bool {
	if err == nil || errors.Is(err, errStoreClosed) {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sql: database is closed")
}
