package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, for operations whose
// retention must outlive a single process — spec §4.8 calls out a 7-day
// TTL for card and funding operations, longer than MemoryStore's LRU
// would reliably hold. Shape grounded on the teacher's
// internal/storage/postgres_store.go (configurable table name, dual
// constructor pair).
type PostgresStore struct {
	db        *sql.DB
	ownsDB    bool
	tableName string
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, ownsDB: true, tableName: "idempotency_records"}
	if err := store.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false, tableName: "idempotency_records"}
	if err := store.createTable(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			op TEXT NOT NULL,
			key TEXT NOT NULL,
			request_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			response JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (op, key)
		)`, s.tableName)
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("create %s table: %w", s.tableName, err)
	}
	return nil
}

// TryInsert relies on the table's (op, key) primary key plus
// ON CONFLICT DO NOTHING to make the insert atomic: at most one concurrent
// caller's INSERT affects a row.
func (s *PostgresStore) TryInsert(ctx context.Context, rec Record) (Record, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (op, key, request_hash, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (op, key) DO NOTHING`, s.tableName)
	result, err := s.db.ExecContext(ctx, query, rec.Op, rec.Key, rec.RequestHash, string(rec.Status), rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert idempotency record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("insert idempotency record: %w", err)
	}
	if affected == 1 {
		return rec, true, nil
	}

	current, ok, err := s.Get(ctx, rec.Op, rec.Key)
	if err != nil {
		return Record{}, false, err
	}
	if !ok {
		return Record{}, false, fmt.Errorf("idempotency: record vanished after conflicting insert for op=%s key=%s", rec.Op, rec.Key)
	}
	return current, false, nil
}

func (s *PostgresStore) Reclaim(ctx context.Context, op, key, requestHash string, expiresAt time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET request_hash = $1, status = $2, response = NULL, expires_at = $3
		WHERE op = $4 AND key = $5 AND status = $6`, s.tableName)
	result, err := s.db.ExecContext(ctx, query, requestHash, string(StatusPending), expiresAt, op, key, string(StatusFailed))
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim idempotency record: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) Complete(ctx context.Context, op, key string, response json.RawMessage) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, response = $2 WHERE op = $3 AND key = $4`, s.tableName)
	_, err := s.db.ExecContext(ctx, query, string(StatusCompleted), response, op, key)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, op, key string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE op = $2 AND key = $3`, s.tableName)
	_, err := s.db.ExecContext(ctx, query, string(StatusFailed), op, key)
	if err != nil {
		return fmt.Errorf("fail idempotency record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, op, key string) (Record, bool, error) {
	query := fmt.Sprintf(`
		SELECT op, key, request_hash, status, response, created_at, expires_at
		FROM %s WHERE op = $1 AND key = $2`, s.tableName)
	row := s.db.QueryRowContext(ctx, query, op, key)

	var rec Record
	var status string
	var response []byte
	err := row.Scan(&rec.Op, &rec.Key, &rec.RequestHash, &status, &response, &rec.CreatedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get idempotency record: %w", err)
	}

	rec.Status = Status(status)
	if len(response) > 0 {
		rec.Response = json.RawMessage(response)
	}
	return rec, true, nil
}

// Stop is a no-op: expired-record cleanup on the Postgres backend is a
// periodic DELETE ... WHERE expires_at < now() run by an external job, not
// an in-process goroutine.
func (s *PostgresStore) Stop() {}
