package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, append-only by
// convention (no UPDATE ever touches entry content, only AnchorID).
// Grounded on the teacher's internal/storage/postgres_store.go
// (configurable table names, dual constructor pair) and
// internal/schema/postgres_mapper.go's explicit column list per query
// rather than SELECT *.
type PostgresStore struct {
	db           *sql.DB
	ownsDB       bool
	entriesTable string
	anchorsTable string
	mu           chainMutex
}

// chainMutex serializes Append locally even though Postgres enforces
// the tx_id uniqueness constraint — computing PriorHash/AuditAnchor
// from "the current tip" is itself a read-then-write that needs
// single-writer discipline, same as MemoryStore's mutex.
type chainMutex struct{ ch chan struct{} }

func newChainMutex() chainMutex {
	c := chainMutex{ch: make(chan struct{}, 1)}
	c.ch <- struct{}{}
	return c
}

func (c chainMutex) lock()   { <-c.ch }
func (c chainMutex) unlock() { c.ch <- struct{}{} }

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, ownsDB: true, entriesTable: "ledger_entries", anchorsTable: "ledger_anchors", mu: newChainMutex()}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false, entriesTable: "ledger_entries", anchorsTable: "ledger_anchors", mu: newChainMutex()}
	if err := store.createTables(); err != nil {
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

func (s *PostgresStore) createTables() error {
	entries := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			entry_id TEXT PRIMARY KEY,
			tx_id TEXT NOT NULL UNIQUE,
			wallet_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			amount_minor BIGINT NOT NULL,
			token TEXT NOT NULL,
			chain TEXT NOT NULL,
			rail TEXT NOT NULL,
			data JSONB,
			prior_hash TEXT NOT NULL,
			audit_anchor TEXT NOT NULL,
			sequence BIGINT NOT NULL UNIQUE,
			anchor_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`, s.entriesTable)
	if _, err := s.db.Exec(entries); err != nil {
		return fmt.Errorf("create %s table: %w", s.entriesTable, err)
	}

	anchors := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			anchor_id TEXT PRIMARY KEY,
			merkle_root TEXT NOT NULL,
			entry_count INTEGER NOT NULL,
			first_entry_id TEXT NOT NULL,
			last_entry_id TEXT NOT NULL,
			chain TEXT NOT NULL,
			transaction_hash TEXT,
			block_number BIGINT,
			created_at TIMESTAMPTZ NOT NULL,
			confirmed_at TIMESTAMPTZ
		)`, s.anchorsTable)
	if _, err := s.db.Exec(anchors); err != nil {
		return fmt.Errorf("create %s table: %w", s.anchorsTable, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) (Entry, error) {
	s.mu.lock()
	defer s.mu.unlock()

	var exists bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE tx_id = $1)`, s.entriesTable)
	if err := s.db.QueryRowContext(ctx, checkQuery, e.TxID).Scan(&exists); err != nil {
		return Entry{}, fmt.Errorf("check tx_id: %w", err)
	}
	if exists {
		return Entry{}, ErrDuplicateTxID
	}

	tip, seq, err := s.chainTip(ctx)
	if err != nil {
		return Entry{}, err
	}

	e.Sequence = seq
	e.PriorHash = tip
	e.CreatedAt = time.Now()

	leaf, err := leafHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.AuditAnchor = nodeHash(tip, leaf)

	insert := fmt.Sprintf(`
		INSERT INTO %s (entry_id, tx_id, wallet_id, agent_id, amount_minor, token, chain, rail, data, prior_hash, audit_anchor, sequence, anchor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'',$13)`, s.entriesTable)
	_, err = s.db.ExecContext(ctx, insert, e.EntryID, e.TxID, e.WalletID, e.AgentID, e.AmountMinor, e.Token, e.Chain, e.Rail, nullableJSON(e.Data), e.PriorHash, e.AuditAnchor, e.Sequence, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) chainTip(ctx context.Context) (string, int64, error) {
	query := fmt.Sprintf(`SELECT audit_anchor, sequence FROM %s ORDER BY sequence DESC LIMIT 1`, s.entriesTable)
	var tip string
	var seq int64
	err := s.db.QueryRowContext(ctx, query).Scan(&tip, &seq)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("read chain tip: %w", err)
	}
	return tip, seq + 1, nil
}

func (s *PostgresStore) entryColumns() string {
	return "entry_id, tx_id, wallet_id, agent_id, amount_minor, token, chain, rail, data, prior_hash, audit_anchor, sequence, anchor_id, created_at"
}

func (s *PostgresStore) scanEntry(row *sql.Row) (Entry, error) {
	var e Entry
	var data []byte
	err := row.Scan(&e.EntryID, &e.TxID, &e.WalletID, &e.AgentID, &e.AmountMinor, &e.Token, &e.Chain, &e.Rail, &data, &e.PriorHash, &e.AuditAnchor, &e.Sequence, &e.AnchorID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("scan ledger entry: %w", err)
	}
	if len(data) > 0 {
		e.Data = json.RawMessage(data)
	}
	return e, nil
}

func (s *PostgresStore) GetByEntryID(ctx context.Context, entryID string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE entry_id = $1`, s.entryColumns(), s.entriesTable)
	return s.scanEntry(s.db.QueryRowContext(ctx, query, entryID))
}

func (s *PostgresStore) GetByTxID(ctx context.Context, txID string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tx_id = $1`, s.entryColumns(), s.entriesTable)
	return s.scanEntry(s.db.QueryRowContext(ctx, query, txID))
}

func (s *PostgresStore) Unanchored(ctx context.Context, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE anchor_id = '' ORDER BY sequence ASC`, s.entryColumns(), s.entriesTable)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unanchored entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var data []byte
		if err := rows.Scan(&e.EntryID, &e.TxID, &e.WalletID, &e.AgentID, &e.AmountMinor, &e.Token, &e.Chain, &e.Rail, &data, &e.PriorHash, &e.AuditAnchor, &e.Sequence, &e.AnchorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unanchored entry: %w", err)
		}
		if len(data) > 0 {
			e.Data = json.RawMessage(data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkAnchored(ctx context.Context, anchorID string, firstSeq, lastSeq int64) error {
	query := fmt.Sprintf(`UPDATE %s SET anchor_id = $1 WHERE sequence >= $2 AND sequence <= $3`, s.entriesTable)
	_, err := s.db.ExecContext(ctx, query, anchorID, firstSeq, lastSeq)
	if err != nil {
		return fmt.Errorf("mark anchored: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAnchor(ctx context.Context, a Anchor) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (anchor_id, merkle_root, entry_count, first_entry_id, last_entry_id, chain, transaction_hash, block_number, created_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (anchor_id) DO UPDATE SET transaction_hash = $7, block_number = $8, confirmed_at = $10`,
		s.anchorsTable)
	_, err := s.db.ExecContext(ctx, query, a.AnchorID, a.MerkleRoot, a.EntryCount, a.FirstEntryID, a.LastEntryID, a.Chain, nullableString(a.TransactionHash), nullableInt64(a.BlockNumber), a.CreatedAt, nullableTime(a.ConfirmedAt))
	if err != nil {
		return fmt.Errorf("save anchor: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnchor(ctx context.Context, anchorID string) (Anchor, error) {
	query := fmt.Sprintf(`
		SELECT anchor_id, merkle_root, entry_count, first_entry_id, last_entry_id, chain, transaction_hash, block_number, created_at, confirmed_at
		FROM %s WHERE anchor_id = $1`, s.anchorsTable)
	row := s.db.QueryRowContext(ctx, query, anchorID)

	var a Anchor
	var txHash sql.NullString
	var blockNumber sql.NullInt64
	var confirmedAt sql.NullTime
	err := row.Scan(&a.AnchorID, &a.MerkleRoot, &a.EntryCount, &a.FirstEntryID, &a.LastEntryID, &a.Chain, &txHash, &blockNumber, &a.CreatedAt, &confirmedAt)
	if err == sql.ErrNoRows {
		return Anchor{}, ErrNotFound
	}
	if err != nil {
		return Anchor{}, fmt.Errorf("scan anchor: %w", err)
	}
	a.TransactionHash = txHash.String
	a.BlockNumber = blockNumber.Int64
	a.ConfirmedAt = confirmedAt.Time
	return a, nil
}

func (s *PostgresStore) EntriesForAnchor(ctx context.Context, anchorID string) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE anchor_id = $1 ORDER BY sequence ASC`, s.entryColumns(), s.entriesTable)
	rows, err := s.db.QueryContext(ctx, query, anchorID)
	if err != nil {
		return nil, fmt.Errorf("query entries for anchor: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var data []byte
		if err := rows.Scan(&e.EntryID, &e.TxID, &e.WalletID, &e.AgentID, &e.AmountMinor, &e.Token, &e.Chain, &e.Rail, &data, &e.PriorHash, &e.AuditAnchor, &e.Sequence, &e.AnchorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anchor entry: %w", err)
		}
		if len(data) > 0 {
			e.Data = json.RawMessage(data)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
