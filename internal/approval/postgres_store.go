package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, following the teacher's
// internal/storage.PostgresStore shape: a configurable table name, a
// constructor that opens its own pool, and one that shares an existing
// *sql.DB.
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

	store := &PostgresStore{db: db, ownsDB: true, tableName: "approval_requests"}
	if err := store.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false, tableName: "approval_requests"}
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
			transaction_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			amount_minor BIGINT NOT NULL,
			approval_type TEXT NOT NULL,
			approvers TEXT[] NOT NULL,
			quorum INTEGER NOT NULL,
			status TEXT NOT NULL,
			approvals JSONB NOT NULL DEFAULT '{}',
			rejections JSONB NOT NULL DEFAULT '{}',
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`, s.tableName)
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("create %s table: %w", s.tableName, err)
	}
	return nil
}

func (s *PostgresStore) Request(ctx context.Context, transactionID, agentID string, amountMinor int64, approvalType string, approvers []string, quorum int, timeout time.Duration, now time.Time) (Request, error) {
	req := newRequest(transactionID, transactionID, agentID, amountMinor, approvalType, approvers, quorum, now, timeout)

	approvalsJSON, _ := json.Marshal(req.Approvals)
	rejectionsJSON, _ := json.Marshal(req.Rejections)

	query := fmt.Sprintf(`
		INSERT INTO %s (transaction_id, agent_id, amount_minor, approval_type, approvers, quorum, status, approvals, rejections, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.tableName)
	_, err := s.db.ExecContext(ctx, query,
		req.RequestID, req.AgentID, req.AmountMinor, req.ApprovalType,
		pq.Array(req.Approvers), req.Quorum, string(req.Status),
		approvalsJSON, rejectionsJSON, req.CreatedAt, req.ExpiresAt)
	if err != nil {
		return Request{}, fmt.Errorf("insert approval request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Get(ctx context.Context, transactionID string) (Request, error) {
	query := fmt.Sprintf(`
		SELECT transaction_id, agent_id, amount_minor, approval_type, approvers, quorum, status, approvals, rejections, cancel_reason, created_at, expires_at
		FROM %s WHERE transaction_id = $1`, s.tableName)
	row := s.db.QueryRowContext(ctx, query, transactionID)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("get approval request: %w", err)
	}

	if req.Status == StatusPending && req.expired(time.Now()) {
		req.Status = StatusExpired
		_ = s.updateStatus(ctx, transactionID, StatusExpired)
	}
	return req, nil
}

func (s *PostgresStore) Approve(ctx context.Context, transactionID, approver string, now time.Time) (bool, error) {
	req, err := s.Get(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if req.Status != StatusPending {
		if req.Status == StatusExpired {
			return false, ErrExpired
		}
		return false, nil
	}
	if !req.isApprover(approver) {
		return false, nil
	}

	req.Approvals[approver] = Vote{Approver: approver, At: now}
	quorumReached := len(req.Approvals) >= req.Quorum
	if quorumReached {
		req.Status = StatusApproved
	}

	approvalsJSON, _ := json.Marshal(req.Approvals)
	query := fmt.Sprintf(`UPDATE %s SET approvals = $1, status = $2 WHERE transaction_id = $3`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, approvalsJSON, string(req.Status), transactionID); err != nil {
		return false, fmt.Errorf("update approval: %w", err)
	}
	return quorumReached, nil
}

func (s *PostgresStore) Reject(ctx context.Context, transactionID, approver, reason string, now time.Time) error {
	req, err := s.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}
	if !req.isApprover(approver) {
		return ErrUnauthorized
	}

	req.Rejections[approver] = Vote{Approver: approver, Reason: reason, At: now}
	rejectionsJSON, _ := json.Marshal(req.Rejections)

	query := fmt.Sprintf(`UPDATE %s SET rejections = $1, status = $2 WHERE transaction_id = $3`, s.tableName)
	_, err = s.db.ExecContext(ctx, query, rejectionsJSON, string(StatusRejected), transactionID)
	if err != nil {
		return fmt.Errorf("update rejection: %w", err)
	}
	return nil
}

func (s *PostgresStore) Cancel(ctx context.Context, transactionID, reason string) error {
	req, err := s.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $1, cancel_reason = $2 WHERE transaction_id = $3`, s.tableName)
	_, err = s.db.ExecContext(ctx, query, string(StatusCancelled), reason, transactionID)
	if err != nil {
		return fmt.Errorf("update cancellation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE status = $2 AND expires_at <= $3`, s.tableName)
	result, err := s.db.ExecContext(ctx, query, string(StatusExpired), string(StatusPending), now)
	if err != nil {
		return 0, fmt.Errorf("sweep approval requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep approval requests: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) updateStatus(ctx context.Context, transactionID string, status Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE transaction_id = $2`, s.tableName)
	_, err := s.db.ExecContext(ctx, query, string(status), transactionID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (Request, error) {
	var req Request
	var approvers pq.StringArray
	var status, cancelReason string
	var approvalsJSON, rejectionsJSON []byte

	err := row.Scan(&req.RequestID, &req.AgentID, &req.AmountMinor, &req.ApprovalType,
		&approvers, &req.Quorum, &status, &approvalsJSON, &rejectionsJSON, &cancelReason,
		&req.CreatedAt, &req.ExpiresAt)
	if err != nil {
		return Request{}, err
	}

	req.TransactionID = req.RequestID
	req.Approvers = approvers
	req.Status = Status(status)
	req.CancelReason = cancelReason

	req.Approvals = make(map[string]Vote)
	_ = json.Unmarshal(approvalsJSON, &req.Approvals)
	req.Rejections = make(map[string]Vote)
	_ = json.Unmarshal(rejectionsJSON, &req.Rejections)

	return req, nil
}
