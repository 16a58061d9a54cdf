package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements both SubscriptionStore and DeliveryStore,
// grounded on the teacher's internal/storage/postgres_store.go
// (configurable table names, dual constructor pair) as reused in
// internal/ledger/postgres_store.go.
type PostgresStore struct {
	db                *sql.DB
	ownsDB            bool
	subscriptionTable string
	deliveryTable     string
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

	store := &PostgresStore{db: db, ownsDB: true, subscriptionTable: "webhook_subscriptions", deliveryTable: "webhook_deliveries"}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db, ownsDB: false, subscriptionTable: "webhook_subscriptions", deliveryTable: "webhook_deliveries"}
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
	subs := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			endpoint_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events TEXT[] NOT NULL,
			enabled BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.subscriptionTable)
	if _, err := s.db.Exec(subs); err != nil {
		return fmt.Errorf("create %s table: %w", s.subscriptionTable, err)
	}

	deliveries := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			delivery_id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL,
			url TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL,
			attempts JSONB NOT NULL DEFAULT '[]',
			max_attempts INTEGER NOT NULL,
			next_retry_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`, s.deliveryTable)
	if _, err := s.db.Exec(deliveries); err != nil {
		return fmt.Errorf("create %s table: %w", s.deliveryTable, err)
	}
	return nil
}

// --- SubscriptionStore ---

func (s *PostgresStore) Save(ctx context.Context, sub Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (endpoint_id, tenant_id, url, secret, events, enabled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (endpoint_id) DO UPDATE SET url = $3, secret = $4, events = $5, enabled = $6`,
		s.subscriptionTable)
	_, err := s.db.ExecContext(ctx, query, sub.EndpointID, sub.TenantID, sub.URL, sub.Secret, pq.Array(sub.Events), sub.Enabled, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanSubscription(row *sql.Row) (Subscription, error) {
	var sub Subscription
	var events pq.StringArray
	err := row.Scan(&sub.EndpointID, &sub.TenantID, &sub.URL, &sub.Secret, &events, &sub.Enabled, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Events = []string(events)
	return sub, nil
}

func (s *PostgresStore) Get(ctx context.Context, endpointID string) (Subscription, error) {
	query := fmt.Sprintf(`SELECT endpoint_id, tenant_id, url, secret, events, enabled, created_at FROM %s WHERE endpoint_id = $1`, s.subscriptionTable)
	return s.scanSubscription(s.db.QueryRowContext(ctx, query, endpointID))
}

func (s *PostgresStore) listSubscriptions(ctx context.Context, where string, args ...any) ([]Subscription, error) {
	query := fmt.Sprintf(`SELECT endpoint_id, tenant_id, url, secret, events, enabled, created_at FROM %s`, s.subscriptionTable)
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var events pq.StringArray
		if err := rows.Scan(&sub.EndpointID, &sub.TenantID, &sub.URL, &sub.Secret, &events, &sub.Enabled, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.Events = []string(events)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]Subscription, error) {
	return s.listSubscriptions(ctx, "tenant_id = $1", tenantID)
}

func (s *PostgresStore) ListEnabled(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, "enabled = true")
}

func (s *PostgresStore) Delete(ctx context.Context, endpointID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE endpoint_id = $1`, s.subscriptionTable)
	_, err := s.db.ExecContext(ctx, query, endpointID)
	return err
}

// --- DeliveryStore ---

func (s *PostgresStore) Enqueue(ctx context.Context, d Delivery) (Delivery, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	attempts, err := json.Marshal(d.Attempts)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal attempts: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (delivery_id, endpoint_id, url, event_type, payload, status, attempts, max_attempts, next_retry_at, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, s.deliveryTable)
	_, err = s.db.ExecContext(ctx, query, d.DeliveryID, d.EndpointID, d.URL, d.EventType, []byte(d.Payload), string(d.Status), attempts, d.MaxAttempts, nullableTime(d.NextRetryAt), d.CreatedAt, nullableTimePtr(d.CompletedAt))
	if err != nil {
		return Delivery{}, fmt.Errorf("enqueue delivery: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) deliveryColumns() string {
	return "delivery_id, endpoint_id, url, event_type, payload, status, attempts, max_attempts, next_retry_at, created_at, completed_at"
}

func (s *PostgresStore) scanDelivery(row *sql.Row) (Delivery, error) {
	var d Delivery
	var payload, attempts []byte
	var status string
	var nextRetryAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(&d.DeliveryID, &d.EndpointID, &d.URL, &d.EventType, &payload, &status, &attempts, &d.MaxAttempts, &nextRetryAt, &d.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return Delivery{}, ErrDeliveryNotFound
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	d.Payload = payload
	d.Status = Status(status)
	if err := json.Unmarshal(attempts, &d.Attempts); err != nil {
		return Delivery{}, fmt.Errorf("unmarshal attempts: %w", err)
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = nextRetryAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return d, nil
}

func (s *PostgresStore) Get(ctx context.Context, deliveryID string) (Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE delivery_id = $1`, s.deliveryColumns(), s.deliveryTable)
	return s.scanDelivery(s.db.QueryRowContext(ctx, query, deliveryID))
}

func (s *PostgresStore) DueForDelivery(ctx context.Context, limit int) ([]Delivery, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at ASC`, s.deliveryColumns(), s.deliveryTable)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var payload, attempts []byte
		var status string
		var nextRetryAt, completedAt sql.NullTime
		if err := rows.Scan(&d.DeliveryID, &d.EndpointID, &d.URL, &d.EventType, &payload, &status, &attempts, &d.MaxAttempts, &nextRetryAt, &d.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan due delivery: %w", err)
		}
		d.Payload = payload
		d.Status = Status(status)
		if err := json.Unmarshal(attempts, &d.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
		if nextRetryAt.Valid {
			d.NextRetryAt = nextRetryAt.Time
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, deliveryID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'processing' WHERE delivery_id = $1`, s.deliveryTable)
	res, err := s.db.ExecContext(ctx, query, deliveryID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, deliveryID string, attempt Attempt, status Status, nextRetryAt time.Time) error {
	current, err := s.Get(ctx, deliveryID)
	if err != nil {
		return err
	}
	current.Attempts = append(current.Attempts, attempt)
	attempts, err := json.Marshal(current.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	var completedAt any
	if status == StatusSucceeded || status == StatusFailed {
		completedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`UPDATE %s SET attempts = $1, status = $2, next_retry_at = $3, completed_at = $4 WHERE delivery_id = $5`, s.deliveryTable)
	_, err = s.db.ExecContext(ctx, query, attempts, string(status), nullableTime(nextRetryAt), completedAt, deliveryID)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE endpoint_id = $1 ORDER BY created_at DESC`, s.deliveryColumns(), s.deliveryTable)
	args := []any{endpointID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by endpoint: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var payload, attempts []byte
		var status string
		var nextRetryAt, completedAt sql.NullTime
		if err := rows.Scan(&d.DeliveryID, &d.EndpointID, &d.URL, &d.EventType, &payload, &status, &attempts, &d.MaxAttempts, &nextRetryAt, &d.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Payload = payload
		d.Status = Status(status)
		if err := json.Unmarshal(attempts, &d.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
		if nextRetryAt.Valid {
			d.NextRetryAt = nextRetryAt.Time
		}
		if completedAt.Valid {
			d.CompletedAt = &completedAt.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
