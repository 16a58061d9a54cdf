package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DefaultMaxAttempts is the maximum number of delivery attempts before a
// delivery is considered permanently failed, per spec.md §4.13.
const DefaultMaxAttempts = 5

// Status tracks a delivery's position in the retry lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Attempt records the outcome of a single delivery attempt.
type Attempt struct {
	Number       int       `json:"number"`
	AttemptedAt  time.Time `json:"attemptedAt"`
	StatusCode   int       `json:"statusCode,omitempty"`
	ResponseBody string    `json:"responseBody,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs"`
}

// Delivery is one queued webhook send: an event bound to a subscription,
// tracked through its retry lifecycle.
type Delivery struct {
	DeliveryID  string          `json:"deliveryId"`
	EndpointID  string          `json:"endpointId"`
	URL         string          `json:"url"`
	EventType   string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    []Attempt       `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	NextRetryAt time.Time       `json:"nextRetryAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// AttemptCount returns how many attempts have been made so far.
func (d Delivery) AttemptCount() int {
	return len(d.Attempts)
}

// ReadyForDelivery reports whether d is pending and its next retry is due.
func (d Delivery) ReadyForDelivery() bool {
	if d.Status != StatusPending {
		return false
	}
	return d.NextRetryAt.IsZero() || !time.Now().Before(d.NextRetryAt)
}

// sign computes the HMAC-SHA256 signature of body using secret, the same
// symmetric-signing idiom the Stripe integration verifies on inbound
// webhooks, applied here to outbound deliveries.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// backoffSchedule mirrors the teacher's exponential webhook retry shape:
// 1s initial interval, 2x multiplier, capped at 5m.
var backoffSchedule = struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
}{initial: 1 * time.Second, multiplier: 2.0, max: 5 * time.Minute}

// calculateBackoff returns the delay before attempt number attempt+1.
func calculateBackoff(attempt int) time.Duration {
	backoff := backoffSchedule.initial
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * backoffSchedule.multiplier)
		if backoff > backoffSchedule.max {
			return backoffSchedule.max
		}
	}
	return backoff
}
