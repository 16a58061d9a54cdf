package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sardis-ai/payments-core/internal/circuitbreaker"
	"github.com/sardis-ai/payments-core/internal/httputil"
	"github.com/sardis-ai/payments-core/internal/metrics"
)

// Dispatcher polls DeliveryStore for due deliveries and sends them,
// signing each payload with its subscription's secret and retrying
// failures with exponential backoff. Shaped after the teacher's
// callbacks.WebhookQueueWorker polling loop, generalized from a single
// fixed callback URL to many tenant subscriptions.
type Dispatcher struct {
	subs       SubscriptionStore
	deliveries DeliveryStore
	breakers   *circuitbreaker.Manager
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	pollInterval time.Duration
	batchSize    int

	stopChan chan struct{}
	doneChan chan struct{}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.pollInterval = interval }
}

func WithCircuitBreaker(mgr *circuitbreaker.Manager) DispatcherOption {
	return func(d *Dispatcher) { d.breakers = mgr }
}

// NewDispatcher constructs a Dispatcher. timeout bounds each HTTP attempt.
func NewDispatcher(subs SubscriptionStore, deliveries DeliveryStore, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		subs:         subs,
		deliveries:   deliveries,
		httpClient:   httputil.NewClient(timeout),
		logger:       zerolog.Nop(),
		pollInterval: 5 * time.Second,
		batchSize:    10,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Emit enqueues a delivery for every enabled subscription matching
// eventType. Settlement calls this for payment.initiated,
// payment.succeeded, payment.failed, policy.blocked, and risk.alert.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload []byte) error {
	subs, err := d.subs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("webhook: list enabled subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Matches(eventType) {
			continue
		}
		delivery := Delivery{
			DeliveryID:  "whd_" + uuid.NewString(),
			EndpointID:  sub.EndpointID,
			URL:         sub.URL,
			EventType:   eventType,
			Payload:     payload,
			Status:      StatusPending,
			MaxAttempts: DefaultMaxAttempts,
			CreatedAt:   time.Now().UTC(),
		}
		if _, err := d.deliveries.Enqueue(ctx, delivery); err != nil {
			return fmt.Errorf("webhook: enqueue delivery for %s: %w", sub.EndpointID, err)
		}
	}
	return nil
}

// Start begins the background polling loop.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop gracefully halts the polling loop.
func (d *Dispatcher) Stop() {
	close(d.stopChan)
	<-d.doneChan
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info().Dur("pollInterval", d.pollInterval).Msg("webhook dispatcher started")

	for {
		select {
		case <-d.stopChan:
			d.logger.Info().Msg("webhook dispatcher stopping")
			return
		case <-ticker.C:
			d.processDue(ctx)
		}
	}
}

func (d *Dispatcher) processDue(ctx context.Context) {
	due, err := d.deliveries.DueForDelivery(ctx, d.batchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("webhook: failed to list due deliveries")
		return
	}
	for _, delivery := range due {
		d.processOne(ctx, delivery)
	}
}

func (d *Dispatcher) processOne(ctx context.Context, delivery Delivery) {
	if err := d.deliveries.MarkProcessing(ctx, delivery.DeliveryID); err != nil {
		d.logger.Error().Err(err).Str("deliveryID", delivery.DeliveryID).Msg("webhook: failed to mark processing")
		return
	}

	sub, err := d.subs.Get(ctx, delivery.EndpointID)
	if err != nil {
		d.recordFailure(ctx, delivery, 0, "", fmt.Sprintf("subscription lookup failed: %v", err))
		return
	}

	attemptNumber := delivery.AttemptCount() + 1
	start := time.Now()
	statusCode, respBody, sendErr := d.send(ctx, sub, delivery)
	duration := time.Since(start)

	if sendErr == nil {
		attempt := Attempt{Number: attemptNumber, AttemptedAt: start, StatusCode: statusCode, ResponseBody: respBody, DurationMs: duration.Milliseconds()}
		if err := d.deliveries.RecordAttempt(ctx, delivery.DeliveryID, attempt, StatusSucceeded, time.Time{}); err != nil {
			d.logger.Error().Err(err).Str("deliveryID", delivery.DeliveryID).Msg("webhook: failed to record successful attempt")
		}
		if d.metrics != nil {
			d.metrics.ObserveWebhook(delivery.EventType, "success", duration, attemptNumber, false)
		}
		return
	}

	d.recordFailureAttempt(ctx, delivery, attemptNumber, statusCode, respBody, sendErr.Error(), duration)
}

func (d *Dispatcher) recordFailure(ctx context.Context, delivery Delivery, statusCode int, respBody, errMsg string) {
	attemptNumber := delivery.AttemptCount() + 1
	d.recordFailureAttempt(ctx, delivery, attemptNumber, statusCode, respBody, errMsg, 0)
}

func (d *Dispatcher) recordFailureAttempt(ctx context.Context, delivery Delivery, attemptNumber, statusCode int, respBody, errMsg string, duration time.Duration) {
	attempt := Attempt{Number: attemptNumber, AttemptedAt: time.Now().UTC(), StatusCode: statusCode, ResponseBody: respBody, Error: errMsg, DurationMs: duration.Milliseconds()}

	status := StatusPending
	nextRetryAt := time.Now().Add(calculateBackoff(attemptNumber))
	if attemptNumber >= delivery.MaxAttempts {
		status = StatusFailed
		nextRetryAt = time.Time{}
	}

	if err := d.deliveries.RecordAttempt(ctx, delivery.DeliveryID, attempt, status, nextRetryAt); err != nil {
		d.logger.Error().Err(err).Str("deliveryID", delivery.DeliveryID).Msg("webhook: failed to record failed attempt")
	}

	if d.metrics != nil {
		outcome := "retry"
		if status == StatusFailed {
			outcome = "dlq"
		}
		d.metrics.ObserveWebhook(delivery.EventType, outcome, duration, attemptNumber, status == StatusFailed)
	}

	d.logger.Warn().
		Str("deliveryID", delivery.DeliveryID).
		Str("eventType", delivery.EventType).
		Int("attempt", attemptNumber).
		Str("status", string(status)).
		Err(fmt.Errorf("%s", errMsg)).
		Msg("webhook delivery attempt failed")
}

// send performs one HMAC-signed HTTP POST, wrapped in the shared webhook
// circuit breaker so a failing endpoint can't exhaust dispatcher capacity.
func (d *Dispatcher) send(ctx context.Context, sub Subscription, delivery Delivery) (statusCode int, responseBody string, err error) {
	do := func() (interface{}, error) {
		code, body, sendErr := d.doSend(ctx, sub, delivery)
		statusCode, responseBody = code, body
		return nil, sendErr
	}

	if d.breakers != nil {
		_, err = d.breakers.Execute(circuitbreaker.ServiceWebhook, do)
	} else {
		_, err = do()
	}
	return statusCode, responseBody, err
}

func (d *Dispatcher) doSend(ctx context.Context, sub Subscription, delivery Delivery) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sardis-Event", delivery.EventType)
	req.Header.Set("X-Sardis-Delivery", delivery.DeliveryID)
	req.Header.Set("X-Sardis-Signature", "sha256="+sign(sub.Secret, delivery.Payload))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body := readLimited(resp.Body, 4096)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, body, fmt.Errorf("received status %d from %s", resp.StatusCode, delivery.URL)
	}
	return resp.StatusCode, body, nil
}
