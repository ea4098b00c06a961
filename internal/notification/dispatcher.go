package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
	"github.com/taskfabric/backbone/internal/idempotency"
)

// ConsumerService is the idempotency ledger's consumer identity for the
// dispatcher.
const ConsumerService = "notification-service"

const (
	DefaultMaxRetryAttempts = 3
	DefaultRetryBackoffBase = 2.0
	DefaultRetryBackoffMax  = 300 * time.Second
)

// Claimer is the subset of idempotency.Ledger the dispatcher needs.
type Claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID, consumer, eventType string, now time.Time) (idempotency.Outcome, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, consumer string, now time.Time) error
	RecordFailure(ctx context.Context, eventID uuid.UUID, consumer string, cause error) error
}

// Publisher is the subset of eventbus.Publisher the dispatcher needs to
// emit outcome events.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error)
}

// DeliveryRecorder is the subset of Repository the dispatcher needs,
// narrowed to an interface so it can be swapped for a fake in tests.
type DeliveryRecorder interface {
	Insert(ctx context.Context, rec *Record) error
}

// Config configures a Dispatcher. Zero values fall back to spec defaults,
// matching the original service's settings.py retry policy.
type Config struct {
	MaxRetryAttempts int
	RetryBackoffBase float64
	RetryBackoffMax  time.Duration
	Clock            clock.Clock
	Logger           *slog.Logger
}

// Dispatcher is the Notification Dispatcher (C12): it consumes
// reminder.due.v1, fans out to every requested channel with per-channel
// retry, and records an outcome event plus delivery row for each.
//
// Grounded on the original notification_handler.py's per-channel retry
// loop (same backoff formula, same "both outcomes ACK" partial-failure
// contract) and on internal/webhook/service.go's attempt/outcome
// recording shape, generalized from a single HTTP transport to the
// Channel interface so email and push share one retry path.
type Dispatcher struct {
	claims      Claimer
	repo        DeliveryRecorder
	pub         Publisher
	channels    map[string]Channel
	maxAttempts int
	backoffBase float64
	backoffMax  time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// NewDispatcher builds a Dispatcher over the given channels, keyed by
// their Name().
func NewDispatcher(claims Claimer, repo DeliveryRecorder, pub Publisher, channels []Channel, cfg Config) *Dispatcher {
	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxRetryAttempts
	}
	base := cfg.RetryBackoffBase
	if base == 0 {
		base = DefaultRetryBackoffBase
	}
	max := cfg.RetryBackoffMax
	if max == 0 {
		max = DefaultRetryBackoffMax
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	return &Dispatcher{
		claims:      claims,
		repo:        repo,
		pub:         pub,
		channels:    byName,
		maxAttempts: maxAttempts,
		backoffBase: base,
		backoffMax:  max,
		clock:       c,
		logger:      logger,
	}
}

// HandleReminderDue processes one reminder.due.v1 envelope. It returns
// an error only when the envelope itself could not be claimed or
// decoded, or when the claim could not be marked processed after
// dispatch; once dispatch begins, per-channel failures are recorded as
// outcome events and delivery rows rather than propagated, since a
// channel exhausting its retries is a terminal (not retryable-at-the-
// broker-level) outcome per the partial-failure contract.
func (d *Dispatcher) HandleReminderDue(ctx context.Context, env event.Envelope) error {
	now := d.clock.Now()

	outcome, err := d.claims.Claim(ctx, env.EventID, ConsumerService, env.EventType, now)
	if err != nil {
		return err
	}
	if outcome == idempotency.AlreadyProcessed {
		return nil
	}

	var payload event.ReminderDue
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		_ = d.claims.RecordFailure(ctx, env.EventID, ConsumerService, err)
		return err
	}

	recipient := Recipient{UserID: payload.UserID.String(), Email: payload.UserEmail}
	msg := RenderedMessage{
		Subject: fmt.Sprintf("Reminder: %s", payload.TaskTitle),
		Body:    renderBody(payload),
	}

	for _, channelName := range payload.Channels {
		d.dispatchOne(ctx, channelName, payload, recipient, msg)
	}

	return d.claims.MarkProcessed(ctx, env.EventID, ConsumerService, now)
}

func renderBody(payload event.ReminderDue) string {
	body := fmt.Sprintf("%q is due %s.", payload.TaskTitle, payload.DueAt.Format(time.RFC1123))
	if payload.TaskDescription != nil && *payload.TaskDescription != "" {
		body += "\n\n" + *payload.TaskDescription
	}
	return body
}

// dispatchOne sends msg through the named channel with retry, then
// records the outcome. An unknown channel name is recorded as an
// immediate permanent failure.
func (d *Dispatcher) dispatchOne(ctx context.Context, channelName string, payload event.ReminderDue, recipient Recipient, msg RenderedMessage) {
	ch, ok := d.channels[channelName]
	if !ok {
		d.recordOutcome(ctx, payload, channelName, msg, fmt.Errorf("%w: no channel registered for %q", ErrPermanent, channelName))
		return
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		lastErr = ch.Send(ctx, recipient, msg)
		if lastErr == nil {
			break
		}

		d.logger.Warn("notification: channel send failed",
			"channel", channelName, "task_id", payload.TaskID, "attempt", attempt, "error", lastErr)

		if errors.Is(lastErr, ErrPermanent) {
			break
		}
		if attempt == d.maxAttempts {
			break
		}

		delay := time.Duration(math.Pow(d.backoffBase, float64(attempt))) * time.Second
		if delay > d.backoffMax {
			delay = d.backoffMax
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		case <-time.After(delay):
		}
	}

	d.recordOutcome(ctx, payload, channelName, msg, lastErr)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, payload event.ReminderDue, channelName string, msg RenderedMessage, sendErr error) {
	now := d.clock.Now()
	taskID := payload.TaskID

	rec := &Record{
		OwnerID: payload.UserID,
		TaskID:  &taskID,
		Channel: channelName,
		Message: msg.Body,
	}

	if sendErr == nil {
		rec.Status = StatusSent
		if err := d.repo.Insert(ctx, rec); err != nil {
			d.logger.Error("notification: failed to record delivery", "error", err)
		}
		if _, err := d.pub.Publish(ctx, event.TopicNotifications, event.TypeNotificationSent, event.NotificationSent{
			NotificationID: rec.ID,
			UserID:         payload.UserID,
			TaskID:         &taskID,
			Channel:        channelName,
			Message:        msg.Body,
			SentAt:         now,
		}, uuid.Nil); err != nil {
			d.logger.Error("notification: failed to publish sent event", "error", err)
		}
		return
	}

	errText := sendErr.Error()
	rec.Status = StatusFailed
	rec.Error = &errText
	if err := d.repo.Insert(ctx, rec); err != nil {
		d.logger.Error("notification: failed to record delivery", "error", err)
	}
	if _, err := d.pub.Publish(ctx, event.TopicNotifications, event.TypeNotificationFailed, event.NotificationFailed{
		NotificationID: rec.ID,
		UserID:         payload.UserID,
		TaskID:         &taskID,
		Channel:        channelName,
		Message:        msg.Body,
		Error:          errText,
		FailedAt:       now,
	}, uuid.Nil); err != nil {
		d.logger.Error("notification: failed to publish failed event", "error", err)
	}
}
