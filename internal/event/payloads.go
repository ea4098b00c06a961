package event

import (
	"time"

	"github.com/google/uuid"
)

// Topic names. Each maps to one Redis stream key in the eventbus.
const (
	TopicTaskEvents     = "task-events"
	TopicReminders      = "reminders"
	TopicNotifications  = "notifications"
)

// Event type identifiers, each dotted-name plus version per the envelope
// invariant. Consumers switch on these rather than duck-typing payload
// presence.
const (
	TypeTaskCreated         = "task.created.v1"
	TypeTaskUpdated         = "task.updated.v1"
	TypeTaskCompleted       = "task.completed.v1"
	TypeTaskDeleted         = "task.deleted.v1"
	TypeReminderDue         = "reminder.due.v1"
	TypeNotificationSent    = "notification.sent.v1"
	TypeNotificationFailed  = "notification.failed.v1"
)

// RecurrenceDescriptor carries a recurrence's shape across event
// boundaries without exposing the store's internal recurrence id.
// Embedded (not nested) in payloads so its fields land as flat
// top-level keys on the wire, matching the documented event contract.
type RecurrenceDescriptor struct {
	Pattern    string `json:"recurrence_pattern"`
	Interval   int    `json:"recurrence_interval"`
	DaysOfWeek []int  `json:"recurrence_days_of_week,omitempty"`
	DayOfMonth int    `json:"recurrence_day_of_month,omitempty"`
}

// TaskCreated is the payload for task.created.v1.
type TaskCreated struct {
	TaskID        uuid.UUID  `json:"task_id"`
	UserID        uuid.UUID  `json:"user_id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description,omitempty"`
	Priority      string     `json:"priority"`
	Tags          []string   `json:"tags"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	HasRecurrence bool       `json:"has_recurrence"`
	*RecurrenceDescriptor
	CreatedAt time.Time `json:"created_at"`
}

// FieldDiff is one entry of an update payload's changes map.
type FieldDiff struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// TaskUpdated is the payload for task.updated.v1.
type TaskUpdated struct {
	TaskID    uuid.UUID            `json:"task_id"`
	UserID    uuid.UUID            `json:"user_id"`
	Changes   map[string]FieldDiff `json:"changes"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TaskCompleted is the payload for task.completed.v1.
type TaskCompleted struct {
	TaskID        uuid.UUID  `json:"task_id"`
	UserID        uuid.UUID  `json:"user_id"`
	CompletedAt   time.Time  `json:"completed_at"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	HasRecurrence bool       `json:"has_recurrence"`
	*RecurrenceDescriptor
}

// TaskDeleted is the payload for task.deleted.v1.
type TaskDeleted struct {
	TaskID    uuid.UUID `json:"task_id"`
	UserID    uuid.UUID `json:"user_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ReminderDue is the payload for reminder.due.v1.
type ReminderDue struct {
	ReminderID      uuid.UUID `json:"reminder_id"`
	TaskID          uuid.UUID `json:"task_id"`
	UserID          uuid.UUID `json:"user_id"`
	UserEmail       string    `json:"user_email,omitempty"`
	TaskTitle       string    `json:"task_title"`
	TaskDescription *string   `json:"task_description,omitempty"`
	DueAt           time.Time `json:"due_at"`
	RemindBefore    string    `json:"remind_before"`
	Channels        []string  `json:"channels"`
}

// NotificationSent is the payload for notification.sent.v1.
type NotificationSent struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         uuid.UUID  `json:"user_id"`
	TaskID         *uuid.UUID `json:"task_id,omitempty"`
	Channel        string     `json:"channel"`
	Message        string     `json:"message"`
	SentAt         time.Time  `json:"sent_at"`
}

// NotificationFailed is the payload for notification.failed.v1.
type NotificationFailed struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	UserID         uuid.UUID  `json:"user_id"`
	TaskID         *uuid.UUID `json:"task_id,omitempty"`
	Channel        string     `json:"channel"`
	Message        string     `json:"message"`
	Error          string     `json:"error"`
	FailedAt       time.Time  `json:"failed_at"`
}
