package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
)

// Publisher is the subset of eventbus.Publisher the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error)
}

// UserDirectory resolves an owner's notification email. Out of scope
// per the spec (user records live behind authentication, which this
// core treats as an external collaborator); a real implementation is
// injected by the process that wires the scheduler together.
type UserDirectory interface {
	Email(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// Scheduler is the Reminder Scheduler (C10): a periodic worker that
// scans the reminder store and publishes reminder.due.v1 for anything
// that has crossed its firing window, committing the sent marker per
// reminder so a crash mid-tick can neither re-send nor lose one.
//
// Grounded on internal/job/scheduler.go's ticker-driven Run loop;
// generalized from that scheduler's single enqueue-a-job step into a
// scan-then-publish-then-mark-sent step per candidate reminder.
type Scheduler struct {
	repo     *Repository
	pub      Publisher
	users    UserDirectory
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// Config configures a Scheduler. Zero Interval falls back to the
// spec's nominal 5 minute cadence.
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

const DefaultInterval = 5 * time.Minute

// New builds a Scheduler.
func New(repo *Repository, pub Publisher, users UserDirectory, cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{repo: repo, pub: pub, users: users, clock: c, interval: interval, logger: logger}
}

// Summary reports how many reminders a scan found and how many it
// actually sent, per the spec's {found, sent} return shape.
type Summary struct {
	Found int
	Sent  int
}

// Run ticks every Interval until ctx is cancelled, invoking Scan on
// each tick (and once immediately on start).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("reminder scheduler starting", "interval", s.interval)

	if _, err := s.Scan(ctx); err != nil {
		s.logger.Error("reminder scan failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				s.logger.Error("reminder scan failed", "error", err)
			}
		}
	}
}

// Scan performs one scheduler tick: it reads every unsent reminder
// whose owning task is incomplete and has a due timestamp, keeps the
// ones whose offset has crossed the firing window as of now, and
// publishes reminder.due.v1 for each, committing sent_at per reminder
// so the tick is safely re-entrant.
func (s *Scheduler) Scan(ctx context.Context) (Summary, error) {
	now := s.clock.Now().UTC()

	candidates, err := s.repo.ListCandidates(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, due := range candidates {
		offsetDuration, err := ParseOffset(due.Offset)
		if err != nil {
			s.logger.Warn("reminder has an invalid fire offset, skipping",
				"reminder_id", due.ID, "offset", due.Offset, "error", err)
			continue
		}

		firesAt := due.DueAt.Add(-offsetDuration)
		if firesAt.After(now) {
			continue
		}

		summary.Found++

		if err := s.fire(ctx, due, now); err != nil {
			s.logger.Error("failed to fire reminder",
				"reminder_id", due.ID, "task_id", due.TaskID, "error", err)
			continue
		}

		summary.Sent++
	}

	return summary, nil
}

func (s *Scheduler) fire(ctx context.Context, due *Due, now time.Time) error {
	email := ""
	if s.users != nil {
		resolved, err := s.users.Email(ctx, due.OwnerID)
		if err != nil {
			s.logger.Warn("failed to resolve owner email", "owner_id", due.OwnerID, "error", err)
		} else {
			email = resolved
		}
	}

	payload := event.ReminderDue{
		ReminderID:      due.ID,
		TaskID:          due.TaskID,
		UserID:          due.OwnerID,
		UserEmail:       email,
		TaskTitle:       due.TaskTitle,
		TaskDescription: due.TaskDescription,
		DueAt:           due.DueAt,
		RemindBefore:    due.Offset,
		Channels:        due.Channels,
	}

	if _, err := s.pub.Publish(ctx, event.TopicReminders, event.TypeReminderDue, payload, uuid.Nil); err != nil {
		return err
	}

	return s.repo.MarkSent(ctx, due.ID, now)
}
