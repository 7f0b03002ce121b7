package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/config"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

// Service owns the per-user subscription state machine. A user is
// either unsubscribed (everyday=false, no job ids) or subscribed
// (everyday=true, exactly one live job id); repeated subscribe or
// unsubscribe calls are no-ops.
type Service struct {
	triggers Triggers
	repo     store.Repo
	log      *zap.Logger

	mode     string // config.ModeDaily or config.ModeInterval
	dailyAt  string
	interval time.Duration

	// cycle runs one dispatch cycle for a user; wired to the
	// notification dispatcher at startup.
	cycle func(userID int64)
}

// NewService builds the subscription service. cycle must be safe to
// call concurrently for different users.
func NewService(triggers Triggers, repo store.Repo, log *zap.Logger,
	mode, dailyAt string, interval time.Duration, cycle func(userID int64)) *Service {
	return &Service{
		triggers: triggers,
		repo:     repo,
		log:      log,
		mode:     mode,
		dailyAt:  dailyAt,
		interval: interval,
		cycle:    cycle,
	}
}

// JobID derives the deterministic job id for a user under the current
// notification mode. Same user, same mode, same id: re-creation is
// idempotent.
func (s *Service) JobID(userID int64) string {
	return fmt.Sprintf("job_%s_%d", s.mode, userID)
}

func (s *Service) register(id string, userID int64) error {
	task := func() { s.cycle(userID) }
	switch {
	case strings.HasPrefix(id, "job_"+config.ModeDaily+"_"):
		return s.triggers.AddDaily(id, s.dailyAt, task)
	case strings.HasPrefix(id, "job_"+config.ModeInterval+"_"):
		return s.triggers.AddInterval(id, s.interval, task)
	default:
		return fmt.Errorf("unknown job kind: %s", id)
	}
}

// Subscribe turns the recurring notification on for a user. The job is
// registered with the trigger engine first, then persisted; the stored
// job list never grows past one entry no matter how often the user
// taps subscribe.
func (s *Service) Subscribe(ctx context.Context, userID int64) error {
	id := s.JobID(userID)

	if err := s.register(id, userID); err != nil {
		return fmt.Errorf("register job %s: %w", id, err)
	}
	if err := s.repo.AddJob(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.SetEveryday(ctx, userID, true); err != nil {
		return err
	}
	s.log.Info("user subscribed", zap.Int64("user", userID), zap.String("job", id))
	return nil
}

// Unsubscribe turns the recurring notification off. Every persisted
// job id is removed from the live scheduler (ids the scheduler no
// longer knows are tolerated), then the persisted list is cleared.
// The last-delivered snapshot is kept.
func (s *Service) Unsubscribe(ctx context.Context, userID int64) error {
	ids, err := s.repo.ListJobs(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	for _, id := range ids {
		s.triggers.Remove(id)
	}

	if err := s.repo.RemoveAllJobs(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetEveryday(ctx, userID, false); err != nil {
		return err
	}
	s.log.Info("user unsubscribed", zap.Int64("user", userID), zap.Int("jobs_removed", len(ids)))
	return nil
}

// Subscribed reports the user's current subscription flag.
func (s *Service) Subscribed(ctx context.Context, userID int64) (bool, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.Everyday, nil
}

// Rehydrate re-registers every persisted subscription with the trigger
// engine. The store is the source of truth after a restart; this must
// run before the scheduler starts firing. One user's bad row never
// blocks the rest.
func (s *Service) Rehydrate(ctx context.Context) error {
	users, err := s.repo.ListSubscribed(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, u := range users {
		ids := u.JobIDs
		if len(ids) == 0 {
			// everyday=true with no job id: heal by re-deriving the
			// deterministic id and persisting it.
			id := s.JobID(u.UserID)
			if err := s.repo.AddJob(ctx, u.UserID, id); err != nil {
				s.log.Error("rehydrate: persist healed job failed",
					zap.Int64("user", u.UserID), zap.Error(err))
				continue
			}
			ids = []string{id}
		}
		for _, id := range ids {
			if err := s.register(id, u.UserID); err != nil {
				s.log.Error("rehydrate: register failed",
					zap.String("job", id), zap.Int64("user", u.UserID), zap.Error(err))
				continue
			}
			restored++
		}
	}
	s.log.Info("jobs rehydrated", zap.Int("users", len(users)), zap.Int("jobs", restored))
	return nil
}

// ScheduleReminder registers a recurring reminder for a user. Reminders
// are in-memory only; they do not survive a restart.
func (s *Service) ScheduleReminder(userID int64, every time.Duration, task func()) error {
	return s.triggers.AddInterval(reminderJobID(userID), every, task)
}

// CancelReminder removes a user's reminder, if any.
func (s *Service) CancelReminder(userID int64) {
	s.triggers.Remove(reminderJobID(userID))
}

// HasReminder reports whether a reminder is live for the user.
func (s *Service) HasReminder(userID int64) bool {
	return s.triggers.Has(reminderJobID(userID))
}

func reminderJobID(userID int64) string {
	return fmt.Sprintf("job_reminder_%d", userID)
}
