package schedule

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Triggers is the trigger-engine surface the subscription service
// needs: idempotent registration keyed by job id, tolerant removal.
type Triggers interface {
	AddDaily(id, at string, task func()) error
	AddInterval(id string, every time.Duration, task func()) error
	Has(id string) bool
	Remove(id string)
}

// Scheduler wraps gocron. Jobs are tagged with their deterministic id
// and run in singleton mode, so one job never overlaps itself.
type Scheduler struct {
	cron *gocron.Scheduler
	log  *zap.Logger
}

// New creates a stopped scheduler in the given location. Call Start
// only after rehydration has re-registered persisted jobs.
func New(loc *time.Location, log *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(loc)
	s.TagsUnique()
	return &Scheduler{cron: s, log: log}
}

// Has reports whether a job with the given id is registered.
func (s *Scheduler) Has(id string) bool {
	jobs, err := s.cron.FindJobsByTag(id)
	return err == nil && len(jobs) > 0
}

// AddDaily registers a job firing every day at the given local time
// ("HH:MM"). Adding an id that is already live is a logged no-op.
func (s *Scheduler) AddDaily(id, at string, task func()) error {
	if s.Has(id) {
		s.log.Info("job already scheduled, skipping", zap.String("job", id))
		return nil
	}
	_, err := s.cron.Every(1).Day().At(at).Tag(id).SingletonMode().Do(task)
	if err != nil {
		return err
	}
	s.log.Info("daily job scheduled", zap.String("job", id), zap.String("at", at))
	return nil
}

// AddInterval registers a job firing on a fixed interval.
func (s *Scheduler) AddInterval(id string, every time.Duration, task func()) error {
	if s.Has(id) {
		s.log.Info("job already scheduled, skipping", zap.String("job", id))
		return nil
	}
	_, err := s.cron.Every(every).Tag(id).SingletonMode().Do(task)
	if err != nil {
		return err
	}
	s.log.Info("interval job scheduled", zap.String("job", id), zap.Duration("every", every))
	return nil
}

// Remove drops the job with the given id. A missing job is not an
// error: the persisted list may be stale relative to the live set.
func (s *Scheduler) Remove(id string) {
	if err := s.cron.RemoveByTag(id); err != nil {
		s.log.Info("job not found in scheduler", zap.String("job", id))
		return
	}
	s.log.Info("job removed", zap.String("job", id))
}

// Start begins firing jobs asynchronously.
func (s *Scheduler) Start() { s.cron.StartAsync() }

// Stop stops firing. Running job functions are left to finish.
func (s *Scheduler) Stop() { s.cron.Stop() }
