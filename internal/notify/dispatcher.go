package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
	"github.com/pavangelika/currency-rate-bot/internal/rates"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

// Fetcher is the rate source boundary.
type Fetcher interface {
	Today(ctx context.Context, sel []domain.Currency, date string) (rates.Result, error)
}

// Sender is the messaging transport boundary. A returned error is a
// transient transport failure and triggers the retry policy.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Dispatcher runs one notification cycle per trigger fire:
// fetch -> detect changes -> send -> persist snapshot.
type Dispatcher struct {
	repo   store.Repo
	fetch  Fetcher
	sender Sender
	retry  RetryPolicy
	log    *zap.Logger
	now    func() time.Time
}

func NewDispatcher(repo store.Repo, fetch Fetcher, sender Sender, retry RetryPolicy, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		fetch:  fetch,
		sender: sender,
		retry:  retry,
		log:    log,
		now:    time.Now,
	}
}

// RunCycle executes one cycle for a user. Fetch and send failures are
// downgraded to a skip (the job stays registered and the next trigger
// retries with the same baseline); only storage errors are returned.
func (d *Dispatcher) RunCycle(ctx context.Context, userID int64) error {
	u, err := d.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(u.Currencies) == 0 {
		d.log.Info("no currencies selected, skipping cycle", zap.Int64("user", userID))
		return nil
	}

	date := domain.FormatDate(d.now())
	res, err := d.fetch.Today(ctx, u.Currencies, date)
	if err != nil {
		d.log.Warn("rate fetch failed, cycle skipped",
			zap.Int64("user", userID), zap.Error(err))
		return nil
	}
	if !res.Published {
		d.log.Info("rates not published yet, cycle skipped",
			zap.Int64("user", userID), zap.String("date", date))
		return nil
	}

	changes, skipped := domain.DetectChanges(u.LastCourse, res.Text, u.Currencies)
	for _, code := range skipped {
		d.log.Warn("rate not found in response",
			zap.Int64("user", userID), zap.String("currency", code))
	}
	if len(changes) == 0 {
		d.log.Debug("no rate changes", zap.Int64("user", userID))
		return nil
	}

	if err := d.sendWithRetry(ctx, u.ChatID, res.Text); err != nil {
		// Snapshot deliberately untouched: the next cycle compares
		// against the same baseline and re-attempts delivery.
		d.log.Error("send failed, retries exhausted",
			zap.Int64("user", userID), zap.Error(err))
		return nil
	}

	if err := d.repo.SetSnapshot(ctx, userID, res.Text); err != nil {
		return err
	}
	d.log.Info("rates delivered",
		zap.Int64("user", userID), zap.Int("changed", len(changes)))
	return nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, chatID int64, text string) error {
	op := func() error { return d.sender.SendMessage(chatID, text) }
	return backoff.Retry(op, backoff.WithContext(d.retry.backOff(), ctx))
}
