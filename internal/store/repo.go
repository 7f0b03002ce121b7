package store

import (
	"context"
	"errors"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
)

// ErrNotFound is returned when no row exists for the requested user.
var ErrNotFound = errors.New("user not found")

// Repo defines storage operations for users, their recurring jobs and
// the last-delivered rates snapshot. Every write is a single-row,
// single-column update; the store's own atomicity is the only
// consistency mechanism callers may rely on.
type Repo interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	SetCurrencies(ctx context.Context, userID int64, sel []domain.Currency) error
	SetEveryday(ctx context.Context, userID int64, everyday bool) error

	// AddJob appends jobID to the user's job list unless already
	// present. RemoveAllJobs clears the list; the snapshot is left
	// intact so a later re-subscription compares against it.
	AddJob(ctx context.Context, userID int64, jobID string) error
	RemoveAllJobs(ctx context.Context, userID int64) error
	ListJobs(ctx context.Context, userID int64) ([]string, error)

	// ListSubscribed returns every user with everyday=true; used to
	// rebuild the scheduler after a restart.
	ListSubscribed(ctx context.Context) ([]domain.User, error)

	Snapshot(ctx context.Context, userID int64) (string, error)
	SetSnapshot(ctx context.Context, userID int64, text string) error

	Close() error
}
