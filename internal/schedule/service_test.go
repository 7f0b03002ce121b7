package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/config"
	"github.com/pavangelika/currency-rate-bot/internal/domain"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

// fakeTriggers records registrations in memory.
type fakeTriggers struct {
	daily    map[string]string        // id -> at
	interval map[string]time.Duration // id -> every
}

var _ Triggers = (*fakeTriggers)(nil)

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{daily: map[string]string{}, interval: map[string]time.Duration{}}
}

func (f *fakeTriggers) AddDaily(id, at string, _ func()) error {
	if !f.Has(id) {
		f.daily[id] = at
	}
	return nil
}

func (f *fakeTriggers) AddInterval(id string, every time.Duration, _ func()) error {
	if !f.Has(id) {
		f.interval[id] = every
	}
	return nil
}

func (f *fakeTriggers) Has(id string) bool {
	_, d := f.daily[id]
	_, i := f.interval[id]
	return d || i
}

func (f *fakeTriggers) Remove(id string) {
	delete(f.daily, id)
	delete(f.interval, id)
}

// memRepo is an in-memory store.Repo.
type memRepo struct {
	users map[int64]*domain.User
}

var _ store.Repo = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{users: map[int64]*domain.User{}} }

func (m *memRepo) UpsertUser(_ context.Context, u *domain.User) error {
	if cur, ok := m.users[u.UserID]; ok {
		cur.Name, cur.Username, cur.ChatID = u.Name, u.Username, u.ChatID
		return nil
	}
	c := *u
	m.users[u.UserID] = &c
	return nil
}

func (m *memRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memRepo) SetCurrencies(_ context.Context, id int64, sel []domain.Currency) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Currencies = sel
	return nil
}

func (m *memRepo) SetEveryday(_ context.Context, id int64, everyday bool) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Everyday = everyday
	return nil
}

func (m *memRepo) AddJob(_ context.Context, id int64, jobID string) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, j := range u.JobIDs {
		if j == jobID {
			return nil
		}
	}
	u.JobIDs = append(u.JobIDs, jobID)
	return nil
}

func (m *memRepo) RemoveAllJobs(_ context.Context, id int64) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.JobIDs = nil
	return nil
}

func (m *memRepo) ListJobs(_ context.Context, id int64) ([]string, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]string(nil), u.JobIDs...), nil
}

func (m *memRepo) ListSubscribed(_ context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.users {
		if u.Everyday {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memRepo) Snapshot(_ context.Context, id int64) (string, error) {
	u, ok := m.users[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return u.LastCourse, nil
}

func (m *memRepo) SetSnapshot(_ context.Context, id int64, text string) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastCourse = text
	return nil
}

func (m *memRepo) Close() error { return nil }

func newTestService(triggers Triggers, repo store.Repo) *Service {
	return NewService(triggers, repo, zap.NewNop(),
		config.ModeDaily, "07:00", time.Hour, func(int64) {})
}

func seed(t *testing.T, repo *memRepo, id int64) {
	t.Helper()
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{UserID: id, ChatID: id}))
}

func TestSubscribe_Idempotent(t *testing.T) {
	ctx := context.Background()
	triggers := newFakeTriggers()
	repo := newMemRepo()
	svc := newTestService(triggers, repo)
	seed(t, repo, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Subscribe(ctx, 1))
	}

	ids, err := repo.ListJobs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_daily_1"}, ids, "repeated taps must keep exactly one job")
	assert.True(t, triggers.Has("job_daily_1"))

	sub, err := svc.Subscribed(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sub)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	ctx := context.Background()
	triggers := newFakeTriggers()
	repo := newMemRepo()
	svc := newTestService(triggers, repo)
	seed(t, repo, 1)

	require.NoError(t, svc.Subscribe(ctx, 1))
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Unsubscribe(ctx, 1))
	}

	ids, err := repo.ListJobs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, triggers.Has("job_daily_1"))

	sub, err := svc.Subscribed(ctx, 1)
	require.NoError(t, err)
	assert.False(t, sub)

	// Unknown user: still no error.
	require.NoError(t, svc.Unsubscribe(ctx, 999))
}

func TestUnsubscribe_ToleratesStaleJobIDs(t *testing.T) {
	ctx := context.Background()
	triggers := newFakeTriggers()
	repo := newMemRepo()
	svc := newTestService(triggers, repo)
	seed(t, repo, 1)

	// A job id persisted by an older process that the live scheduler
	// never had.
	require.NoError(t, repo.AddJob(ctx, 1, "job_interval_1"))
	require.NoError(t, repo.SetEveryday(ctx, 1, true))

	require.NoError(t, svc.Unsubscribe(ctx, 1))
	ids, err := repo.ListJobs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRehydrate_RestartRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seed(t, repo, 7)

	first := newTestService(newFakeTriggers(), repo)
	require.NoError(t, first.Subscribe(ctx, 7))

	// Simulate a restart: fresh trigger engine, same store.
	triggers := newFakeTriggers()
	second := newTestService(triggers, repo)
	require.NoError(t, second.Rehydrate(ctx))

	assert.True(t, triggers.Has("job_daily_7"), "rehydrated scheduler must hold the same job id")
	assert.Equal(t, "07:00", triggers.daily["job_daily_7"])
}

func TestRehydrate_HealsMissingJobID(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seed(t, repo, 5)
	// everyday set but job list empty: legacy inconsistent row.
	require.NoError(t, repo.SetEveryday(ctx, 5, true))

	triggers := newFakeTriggers()
	svc := newTestService(triggers, repo)
	require.NoError(t, svc.Rehydrate(ctx))

	assert.True(t, triggers.Has("job_daily_5"))
	ids, err := repo.ListJobs(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_daily_5"}, ids)
}

func TestRehydrate_IntervalMode(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	seed(t, repo, 2)

	triggers := newFakeTriggers()
	svc := NewService(triggers, repo, zap.NewNop(),
		config.ModeInterval, "07:00", 30*time.Minute, func(int64) {})
	require.NoError(t, svc.Subscribe(ctx, 2))

	fresh := newFakeTriggers()
	svc2 := NewService(fresh, repo, zap.NewNop(),
		config.ModeInterval, "07:00", 30*time.Minute, func(int64) {})
	require.NoError(t, svc2.Rehydrate(ctx))

	assert.Equal(t, 30*time.Minute, fresh.interval["job_interval_2"])
}

func TestReminderLifecycle(t *testing.T) {
	triggers := newFakeTriggers()
	svc := newTestService(triggers, newMemRepo())

	require.NoError(t, svc.ScheduleReminder(9, 15*time.Minute, func() {}))
	assert.True(t, svc.HasReminder(9))

	svc.CancelReminder(9)
	assert.False(t, svc.HasReminder(9))
}
