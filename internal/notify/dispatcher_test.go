package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
	"github.com/pavangelika/currency-rate-bot/internal/rates"
	"github.com/pavangelika/currency-rate-bot/internal/store"
)

// memRepo is an in-memory store.Repo tracking snapshot writes.
type memRepo struct {
	users         map[int64]*domain.User
	snapshotSets  int
	failGetUser   bool
	failSnapshots bool
}

var _ store.Repo = (*memRepo)(nil)

var errBoom = errors.New("boom")

func newMemRepo(u *domain.User) *memRepo {
	return &memRepo{users: map[int64]*domain.User{u.UserID: u}}
}

func (m *memRepo) UpsertUser(context.Context, *domain.User) error { return nil }

func (m *memRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if m.failGetUser {
		return nil, errBoom
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *memRepo) SetCurrencies(context.Context, int64, []domain.Currency) error { return nil }
func (m *memRepo) SetEveryday(context.Context, int64, bool) error                { return nil }
func (m *memRepo) AddJob(context.Context, int64, string) error                   { return nil }
func (m *memRepo) RemoveAllJobs(context.Context, int64) error                    { return nil }
func (m *memRepo) ListJobs(context.Context, int64) ([]string, error)             { return nil, nil }
func (m *memRepo) ListSubscribed(context.Context) ([]domain.User, error)         { return nil, nil }

func (m *memRepo) Snapshot(_ context.Context, id int64) (string, error) {
	return m.users[id].LastCourse, nil
}

func (m *memRepo) SetSnapshot(_ context.Context, id int64, text string) error {
	if m.failSnapshots {
		return errBoom
	}
	m.users[id].LastCourse = text
	m.snapshotSets++
	return nil
}

func (m *memRepo) Close() error { return nil }

type fakeFetcher struct {
	res rates.Result
	err error
}

func (f *fakeFetcher) Today(context.Context, []domain.Currency, string) (rates.Result, error) {
	return f.res, f.err
}

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	failures int
	calls    int
	sent     []string
}

func (s *flakySender) SendMessage(_ int64, text string) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("transport glitch")
	}
	s.sent = append(s.sent, text)
	return nil
}

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Initial: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func testUser(snapshot string) *domain.User {
	return &domain.User{
		UserID:     1,
		ChatID:     1,
		Currencies: []domain.Currency{{Name: "USD", CharCode: "USD"}},
		LastCourse: snapshot,
	}
}

func newTestDispatcher(repo store.Repo, f Fetcher, s Sender, attempts int) *Dispatcher {
	return NewDispatcher(repo, f, s, testPolicy(attempts), zap.NewNop())
}

func TestRunCycle_NoChangeNoSend(t *testing.T) {
	repo := newMemRepo(testUser("USD = 90,50"))
	sender := &flakySender{}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 90,50", Published: true}}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1))
	assert.Zero(t, sender.calls, "equal rates must not be sent")
	assert.Zero(t, repo.snapshotSets)
}

func TestRunCycle_ChangeSendsAndUpdatesSnapshot(t *testing.T) {
	repo := newMemRepo(testUser("USD = 90,50"))
	sender := &flakySender{}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 91,00", Published: true}}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1))
	require.Equal(t, []string{"USD = 91,00"}, sender.sent, "the full rates text is sent, not a diff")
	assert.Equal(t, 1, repo.snapshotSets)
	assert.Equal(t, "USD = 91,00", repo.users[1].LastCourse)
}

func TestRunCycle_NotPublishedNoSideEffects(t *testing.T) {
	repo := newMemRepo(testUser("USD = 90,50"))
	sender := &flakySender{}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "Данные на 01/01/2030 не опубликованы"}}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1))
	assert.Zero(t, sender.calls)
	assert.Zero(t, repo.snapshotSets)
	assert.Equal(t, "USD = 90,50", repo.users[1].LastCourse)
}

func TestRunCycle_FetchErrorIsSkip(t *testing.T) {
	repo := newMemRepo(testUser(""))
	sender := &flakySender{}
	d := newTestDispatcher(repo, &fakeFetcher{err: rates.ErrUnavailable}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1), "fetch failures must not fail the cycle")
	assert.Zero(t, sender.calls)
	assert.Zero(t, repo.snapshotSets)
}

func TestRunCycle_SendRetriesThenSucceeds(t *testing.T) {
	repo := newMemRepo(testUser("USD = 90,50"))
	// Fails 4 times, succeeds on the 5th attempt, inside the cap.
	sender := &flakySender{failures: 4}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 91,00", Published: true}}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1))
	assert.Equal(t, 5, sender.calls)
	assert.Len(t, sender.sent, 1, "message must be delivered exactly once")
	assert.Equal(t, 1, repo.snapshotSets, "snapshot must be updated exactly once")
}

func TestRunCycle_SendExhaustionKeepsBaseline(t *testing.T) {
	repo := newMemRepo(testUser("USD = 90,50"))
	sender := &flakySender{failures: 100}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 91,00", Published: true}}, sender, 3)

	require.NoError(t, d.RunCycle(context.Background(), 1), "send exhaustion is not a cycle error")
	assert.Equal(t, 3, sender.calls)
	assert.Zero(t, repo.snapshotSets, "baseline must survive so the next cycle retries")
	assert.Equal(t, "USD = 90,50", repo.users[1].LastCourse)
}

func TestRunCycle_StorageErrorPropagates(t *testing.T) {
	repo := newMemRepo(testUser(""))
	repo.failGetUser = true
	d := newTestDispatcher(repo, &fakeFetcher{}, &flakySender{}, 5)

	assert.ErrorIs(t, d.RunCycle(context.Background(), 1), errBoom)

	repo = newMemRepo(testUser(""))
	repo.failSnapshots = true
	d = newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 91,00", Published: true}}, &flakySender{}, 5)
	assert.ErrorIs(t, d.RunCycle(context.Background(), 1), errBoom)
}

func TestRunCycle_NoCurrenciesSkips(t *testing.T) {
	u := testUser("")
	u.Currencies = nil
	repo := newMemRepo(u)
	sender := &flakySender{}
	d := newTestDispatcher(repo, &fakeFetcher{res: rates.Result{Text: "USD = 91,00", Published: true}}, sender, 5)

	require.NoError(t, d.RunCycle(context.Background(), 1))
	assert.Zero(t, sender.calls)
}
