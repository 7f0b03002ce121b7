package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/pavangelika/currency-rate-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertUser inserts a user's profile row or refreshes its profile
// fields. Selection, subscription and snapshot columns are not touched
// on conflict; they have their own setters.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	started := u.StartedAt.UTC().Unix()
	if u.StartedAt.IsZero() {
		started = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, name, username, chat_id, is_bot, timezone, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name     = excluded.name,
			username = excluded.username,
			chat_id  = excluded.chat_id,
			timezone = excluded.timezone`,
		u.UserID, u.Name, u.Username, u.ChatID, boolToInt(u.IsBot), u.Timezone, started,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.UserID, err)
	}
	return nil
}

// GetUser returns a user row by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, name, username, chat_id, is_bot, timezone, started_at,
		       currency_data, everyday, job_ids, last_course_data
		FROM users
		WHERE user_id = ?`,
		userID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u            domain.User
		isBot        int
		startedAt    int64
		currencyJSON string
		everyday     int
		jobsJSON     string
	)
	if err := row.Scan(
		&u.UserID, &u.Name, &u.Username, &u.ChatID, &isBot, &u.Timezone, &startedAt,
		&currencyJSON, &everyday, &jobsJSON, &u.LastCourse,
	); err != nil {
		return nil, err
	}

	u.IsBot = isBot != 0
	u.Everyday = everyday != 0
	u.StartedAt = time.Unix(startedAt, 0).UTC()

	var err error
	if u.Currencies, err = unmarshalCurrencies(currencyJSON); err != nil {
		return nil, err
	}
	if u.JobIDs, err = unmarshalJobIDs(jobsJSON); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetCurrencies overwrites the user's currency selection.
func (r *SQLiteRepo) SetCurrencies(ctx context.Context, userID int64, sel []domain.Currency) error {
	data, err := marshalCurrencies(sel)
	if err != nil {
		return err
	}
	return r.updateColumn(ctx, userID, "currency_data", data)
}

// SetEveryday toggles the subscription flag.
func (r *SQLiteRepo) SetEveryday(ctx context.Context, userID int64, everyday bool) error {
	return r.updateColumn(ctx, userID, "everyday", boolToInt(everyday))
}

// AddJob appends jobID to the user's job list if not already present.
func (r *SQLiteRepo) AddJob(ctx context.Context, userID int64, jobID string) error {
	ids, err := r.ListJobs(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == jobID {
			return nil
		}
	}
	data, err := marshalJobIDs(append(ids, jobID))
	if err != nil {
		return err
	}
	return r.updateColumn(ctx, userID, "job_ids", data)
}

// RemoveAllJobs clears the user's job list. The snapshot stays.
func (r *SQLiteRepo) RemoveAllJobs(ctx context.Context, userID int64) error {
	return r.updateColumn(ctx, userID, "job_ids", "[]")
}

// ListJobs returns current job ids, empty if none.
func (r *SQLiteRepo) ListJobs(ctx context.Context, userID int64) ([]string, error) {
	var jobsJSON string
	err := r.db.QueryRowContext(ctx,
		`SELECT job_ids FROM users WHERE user_id = ?`, userID,
	).Scan(&jobsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list jobs for %d: %w", userID, err)
	}
	return unmarshalJobIDs(jobsJSON)
}

// ListSubscribed returns every user with the everyday flag set.
func (r *SQLiteRepo) ListSubscribed(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, name, username, chat_id, is_bot, timezone, started_at,
		       currency_data, everyday, job_ids, last_course_data
		FROM users
		WHERE everyday = 1
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribed: %w", err)
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list subscribed: %w", err)
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscribed: %w", err)
	}
	return res, nil
}

// Snapshot returns the last delivered rates text, empty if none yet.
func (r *SQLiteRepo) Snapshot(ctx context.Context, userID int64) (string, error) {
	var text string
	err := r.db.QueryRowContext(ctx,
		`SELECT last_course_data FROM users WHERE user_id = ?`, userID,
	).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("snapshot for %d: %w", userID, err)
	}
	return text, nil
}

// SetSnapshot overwrites the last delivered rates text.
func (r *SQLiteRepo) SetSnapshot(ctx context.Context, userID int64, text string) error {
	return r.updateColumn(ctx, userID, "last_course_data", text)
}

func (r *SQLiteRepo) updateColumn(ctx context.Context, userID int64, column string, value any) error {
	// column comes from a fixed set of callers, never user input.
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ? WHERE user_id = ?`, value, userID,
	)
	if err != nil {
		return fmt.Errorf("update %s for %d: %w", column, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s for %d: %w", column, userID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
