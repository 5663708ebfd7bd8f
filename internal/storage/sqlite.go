package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "engagebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the sqlite-backed durable state. The scheduler is
// single-threaded, but SQLite still gets one writer connection and WAL
// durability so a crash mid-write never loses committed increments.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

// ---- Daily quotas ----

// GetDailyQuota returns (nil, nil) when no quota exists for the date yet.
func (s *Store) GetDailyQuota(ctx context.Context, account, date string) (*DailyQuota, error) {
	var (
		q   DailyQuota
		low int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT account, date, target_replies, target_likes, target_retweets, low_activity
		 FROM daily_quotas WHERE account = ? AND date = ?`,
		account, date,
	).Scan(&q.Account, &q.Date, &q.TargetReplies, &q.TargetLikes, &q.TargetRetweets, &low)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.LowActivity = low != 0
	return &q, nil
}

// PutDailyQuota inserts the quota if absent and leaves an existing row
// untouched, which is what makes the calculator idempotent across
// restarts. Callers reread after the put.
func (s *Store) PutDailyQuota(ctx context.Context, q DailyQuota) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_quotas(account, date, target_replies, target_likes, target_retweets, low_activity, created_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(account, date) DO NOTHING`,
		q.Account, q.Date, q.TargetReplies, q.TargetLikes, q.TargetRetweets, boolInt(q.LowActivity),
		time.Now().Format(time.RFC3339),
	)
	return err
}

// ---- Session plans ----

func (s *Store) SessionPlans(ctx context.Context, date string) ([]SessionPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, session, account, target_replies, completed
		 FROM session_plans WHERE date = ? ORDER BY session, account`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionPlan
	for rows.Next() {
		var p SessionPlan
		if err := rows.Scan(&p.Date, &p.Session, &p.Account, &p.Target, &p.Completed); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceSessionPlans rewrites all plan rows for a date in one
// transaction, so re-planning after a restart never duplicates rows.
func (s *Store) ReplaceSessionPlans(ctx context.Context, date string, plans []SessionPlan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_plans WHERE date = ?`, date); err != nil {
		return err
	}
	for _, p := range plans {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_plans(date, session, account, target_replies, completed)
			 VALUES(?,?,?,?,?)`,
			date, p.Session, p.Account, p.Target, p.Completed,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) BumpSessionCompleted(ctx context.Context, date string, session int, account string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session_plans SET completed = completed + 1
		 WHERE date = ? AND session = ? AND account = ?`,
		date, session, account)
	return err
}

// ---- Replies & dedup ----

func (s *Store) HasReply(ctx context.Context, account, candidateID string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM replies WHERE account = ? AND candidate_id = ?`,
		account, candidateID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) HasRepliedAuthor(ctx context.Context, account, author, date string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM replied_authors WHERE account = ? AND author = ? AND date = ?`,
		account, author, date).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordReply atomically appends the reply snapshot, claims the author for
// the day, and bumps the daily reply counter. A uniqueness conflict on
// either the candidate or the author rolls the whole transaction back and
// surfaces as ErrDuplicate.
func (s *Store) RecordReply(ctx context.Context, rec ReplyRecord, date string) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO replies(account, candidate_id, author, tweet_text, reply_text, age_minutes, score, posted, at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.Account, rec.CandidateID, rec.Author, nullStr(rec.TweetText), rec.ReplyText,
		rec.AgeMinutes, rec.Score, boolInt(rec.Posted), rec.At.Format(time.RFC3339Nano),
	); err != nil {
		return wrapConflict(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO replied_authors(account, author, date) VALUES(?,?,?)`,
		rec.Account, rec.Author, date,
	); err != nil {
		return wrapConflict(err)
	}
	if rec.Posted {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_stats(account, date, replies) VALUES(?,?,1)
			 ON CONFLICT(account, date) DO UPDATE SET replies = replies + 1`,
			rec.Account, date,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- Daily counters ----

func (s *Store) Counts(ctx context.Context, account, date string) (DayCounts, error) {
	var c DayCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT replies, likes, retweets FROM daily_stats WHERE account = ? AND date = ?`,
		account, date).Scan(&c.Replies, &c.Likes, &c.Retweets)
	if errors.Is(err, sql.ErrNoRows) {
		return DayCounts{}, nil
	}
	if err != nil {
		return DayCounts{}, err
	}
	return c, nil
}

func (s *Store) AddLike(ctx context.Context, account, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats(account, date, likes) VALUES(?,?,1)
		 ON CONFLICT(account, date) DO UPDATE SET likes = likes + 1`,
		account, date)
	return err
}

func (s *Store) AddRetweet(ctx context.Context, account, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats(account, date, retweets) VALUES(?,?,1)
		 ON CONFLICT(account, date) DO UPDATE SET retweets = retweets + 1`,
		account, date)
	return err
}

// ---- helpers ----

// wrapConflict maps the driver's UNIQUE constraint error to ErrDuplicate.
// modernc.org/sqlite has no typed constraint error, so the message is the
// stable surface we get.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
