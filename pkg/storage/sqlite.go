// Package storage persists collected posts and run summaries to
// SQLite. Posts are keyed by mid, so re-running a location upserts
// instead of duplicating.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"weibogeo/pkg/collector"
	"weibogeo/pkg/logger"
	"weibogeo/pkg/weibo"
)

// Database stores posts and run history.
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   logger.Logger
}

// NewDatabase opens (and if needed creates) the SQLite database at the
// given path, creating parent directories as required.
func NewDatabase(dbPath string, log logger.Logger) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	database := &Database{db: db, log: log}
	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("initializing tables: %w", err)
	}
	return database, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS posts (
		mid TEXT PRIMARY KEY,
		created_at TEXT,
		text TEXT,
		text_length INTEGER NOT NULL,
		source TEXT,
		favorited BOOLEAN NOT NULL,
		reposts_count INTEGER NOT NULL,
		comments_count INTEGER NOT NULL,
		attitudes_count INTEGER NOT NULL,
		pic_num INTEGER NOT NULL,
		pic_urls TEXT,
		user_id INTEGER NOT NULL,
		screen_name TEXT,
		follow_count INTEGER NOT NULL,
		followers_count INTEGER NOT NULL,
		statuses_count INTEGER NOT NULL,
		verified BOOLEAN NOT NULL,
		verified_type INTEGER NOT NULL,
		gender TEXT,
		is_repost BOOLEAN NOT NULL,
		is_long_text BOOLEAN NOT NULL,
		location TEXT NOT NULL,
		coordinates TEXT,
		collected_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_location ON posts(location);
	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		total_posts INTEGER NOT NULL,
		total_requests INTEGER NOT NULL,
		failed_requests INTEGER NOT NULL,
		locations_completed INTEGER NOT NULL,
		locations_failed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location TEXT NOT NULL,
		coordinates TEXT,
		pages_fetched INTEGER NOT NULL,
		posts INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		failed_requests INTEGER NOT NULL,
		stop_reason TEXT NOT NULL,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_locations_location ON run_locations(location);
	`

	_, err := d.db.Exec(query)
	return err
}

// SaveResult persists one location's posts and its paging record.
func (d *Database) SaveResult(ctx context.Context, result *collector.LocationResult) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	postQuery := `
	INSERT OR REPLACE INTO posts (
		mid, created_at, text, text_length, source, favorited,
		reposts_count, comments_count, attitudes_count, pic_num, pic_urls,
		user_id, screen_name, follow_count, followers_count, statuses_count,
		verified, verified_type, gender, is_repost, is_long_text,
		location, coordinates, collected_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, postQuery)
	if err != nil {
		return fmt.Errorf("preparing post insert: %w", err)
	}
	defer stmt.Close()

	for _, post := range result.Posts {
		_, err := stmt.ExecContext(ctx,
			post.Identity(), post.CreatedAt, post.Text, post.TextLength,
			post.Source, post.Favorited, post.RepostsCount, post.CommentsCount,
			post.AttitudesCount, post.PicNum, post.PicURLs, post.UserID,
			post.ScreenName, post.FollowCount, post.FollowersCount,
			post.StatusesCount, post.Verified, post.VerifiedType, post.Gender,
			post.IsRepost, post.IsLongText, post.Location, post.Coordinates, now,
		)
		if err != nil {
			return fmt.Errorf("saving post %s: %w", post.Identity(), err)
		}
	}

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO run_locations (
		location, coordinates, pages_fetched, posts, requests,
		failed_requests, stop_reason, error, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Location, result.Coordinates, result.PagesFetched,
		len(result.Posts), result.Requests, result.FailedRequests,
		string(result.StopReason), errText,
		result.StartedAt.UTC().Format(time.RFC3339),
		result.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving location record: %w", err)
	}

	return tx.Commit()
}

// SaveSummary persists the run-level aggregate.
func (d *Database) SaveSummary(ctx context.Context, summary *collector.RunSummary) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, err := d.db.ExecContext(ctx, `
	INSERT INTO runs (
		started_at, finished_at, total_posts, total_requests,
		failed_requests, locations_completed, locations_failed
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		summary.TotalPosts, summary.TotalRequests, summary.FailedRequests,
		summary.LocationsCompleted, summary.LocationsFailed,
	)
	if err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}
	return nil
}

// TotalPosts returns the number of stored posts.
func (d *Database) TotalPosts(ctx context.Context) (int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return count, nil
}

// PostsByLocation returns stored posts for one location, most recent
// first by post id.
func (d *Database) PostsByLocation(ctx context.Context, location string, limit int) ([]weibo.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT mid, created_at, text, text_length, source, favorited,
		reposts_count, comments_count, attitudes_count, pic_num, pic_urls,
		user_id, screen_name, follow_count, followers_count, statuses_count,
		verified, verified_type, gender, is_repost, is_long_text,
		location, coordinates
	FROM posts
	WHERE location = ?
	ORDER BY mid DESC
	LIMIT ?`, location, limit)
	if err != nil {
		return nil, fmt.Errorf("querying posts for %s: %w", location, err)
	}
	defer rows.Close()

	posts := make([]weibo.Post, 0, limit)
	for rows.Next() {
		var post weibo.Post
		err := rows.Scan(
			&post.Mid, &post.CreatedAt, &post.Text, &post.TextLength,
			&post.Source, &post.Favorited, &post.RepostsCount,
			&post.CommentsCount, &post.AttitudesCount, &post.PicNum,
			&post.PicURLs, &post.UserID, &post.ScreenName, &post.FollowCount,
			&post.FollowersCount, &post.StatusesCount, &post.Verified,
			&post.VerifiedType, &post.Gender, &post.IsRepost, &post.IsLongText,
			&post.Location, &post.Coordinates,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}
	return posts, nil
}

// LocationStat is one location's aggregate over all stored posts.
type LocationStat struct {
	Location string `json:"location"`
	Posts    int    `json:"posts"`
}

// LocationStats returns post counts per location, busiest first.
func (d *Database) LocationStats(ctx context.Context) ([]LocationStat, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT location, COUNT(*) AS posts
	FROM posts
	GROUP BY location
	ORDER BY posts DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying location stats: %w", err)
	}
	defer rows.Close()

	var stats []LocationStat
	for rows.Next() {
		var stat LocationStat
		if err := rows.Scan(&stat.Location, &stat.Posts); err != nil {
			return nil, fmt.Errorf("scanning location stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating location stats: %w", err)
	}
	return stats, nil
}

// StopReasonStat counts how many location collections ended with one
// stop reason.
type StopReasonStat struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// StopReasonStats returns stop reason counts across all stored runs,
// most frequent first.
func (d *Database) StopReasonStats(ctx context.Context) ([]StopReasonStat, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT stop_reason, COUNT(*) AS count
	FROM run_locations
	GROUP BY stop_reason
	ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying stop reason stats: %w", err)
	}
	defer rows.Close()

	var stats []StopReasonStat
	for rows.Next() {
		var stat StopReasonStat
		if err := rows.Scan(&stat.Reason, &stat.Count); err != nil {
			return nil, fmt.Errorf("scanning stop reason stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stop reason stats: %w", err)
	}
	return stats, nil
}

// TopPosts returns the stored posts with the highest total engagement,
// counting reposts, comments and attitudes together.
func (d *Database) TopPosts(ctx context.Context, limit int) ([]weibo.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT mid, created_at, text, text_length, source, favorited,
		reposts_count, comments_count, attitudes_count, pic_num, pic_urls,
		user_id, screen_name, follow_count, followers_count, statuses_count,
		verified, verified_type, gender, is_repost, is_long_text,
		location, coordinates
	FROM posts
	ORDER BY reposts_count + comments_count + attitudes_count DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top posts: %w", err)
	}
	defer rows.Close()

	posts := make([]weibo.Post, 0, limit)
	for rows.Next() {
		var post weibo.Post
		err := rows.Scan(
			&post.Mid, &post.CreatedAt, &post.Text, &post.TextLength,
			&post.Source, &post.Favorited, &post.RepostsCount,
			&post.CommentsCount, &post.AttitudesCount, &post.PicNum,
			&post.PicURLs, &post.UserID, &post.ScreenName, &post.FollowCount,
			&post.FollowersCount, &post.StatusesCount, &post.Verified,
			&post.VerifiedType, &post.Gender, &post.IsRepost, &post.IsLongText,
			&post.Location, &post.Coordinates,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top posts: %w", err)
	}
	return posts, nil
}

// RunRecord is one stored run summary.
type RunRecord struct {
	ID                 int       `json:"id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	TotalPosts         int       `json:"total_posts"`
	TotalRequests      int       `json:"total_requests"`
	FailedRequests     int       `json:"failed_requests"`
	LocationsCompleted int       `json:"locations_completed"`
	LocationsFailed    int       `json:"locations_failed"`
}

// RecentRuns returns the latest run summaries, newest first.
func (d *Database) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, total_posts, total_requests,
		failed_requests, locations_completed, locations_failed
	FROM runs
	ORDER BY id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var startedAt, finishedAt string
		err := rows.Scan(&run.ID, &startedAt, &finishedAt, &run.TotalPosts,
			&run.TotalRequests, &run.FailedRequests,
			&run.LocationsCompleted, &run.LocationsFailed)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}
