// Package history keeps a local SQLite log of sync runs and the files each
// run moved out of the mailbox.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultRetention is how many runs are kept when Options.Retention is zero.
const DefaultRetention = 500

const (
	sqlInsertRun = `INSERT INTO sync_runs
		(started_at, finished_at, outcome, success, files_downloaded, errors)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlInsertFile = `INSERT INTO transferred_files (run_id, file_id, name, path)
		VALUES (?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, started_at, finished_at, outcome, success, files_downloaded, errors
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`

	sqlFilesForRun = `SELECT file_id, name, path FROM transferred_files
		WHERE run_id = ? ORDER BY id`

	sqlPrune = `DELETE FROM sync_runs WHERE id NOT IN
		(SELECT id FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?)`
)

// RunSummary is one stored run.
type RunSummary struct {
	ID              int64            `json:"id"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Outcome         string           `json:"outcome"`
	Success         bool             `json:"success"`
	FilesDownloaded int              `json:"files_downloaded"`
	Errors          []string         `json:"errors"`
	Files           []inbox.Transfer `json:"files,omitempty"`
}

// Duration returns how long the run took.
func (r RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Options configures a Store.
type Options struct {
	// Retention caps the number of stored runs; older runs are pruned on write.
	Retention int
	Logger    *slog.Logger
}

// Store is the sync history database. It implements inbox.Recorder.
type Store struct {
	db        *sql.DB
	retention int
	logger    *slog.Logger
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", path, err)
	}

	// Single writer: the inbox engine runs at most one sync at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.DebugContext(ctx, "History store opened", logging.Path(path))

	return &Store{
		db:        db,
		retention: retention,
		logger:    logging.WithComponent(logger, "history"),
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS,
		goose.WithLogger(logging.NewGooseLogger(logger)))
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.InfoContext(ctx, "Applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// RecordRun stores a completed run and its transferred files, then prunes
// runs beyond the retention limit.
func (s *Store) RecordRun(ctx context.Context, run inbox.Run) error {
	errs := run.Result.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("history: encoding errors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, sqlInsertRun,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Outcome,
		run.Result.Success(),
		run.Result.FilesDownloaded,
		string(errJSON),
	)
	if err != nil {
		return fmt.Errorf("history: inserting run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history: reading run id: %w", err)
	}

	for _, f := range run.Result.Files {
		if _, err := tx.ExecContext(ctx, sqlInsertFile, runID, f.FileID, f.Name, f.Path); err != nil {
			return fmt.Errorf("history: inserting file %s: %w", f.Name, err)
		}
	}

	pruned, err := tx.ExecContext(ctx, sqlPrune, s.retention)
	if err != nil {
		return fmt.Errorf("history: pruning: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: committing: %w", err)
	}

	if n, _ := pruned.RowsAffected(); n > 0 {
		s.logger.DebugContext(ctx, "Pruned old sync runs", slog.Int64("count", n))
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first, with their files.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished int64
			errJSON           string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Outcome, &r.Success, &r.FilesDownloaded, &errJSON); err != nil {
			return nil, fmt.Errorf("history: scanning run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		if err := json.Unmarshal([]byte(errJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("history: decoding errors of run %d: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		files, err := s.filesForRun(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Files = files
	}

	return runs, nil
}

func (s *Store) filesForRun(ctx context.Context, runID int64) ([]inbox.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, sqlFilesForRun, runID)
	if err != nil {
		return nil, fmt.Errorf("history: querying files of run %d: %w", runID, err)
	}
	defer rows.Close()

	var files []inbox.Transfer
	for rows.Next() {
		var f inbox.Transfer
		if err := rows.Scan(&f.FileID, &f.Name, &f.Path); err != nil {
			return nil, fmt.Errorf("history: scanning file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
