package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/lorawiz/app/service/request"
	"github.com/umputun/lorawiz/app/web/enums"
)

// InMemoryDSN opens private in-memory database, valid with a single connection only
const InMemoryDSN = ":memory:"

// ErrNotFound is returned when run is not in the store
var ErrNotFound = errors.New("not found")

// RunInfo represents a submitted training run
type RunInfo struct {
	ID           string          `json:"id"`
	Archive      string          `json:"archive"`
	DestDir      string          `json:"dest_dir"`
	DatasetPath  string          `json:"dataset_path,omitempty"`
	ModelName    string          `json:"model"`
	LearningRate string          `json:"learning_rate"`
	BatchSize    string          `json:"batch_size"`
	Rank         string          `json:"rank"`
	DeleteAfter  bool            `json:"delete_after"`
	Status       enums.RunStatus `json:"status"`
	Summary      string          `json:"summary,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at,omitzero"`
	FinishedAt   time.Time       `json:"finished_at,omitzero"`
}

// Duration of the run, zero if not finished
func (r RunInfo) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// runRow is the db representation of RunInfo, times stored as unix milliseconds
type runRow struct {
	ID           string          `db:"id"`
	Archive      string          `db:"archive"`
	DestDir      string          `db:"dest_dir"`
	DatasetPath  string          `db:"dataset_path"`
	ModelName    string          `db:"model_name"`
	LearningRate string          `db:"learning_rate"`
	BatchSize    string          `db:"batch_size"`
	Rank         string          `db:"lora_rank"`
	DeleteAfter  bool            `db:"delete_after"`
	Status       enums.RunStatus `db:"status"`
	Summary      string          `db:"summary"`
	Error        string          `db:"error"`
	StartedAt    int64           `db:"started_at"`
	FinishedAt   int64           `db:"finished_at"`
}

func (r runRow) info() RunInfo {
	res := RunInfo{ID: r.ID, Archive: r.Archive, DestDir: r.DestDir, DatasetPath: r.DatasetPath,
		ModelName: r.ModelName, LearningRate: r.LearningRate, BatchSize: r.BatchSize, Rank: r.Rank,
		DeleteAfter: r.DeleteAfter, Status: r.Status, Summary: r.Summary, Error: r.Error}
	if r.StartedAt > 0 {
		res.StartedAt = time.UnixMilli(r.StartedAt)
	}
	if r.FinishedAt > 0 {
		res.FinishedAt = time.UnixMilli(r.FinishedAt)
	}
	return res
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// SQLiteStore implements run history using SQLite
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database and creates schema
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// in-memory database exists per connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err = s.initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			archive TEXT NOT NULL,
			dest_dir TEXT NOT NULL,
			dataset_path TEXT DEFAULT '',
			model_name TEXT DEFAULT '',
			learning_rate TEXT DEFAULT '',
			batch_size TEXT DEFAULT '',
			lora_rank TEXT DEFAULT '',
			delete_after BOOLEAN DEFAULT 0,
			status TEXT NOT NULL,
			summary TEXT DEFAULT '',
			error TEXT DEFAULT '',
			started_at INTEGER,
			finished_at INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// RecordRun inserts run or replaces the existing one with the same id
func (s *SQLiteStore) RecordRun(req request.RecordRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := runRow{ID: req.ID, Archive: req.Archive, DestDir: req.DestDir, DatasetPath: req.DatasetPath,
		ModelName: req.ModelName, LearningRate: req.LearningRate, BatchSize: req.BatchSize, Rank: req.Rank,
		DeleteAfter: req.DeleteAfter, Status: req.Status, Summary: req.Summary, Error: req.Error,
		StartedAt: unixMilli(req.StartedAt), FinishedAt: unixMilli(req.FinishedAt)}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(id, archive, dest_dir, dataset_path, model_name, learning_rate, batch_size, lora_rank,
			delete_after, status, summary, error, started_at, finished_at)
		VALUES (:id, :archive, :dest_dir, :dataset_path, :model_name, :learning_rate, :batch_size, :lora_rank,
			:delete_after, :status, :summary, :error, :started_at, :finished_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", req.ID, err)
	}
	return nil
}

// GetRun returns run by id
func (s *SQLiteStore) GetRun(id string) (RunInfo, error) {
	var row runRow
	if err := s.db.Get(&row, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunInfo{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return RunInfo{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.info(), nil
}

// ListRuns returns the most recent runs first, limit <= 0 returns all
func (s *SQLiteStore) ListRuns(limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = -1 // no limit in sqlite
	}
	var rows []runRow
	if err := s.db.Select(&rows, `SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	res := make([]RunInfo, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.info())
	}
	return res, nil
}

// DeleteFinishedBefore removes finished runs completed before ts, returns number of removed runs
func (s *SQLiteStore) DeleteFinishedBefore(ts time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM runs WHERE finished_at > 0 AND finished_at < ?`, ts.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Printf("[WARN] can't get number of deleted runs, %v", err)
		return 0, nil
	}
	return n, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
