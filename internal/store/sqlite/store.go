package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"focus_sched/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	idx INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	task_count INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(kind, idx)
);

CREATE TABLE IF NOT EXISTS dataset_tasks (
	dataset_id TEXT NOT NULL,
	task_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	base_duration_minutes INTEGER NOT NULL,
	priority INTEGER NOT NULL,
	deadline_at INTEGER NOT NULL,
	genre TEXT NOT NULL,
	dependencies TEXT NOT NULL,
	max_attempts INTEGER NOT NULL DEFAULT 0,
	effort_multiplier REAL NOT NULL DEFAULT 0,
	genre_affinity REAL NOT NULL DEFAULT 0,
	PRIMARY KEY(dataset_id, task_id),
	FOREIGN KEY(dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dataset_id TEXT NULL,
	scheduler TEXT NOT NULL,
	total_score INTEGER NOT NULL,
	completed_count INTEGER NOT NULL,
	incomplete_count INTEGER NOT NULL,
	overdue_count INTEGER NOT NULL,
	completion_rate REAL NOT NULL,
	deadline_compliance_rate REAL NOT NULL,
	total_work_minutes REAL NOT NULL,
	total_break_minutes REAL NOT NULL,
	efficiency REAL NOT NULL,
	completed TEXT NOT NULL,
	incomplete TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ends_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(dataset_id) REFERENCES datasets(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_scheduler ON runs(scheduler, created_at);

CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	day INTEGER NOT NULL,
	kind TEXT NOT NULL,
	at INTEGER NOT NULL,
	duration REAL NOT NULL,
	task_id INTEGER NULL,
	base_duration INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NULL,
	concentration REAL NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, seq);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CreateDataset stores tasks as one corpus entry. The tasks must form a
// valid backlog.
func (s *Store) CreateDataset(ctx context.Context, ds domain.Dataset, tasks []domain.Task) (domain.Dataset, error) {
	if _, err := domain.NewBacklog(tasks); err != nil {
		return domain.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	ds.TaskCount = len(tasks)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("begin tx create dataset: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO datasets(id, kind, idx, seed, task_count, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		ds.ID, string(ds.Kind), ds.Index, ds.Seed, ds.TaskCount, ds.CreatedAt.Unix(),
	); err != nil {
		return domain.Dataset{}, fmt.Errorf("insert dataset: %w", err)
	}
	for _, t := range tasks {
		deps, err := json.Marshal(nonNilInts(t.Dependencies))
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("encode dependencies: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO dataset_tasks(
				dataset_id, task_id, name, base_duration_minutes, priority, deadline_at, genre,
				dependencies, max_attempts, effort_multiplier, genre_affinity
			) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ds.ID, t.ID, t.Name, t.BaseDurationMinutes, int(t.Priority), t.Deadline.UnixMilli(), string(t.Genre),
			string(deps), t.MaxAttempts, t.Hidden.EffortMultiplier, t.Hidden.GenreAffinity,
		); err != nil {
			return domain.Dataset{}, fmt.Errorf("insert dataset task %d: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Dataset{}, fmt.Errorf("commit create dataset: %w", err)
	}
	return ds, nil
}

// ListDatasets returns datasets of kind, or all datasets when kind is
// empty, ordered by kind then index.
func (s *Store) ListDatasets(ctx context.Context, kind domain.DatasetKind) ([]domain.Dataset, error) {
	query := `SELECT id, kind, idx, seed, task_count, created_at FROM datasets`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind, idx`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Dataset, 0)
	for rows.Next() {
		var ds domain.Dataset
		var k string
		var created int64
		if err := rows.Scan(&ds.ID, &k, &ds.Index, &ds.Seed, &ds.TaskCount, &created); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		ds.Kind = domain.DatasetKind(k)
		ds.CreatedAt = unixToTime(created)
		result = append(result, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return result, nil
}

// LoadTasksByIndex resolves the index-th dataset of kind.
func (s *Store) LoadTasksByIndex(ctx context.Context, kind domain.DatasetKind, index int) ([]domain.Task, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM datasets WHERE kind = ? AND idx = ?`, string(kind), index).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s dataset %d", domain.ErrNotFound, kind, index)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup dataset: %w", err)
	}
	return s.LoadTasks(ctx, id)
}

func (s *Store) LoadTasks(ctx context.Context, datasetID string) ([]domain.Task, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT task_count FROM datasets WHERE id = ?`, datasetID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dataset %s", domain.ErrNotFound, datasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup dataset: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id, name, base_duration_minutes, priority, deadline_at, genre,
			dependencies, max_attempts, effort_multiplier, genre_affinity
		FROM dataset_tasks
		WHERE dataset_id = ?
		ORDER BY task_id`,
		datasetID,
	)
	if err != nil {
		return nil, fmt.Errorf("load dataset tasks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Task, 0, count)
	for rows.Next() {
		var t domain.Task
		var priority int
		var deadline int64
		var genre, deps string
		if err := rows.Scan(
			&t.ID, &t.Name, &t.BaseDurationMinutes, &priority, &deadline, &genre,
			&deps, &t.MaxAttempts, &t.Hidden.EffortMultiplier, &t.Hidden.GenreAffinity,
		); err != nil {
			return nil, fmt.Errorf("scan dataset task: %w", err)
		}
		t.Priority = domain.Priority(priority)
		t.Deadline = milliToTime(deadline)
		t.Genre = domain.Genre(genre)
		if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
			return nil, fmt.Errorf("%w: task %d dependencies: %v", domain.ErrCorrupt, t.ID, err)
		}
		if len(t.Dependencies) == 0 {
			t.Dependencies = nil
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset tasks: %w", err)
	}
	return result, nil
}

// SaveRun stores a result and its event log. datasetID may be empty for
// runs over freshly generated tasks.
func (s *Store) SaveRun(ctx context.Context, datasetID string, res domain.Result) error {
	if res.RunID == "" {
		return fmt.Errorf("%w: run id is required", domain.ErrInvalidArgument)
	}
	completed, err := json.Marshal(nonNilSummaries(res.Completed))
	if err != nil {
		return fmt.Errorf("encode completed tasks: %w", err)
	}
	incomplete, err := json.Marshal(nonNilSummaries(res.Incomplete))
	if err != nil {
		return fmt.Errorf("encode incomplete tasks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx save run: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO runs(
			id, dataset_id, scheduler, total_score, completed_count, incomplete_count, overdue_count,
			completion_rate, deadline_compliance_rate, total_work_minutes, total_break_minutes, efficiency,
			completed, incomplete, started_at, ends_at, created_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, nullableString(datasetID), res.Scheduler, res.TotalScore, res.CompletedCount,
		res.IncompleteCount, res.OverdueCount, res.CompletionRate, res.DeadlineComplianceRate,
		res.TotalWorkMinutes, res.TotalBreakMinutes, res.Efficiency, string(completed), string(incomplete),
		res.StartedAt.UnixMilli(), res.EndsAt.UnixMilli(), time.Now().UTC().Unix(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO run_events(run_id, seq, day, kind, at, duration, task_id, base_duration, completed, concentration)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare run event insert: %w", err)
	}
	defer stmt.Close()
	for i, ev := range res.Events {
		if _, err := stmt.ExecContext(
			ctx,
			res.RunID, i, ev.Day, string(ev.Kind), ev.At.UnixMilli(), ev.DurationMinutes,
			nullableInt(ev.TaskID), ev.BaseDurationMinutes, nullableBool(ev.Completed), ev.Concentration,
		); err != nil {
			return fmt.Errorf("insert run event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

const runColumns = `id, dataset_id, scheduler, total_score, completed_count, incomplete_count, overdue_count,
	completion_rate, deadline_compliance_rate, total_work_minutes, total_break_minutes, efficiency,
	completed, incomplete, started_at, ends_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.RunRecord, error) {
	var r domain.RunRecord
	var datasetID sql.NullString
	var completed, incomplete string
	var started, ends, created int64
	if err := row.Scan(
		&r.RunID, &datasetID, &r.Scheduler, &r.TotalScore, &r.CompletedCount, &r.IncompleteCount,
		&r.OverdueCount, &r.CompletionRate, &r.DeadlineComplianceRate, &r.TotalWorkMinutes,
		&r.TotalBreakMinutes, &r.Efficiency, &completed, &incomplete, &started, &ends, &created,
	); err != nil {
		return domain.RunRecord{}, err
	}
	r.DatasetID = datasetID.String
	if err := json.Unmarshal([]byte(completed), &r.Completed); err != nil {
		return domain.RunRecord{}, fmt.Errorf("%w: run %s completed list: %v", domain.ErrCorrupt, r.RunID, err)
	}
	if err := json.Unmarshal([]byte(incomplete), &r.Incomplete); err != nil {
		return domain.RunRecord{}, fmt.Errorf("%w: run %s incomplete list: %v", domain.ErrCorrupt, r.RunID, err)
	}
	r.StartedAt = milliToTime(started)
	r.EndsAt = milliToTime(ends)
	r.CreatedAt = unixToTime(created)
	return r, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the newest runs first. An empty scheduler matches all.
func (s *Store) ListRuns(ctx context.Context, scheduler string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if scheduler != "" {
		query += ` WHERE scheduler = ?`
		args = append(args, scheduler)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunRecord, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func (s *Store) ListRunEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT day, kind, at, duration, task_id, base_duration, completed, concentration
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Event, 0)
	for rows.Next() {
		var ev domain.Event
		var kind string
		var at int64
		var taskID sql.NullInt64
		var completed sql.NullBool
		if err := rows.Scan(
			&ev.Day, &kind, &at, &ev.DurationMinutes, &taskID, &ev.BaseDurationMinutes, &completed, &ev.Concentration,
		); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.At = milliToTime(at)
		if taskID.Valid {
			id := int(taskID.Int64)
			ev.TaskID = &id
		}
		if completed.Valid {
			done := completed.Bool
			ev.Completed = &done
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return result, nil
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func milliToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilSummaries(v []domain.TaskSummary) []domain.TaskSummary {
	if v == nil {
		return []domain.TaskSummary{}
	}
	return v
}
