package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/me/gosched/pkg/model"

	_ "modernc.org/sqlite"
)

// NewRunID returns a fresh archive id.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// CreateRun archives run. An empty ID is filled with NewRunID and a zero
// CreatedAt with the current time.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	workloadJSON, err := json.Marshal(run.Workload)
	if err != nil {
		return fmt.Errorf("marshal workload: %w", err)
	}

	var (
		resultJSON             *string
		ticks, switches        int
		avgWait, avgTurn, util float64
	)
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		str := string(data)
		resultJSON = &str
		ticks = run.Result.Ticks
		switches = run.Result.Stats.ContextSwitches
		avgWait = run.Result.Stats.AverageWaiting
		avgTurn = run.Result.Stats.AverageTurnaround
		util = run.Result.Stats.Utilization
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, state, error, processes, ticks, avg_waiting, avg_turnaround, utilization, context_switches, workload, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, string(run.State), run.Error, len(run.Workload.Processes),
		ticks, avgWait, avgTurn, util, switches,
		string(workloadJSON), resultJSON, run.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// runRow is the column set GetRun reads.
type runRow struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	State     string  `db:"state"`
	Error     string  `db:"error"`
	Workload  string  `db:"workload"`
	Result    *string `db:"result"`
	CreatedAt string  `db:"created_at"`
}

// summaryRow is the column set ListRuns reads.
type summaryRow struct {
	ID                string  `db:"id"`
	Name              string  `db:"name"`
	State             string  `db:"state"`
	Processes         int     `db:"processes"`
	Ticks             int     `db:"ticks"`
	AverageWaiting    float64 `db:"avg_waiting"`
	AverageTurnaround float64 `db:"avg_turnaround"`
	CreatedAt         string  `db:"created_at"`
}

// GetRun returns the archived run, or nil if id is unknown.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var row runRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, state, error, workload, result, created_at FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:    row.ID,
		Name:  row.Name,
		State: model.RunState(row.State),
		Error: row.Error,
	}
	if err := json.Unmarshal([]byte(row.Workload), &run.Workload); err != nil {
		return nil, fmt.Errorf("unmarshal workload: %w", err)
	}
	if row.Result != nil {
		run.Result = &model.Result{}
		if err := json.Unmarshal([]byte(*row.Result), run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return run, nil
}

// ListRuns returns run summaries, newest first, and the total number of
// runs matching the filters.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]model.RunSummary, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)

	var whereClauses []string
	var args []any
	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		args = append(args, opts.State)
	}
	if opts.Name != "" {
		whereClauses = append(whereClauses, "name = ?")
		args = append(args, opts.Name)
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM runs`+whereSQL, args...); err != nil {
		return nil, 0, err
	}

	var rows []summaryRow
	listQuery := `SELECT id, name, state, processes, ticks, avg_waiting, avg_turnaround, created_at
		FROM runs` + whereSQL + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, listQuery, append(args, opts.Limit, opts.Offset)...); err != nil {
		return nil, 0, err
	}

	runs := make([]model.RunSummary, 0, len(rows))
	for _, r := range rows {
		createdAt, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
		runs = append(runs, model.RunSummary{
			ID:                r.ID,
			Name:              r.Name,
			State:             model.RunState(r.State),
			Processes:         r.Processes,
			Ticks:             r.Ticks,
			AverageWaiting:    r.AverageWaiting,
			AverageTurnaround: r.AverageTurnaround,
			CreatedAt:         createdAt,
		})
	}
	return runs, total, nil
}

// DeleteRun removes a run. Unknown ids return an error wrapping ErrNotFound.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}
