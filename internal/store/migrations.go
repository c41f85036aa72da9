package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// schema contains the DDL for all gosched tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		state          TEXT NOT NULL,
		error          TEXT NOT NULL DEFAULT '',
		processes      INTEGER NOT NULL DEFAULT 0,
		ticks          INTEGER NOT NULL DEFAULT 0,
		avg_waiting    REAL NOT NULL DEFAULT 0,
		avg_turnaround REAL NOT NULL DEFAULT 0,
		workload       TEXT NOT NULL,
		result         TEXT,
		created_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "utilization",
		alterSQL: "ALTER TABLE runs ADD COLUMN utilization REAL NOT NULL DEFAULT 0",
	},
	{
		table:    "runs",
		column:   "context_switches",
		alterSQL: "ALTER TABLE runs ADD COLUMN context_switches INTEGER NOT NULL DEFAULT 0",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sqlx.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sqlx.DB, table, column string) (bool, error) {
	var n int
	err := db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM pragma_table_info('`+table+`') WHERE name = ? COLLATE NOCASE`, column)
	return n > 0, err
}
