// Package store handles SQLite persistence of analysis runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PLSysSec/callstats/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

const fileSeparator = "\n"

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL,
			files TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			pair_count INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_call_stats (
			run_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			calls INTEGER NOT NULL,
			total_us REAL NOT NULL,
			mean_us REAL NOT NULL,
			PRIMARY KEY (run_id, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_call_stats_name ON run_call_stats(name);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a completed run and its per-call stats.
func (s *Store) InsertRun(ctx context.Context, run model.RunStats, calls []model.CallStats) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (created_at, files, event_count, pair_count) VALUES (?, ?, ?, ?)`,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		strings.Join(run.Files, fileSeparator),
		run.EventCount,
		run.PairCount,
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(calls) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_call_stats (run_id, position, name, calls, total_us, mean_us)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, cs := range calls {
			if _, err := stmt.ExecContext(ctx, id, i, cs.Name, cs.Calls, cs.TotalMicros, cs.MeanMicros); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns returns stored runs oldest first, limited to the last cfg.Last when set.
// With cfg.Call set, only runs that recorded that call are returned.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Call != "" {
		clauses = append(clauses, "id IN (SELECT run_id FROM run_call_stats WHERE name = ?)")
		args = append(args, cfg.Call)
	}
	query := fmt.Sprintf(`SELECT id, created_at, files, event_count, pair_count
		FROM runs
		WHERE %s
		ORDER BY id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunAggregate
	for rows.Next() {
		var agg model.RunAggregate
		var createdAt, files string
		if err := rows.Scan(&agg.RunID, &createdAt, &files, &agg.EventCount, &agg.PairCount); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, err
		}
		agg.CreatedAt = parsed
		if files != "" {
			agg.Files = strings.Split(files, fileSeparator)
		}
		runs = append(runs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(runs) > cfg.Last {
		runs = runs[len(runs)-cfg.Last:]
	}
	return runs, nil
}

// ListCallStatsForRuns combines per-call stats across runs. The mean is
// weighted by pair count and rows follow first appearance across runs.
func (s *Store) ListCallStatsForRuns(ctx context.Context, runIDs []int64, call string) ([]model.CallStats, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(runIDs))
	args := make([]any, 0, len(runIDs)+1)
	for i, id := range runIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	nameClause := ""
	if call != "" {
		nameClause = " AND name = ?"
		args = append(args, call)
	}
	query := fmt.Sprintf(`SELECT g.name, g.calls, g.total_us FROM (
			SELECT name, SUM(calls) AS calls, SUM(total_us) AS total_us, MIN(run_id) AS first_run
			FROM run_call_stats
			WHERE run_id IN (%s)%s
			GROUP BY name
		) g
		JOIN run_call_stats f ON f.run_id = g.first_run AND f.name = g.name
		ORDER BY g.first_run ASC, f.position ASC`, strings.Join(placeholders, ","), nameClause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.CallStats
	for rows.Next() {
		var cs model.CallStats
		if err := rows.Scan(&cs.Name, &cs.Calls, &cs.TotalMicros); err != nil {
			return nil, err
		}
		if cs.Calls > 0 {
			cs.MeanMicros = cs.TotalMicros / float64(cs.Calls)
		}
		result = append(result, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
