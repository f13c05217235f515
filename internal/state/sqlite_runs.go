package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

const runColumns = `id, basis_dir, mode, status, started_at, completed_at, error, error_count`

// CreateRun records the start of an analysis against basisDir.
func (s *SQLiteStore) CreateRun(basisDir string, mode core.ProjectionMode) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.Run{
		ID:        generateID(),
		BasisDir:  basisDir,
		Mode:      mode,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("basis_dir", basisDir))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, basis_dir, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.BasisDir, run.Mode.String(), string(run.Status), toMillis(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string, errorCount int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errValue sql.NullString
	if errMsg != "" {
		errValue = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ?, error_count = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), errValue, errorCount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	var (
		run         core.Run
		mode        string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.BasisDir, &mode, &status, &startedAt, &completedAt, &errMsg, &run.ErrorCount); err != nil {
		return nil, err
	}
	m, err := core.ParseProjectionMode(mode)
	if err != nil {
		return nil, err
	}
	run.Mode = m
	run.Status = core.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}
