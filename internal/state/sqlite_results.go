package state

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/pawseed/pkg/core"
)

// SaveBandResults stores the band analyses of one target in a single
// transaction, one row per (band, spin). Results that are not spin
// resolved are stored with spin -1.
func (s *SQLiteStore) SaveBandResults(runID, targetDir string, spinResolved bool, results []core.BandAnalysis) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO band_results (run_id, target_dir, band, spin, valence, conduction, energy)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for _, r := range results {
		var energy sql.NullFloat64
		if r.Energy != nil {
			energy = sql.NullFloat64{Float64: *r.Energy, Valid: true}
		}
		if len(r.Proportion.Valence) != len(r.Proportion.Conduction) {
			return fmt.Errorf("band %d has %d valence and %d conduction values", r.Band, len(r.Proportion.Valence), len(r.Proportion.Conduction))
		}
		for i := range r.Proportion.Valence {
			spin := -1
			if spinResolved {
				spin = i
			}
			if _, err := stmt.Exec(runID, targetDir, r.Band, spin, r.Proportion.Valence[i], r.Proportion.Conduction[i], energy); err != nil {
				return fmt.Errorf("failed to save band %d of %s: %w", r.Band, targetDir, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit band results: %w", err)
	}
	s.logger.Debug("saved band results", slog.String("run_id", runID), slog.String("target_dir", targetDir), slog.Int("rows", rows))
	return nil
}

// GetBandResults returns every stored row of a run ordered by target,
// band and spin.
func (s *SQLiteStore) GetBandResults(runID string) ([]*core.BandRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT run_id, target_dir, band, spin, valence, conduction, energy
		FROM band_results WHERE run_id = ? ORDER BY target_dir, band, spin`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get band results: %w", err)
	}
	defer rows.Close()

	var out []*core.BandRecord
	for rows.Next() {
		var (
			rec    core.BandRecord
			energy sql.NullFloat64
		)
		if err := rows.Scan(&rec.RunID, &rec.TargetDir, &rec.Band, &rec.Spin, &rec.Valence, &rec.Conduction, &energy); err != nil {
			return nil, fmt.Errorf("failed to scan band result: %w", err)
		}
		if energy.Valid {
			e := energy.Float64
			rec.Energy = &e
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
