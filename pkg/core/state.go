package core

import "time"

// Store defines the interface for persisted analysis results.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(basisDir string, mode ProjectionMode) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string, errorCount int) error
	ListRuns(limit int) ([]*Run, error)

	// Band result operations. Unresolved results are stored with spin -1.
	SaveBandResults(runID, targetDir string, spinResolved bool, results []BandAnalysis) error
	GetBandResults(runID string) ([]*BandRecord, error)
}

// RunStatus represents the status of an analysis run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one batch analysis against a basis calculation.
type Run struct {
	ID          string         `json:"id"`
	BasisDir    string         `json:"basis_dir"`
	Mode        ProjectionMode `json:"mode"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCount  int            `json:"error_count"`
}

// BandRecord is one stored (target, band, spin) row of a run.
// Spin is -1 for results that were not spin resolved.
type BandRecord struct {
	RunID      string   `json:"run_id"`
	TargetDir  string   `json:"target_dir"`
	Band       int      `json:"band"`
	Spin       int      `json:"spin"`
	Valence    float64  `json:"valence"`
	Conduction float64  `json:"conduction"`
	Energy     *float64 `json:"energy,omitempty"`
}
