// Package runs tracks screening run bookkeeping: which input files a
// run covered, where the annotated outputs went and how the run ended.
package runs

import (
	"context"
	"time"

	"github.com/dvloznov/offshore-radar/internal/export"
	"github.com/dvloznov/offshore-radar/internal/ingest"
)

// Status is the lifecycle state of a screening run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// FileOutcome is the per-direction outcome of one run.
type FileOutcome struct {
	// InputPath is the source file, local path or gs:// URI.
	InputPath string `json:"input_path"`

	// OutputPath is where the annotated workbook was written. Empty
	// when this direction failed before export.
	OutputPath string `json:"output_path,omitempty"`

	// Report describes how well the source matched the expected format.
	Report ingest.Report `json:"report"`

	// Summary is the verdict histogram for this file.
	Summary export.Summary `json:"summary"`

	// Note carries a non-fatal observation, e.g. that no rows survived
	// threshold filtering.
	Note string `json:"note,omitempty"`

	// Error is set when this direction's processing failed.
	Error string `json:"error,omitempty"`
}

// ScreeningRun records one invocation of the pipeline over up to two
// input files.
type ScreeningRun struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Incoming *FileOutcome `json:"incoming,omitempty"`
	Outgoing *FileOutcome `json:"outgoing,omitempty"`

	// Error is set when the run as a whole failed.
	Error string `json:"error,omitempty"`
}

// Store persists screening runs. The in-memory implementation is the
// only one today; results themselves are never persisted here, only the
// bookkeeping around them.
type Store interface {
	// SaveRun saves or replaces a run.
	SaveRun(ctx context.Context, run *ScreeningRun) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID string) (*ScreeningRun, error)

	// ListRuns retrieves runs matching the filter, newest first.
	ListRuns(ctx context.Context, filter Filter) ([]*ScreeningRun, error)

	// UpdateStatus transitions a run and optionally records an error.
	UpdateStatus(ctx context.Context, runID string, status Status, errorMsg string) error
}

// Filter selects runs for listing.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}
