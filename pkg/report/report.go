// Package report records the outcome of one crawl run and writes it as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"xqcrawler/pkg/storage"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Failure is one item the run could not fetch or store.
type Failure struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Counts is the number of records stored per entity kind.
type Counts struct {
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Creators int `json:"creators"`
}

// Report is the persisted summary of a run.
type Report struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Counts     Counts    `json:"counts"`
	Failures   []Failure `json:"failures"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder accumulates a Report. It is safe for concurrent use by the
// comment workers.
type Recorder struct {
	mu     sync.Mutex
	report Report
	now    func() time.Time
}

// NewRecorder starts a report with a fresh run id.
func NewRecorder(mode string) *Recorder {
	return newRecorder(uuid.NewString(), mode, time.Now)
}

func newRecorder(runID, mode string, now func() time.Time) *Recorder {
	return &Recorder{
		report: Report{
			RunID:     runID,
			Mode:      mode,
			Status:    StatusRunning,
			StartedAt: now(),
			Failures:  []Failure{},
		},
		now: now,
	}
}

// RunID returns the run's id.
func (r *Recorder) RunID() string {
	return r.report.RunID
}

// Stored counts one stored record of the given storage kind.
func (r *Recorder) Stored(kind storage.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case storage.KindPost:
		r.report.Counts.Posts++
	case storage.KindComment:
		r.report.Counts.Comments++
	case storage.KindCreator:
		r.report.Counts.Creators++
	}
}

// Fail records a per-item failure.
func (r *Recorder) Fail(kind storage.Kind, id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Failures = append(r.report.Failures, Failure{Kind: string(kind), ID: id, Error: err.Error()})
}

// Finish stamps the end time and final status. A non-nil err is kept as
// the run-level error message.
func (r *Recorder) Finish(status string, err error) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Status = status
	r.report.FinishedAt = r.now()
	if err != nil {
		r.report.Error = err.Error()
	}
	return r.snapshot()
}

// Snapshot returns a copy of the report so far.
func (r *Recorder) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot()
}

func (r *Recorder) snapshot() Report {
	out := r.report
	out.Failures = append([]Failure(nil), r.report.Failures...)
	return out
}

// Save writes the report to <dir>/<run_id>.json and returns the path.
func Save(dir string, rep Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, rep.RunID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rep, nil
}
