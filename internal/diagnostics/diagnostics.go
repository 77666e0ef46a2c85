// Package diagnostics is the artifact sink for a run: labeled
// screenshots, structured failure records and the end-of-run report.
// Everything here is fire-and-forget; a failed write never aborts the
// run.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkuran/shopbot/internal/models"
)

// Screenshotter is the slice of the page surface the recorder needs.
type Screenshotter interface {
	Screenshot(path string) error
	URL() string
}

// Recorder owns the run's output directory and tags every artifact
// with the run ID and the current account index. The account index is
// mutated only by the session orchestrator at account transitions.
type Recorder struct {
	runID  string
	dir    string
	logger *slog.Logger

	mu           sync.Mutex
	accountIndex int
	seq          int
	shooter      Screenshotter
	store        *Store
	events       *EventStream
}

// NewRecorder creates the per-run output directory under outputRoot.
func NewRecorder(outputRoot string) (*Recorder, error) {
	runID := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	dir := filepath.Join(outputRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Recorder{
		runID:  runID,
		dir:    dir,
		logger: slog.Default().With("component", "diagnostics", "run_id", runID),
	}, nil
}

func (r *Recorder) RunID() string { return r.runID }

func (r *Recorder) Dir() string { return r.dir }

// SetPage points screenshot capture at the current page. Replaced when
// the browser is relaunched mid-run.
func (r *Recorder) SetPage(s Screenshotter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shooter = s
}

// SetAccountContext records which account subsequent artifacts belong to.
func (r *Recorder) SetAccountContext(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountIndex = index
}

// AttachStore mirrors failure records and results to Postgres.
func (r *Recorder) AttachStore(s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// AttachEvents mirrors run events to a Redis stream.
func (r *Recorder) AttachEvents(e *EventStream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = e
}

// Screenshot captures the current page under a semantic label.
func (r *Recorder) Screenshot(label string) {
	r.mu.Lock()
	shooter := r.shooter
	r.seq++
	name := fmt.Sprintf("%03d_acct%d_%s.png", r.seq, r.accountIndex, label)
	r.mu.Unlock()

	if shooter == nil {
		return
	}
	path := filepath.Join(r.dir, name)
	if err := shooter.Screenshot(path); err != nil {
		r.logger.Warn("screenshot failed", "label", label, "error", err)
		return
	}
	r.logger.Debug("screenshot captured", "label", label, "path", path)
}

// Failure appends a structured failure record and mirrors it to the
// optional store.
func (r *Recorder) Failure(step string, failure error) {
	r.mu.Lock()
	index := r.accountIndex
	shooter := r.shooter
	store := r.store
	events := r.events
	r.mu.Unlock()

	url := ""
	if shooter != nil {
		url = shooter.URL()
	}
	record := models.FailureRecord{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		AccountIndex: index,
		Step:         step,
		URL:          url,
		Error:        failure.Error(),
	}

	r.appendJSONL("failures.jsonl", record)
	if store != nil {
		store.SaveFailure(record)
	}
	if events != nil {
		events.Publish("failure", map[string]any{
			"account_index": index,
			"step":          step,
			"error":         failure.Error(),
		})
	}
}

// Event forwards a run lifecycle event to the optional stream.
func (r *Recorder) Event(kind string, fields map[string]any) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	if events != nil {
		events.Publish(kind, fields)
	}
}

// WriteReport persists the accumulated per-account results. Called once
// at the end of a run, and best-effort again on interrupt with whatever
// was collected so far.
func (r *Recorder) WriteReport(results []models.AccountResult) {
	report := struct {
		RunID     string                 `json:"run_id"`
		Timestamp time.Time              `json:"timestamp"`
		Results   []models.AccountResult `json:"results"`
	}{RunID: r.runID, Timestamp: time.Now(), Results: results}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		r.logger.Warn("failed to marshal report", "error", err)
		return
	}
	path := filepath.Join(r.dir, "results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("failed to write report", "path", path, "error", err)
	}

	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store != nil {
		store.SaveResults(r.runID, results)
	}
}

func (r *Recorder) appendJSONL(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("failed to marshal record", "error", err)
		return
	}
	path := filepath.Join(r.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn("failed to open record file", "path", path, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		r.logger.Warn("failed to append record", "path", path, "error", err)
	}
}
