package pipeline

import (
	"sync"
	"time"
)

// Run states reported by Progress.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	State        string    `json:"state"`
	Target       string    `json:"target"`
	BatchesTotal int       `json:"batches_total"`
	BatchesDone  int       `json:"batches_done"`
	RowsWritten  int       `json:"rows_written"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	Error        string    `json:"error,omitempty"`
}

type tracker struct {
	mu sync.Mutex
	p  Progress
}

func (t *tracker) start(target string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p = Progress{State: StateRunning, Target: target, StartedAt: at}
}

func (t *tracker) planned(n int) {
	t.mu.Lock()
	t.p.BatchesTotal = n
	t.mu.Unlock()
}

func (t *tracker) batchDone(rows int) {
	t.mu.Lock()
	t.p.BatchesDone++
	t.p.RowsWritten += rows
	t.mu.Unlock()
}

func (t *tracker) finish(err error, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.FinishedAt = at
	if err != nil {
		t.p.State = StateFailed
		t.p.Error = err.Error()
		return
	}
	t.p.State = StateSucceeded
}

func (t *tracker) snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.p
	if p.State == "" {
		p.State = StateIdle
	}
	return p
}
