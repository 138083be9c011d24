package dashboard

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run states.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// RunStatus tracks one background monitoring run.
type RunStatus struct {
	ID         string     `json:"id"`
	Brand      string     `json:"brand"`
	State      string     `json:"state"`
	Stage      string     `json:"stage,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRegistry holds the status of runs started through the API. Finished
// runs beyond the retention limit are evicted oldest first.
type RunRegistry struct {
	mu     sync.Mutex
	runs   map[string]*RunStatus
	retain int
	now    func() time.Time
}

// NewRegistry keeps at most retain finished runs (0 = 100).
func NewRegistry(retain int) *RunRegistry {
	if retain <= 0 {
		retain = 100
	}
	return &RunRegistry{
		runs:   make(map[string]*RunStatus),
		retain: retain,
		now:    time.Now,
	}
}

// Start registers a new running entry and returns a copy of it.
func (r *RunRegistry) Start(brand string) RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &RunStatus{
		ID:        uuid.NewString(),
		Brand:     brand,
		State:     StateRunning,
		StartedAt: r.now().UTC(),
	}
	r.runs[st.ID] = st
	return *st
}

// SetStage records the stage a running entry has reached.
func (r *RunRegistry) SetStage(id, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.runs[id]; ok {
		st.Stage = stage
	}
}

// Finish marks id done, or failed when err is non-nil.
func (r *RunRegistry) Finish(id, runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[id]
	if !ok {
		return
	}
	now := r.now().UTC()
	st.FinishedAt = &now
	st.RunID = runID
	st.Stage = ""
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
	} else {
		st.State = StateDone
	}
	r.evict()
}

// Get returns a copy of the entry for id.
func (r *RunRegistry) Get(id string) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// List returns every entry, newest first.
func (r *RunRegistry) List() []RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunStatus, 0, len(r.runs))
	for _, st := range r.runs {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// evict drops the oldest finished entries over the limit. Caller holds mu.
func (r *RunRegistry) evict() {
	var finished []*RunStatus
	for _, st := range r.runs {
		if st.FinishedAt != nil {
			finished = append(finished, st)
		}
	}
	if len(finished) <= r.retain {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, st := range finished[:len(finished)-r.retain] {
		delete(r.runs, st.ID)
	}
}
