package orchestrator

import (
	"sync"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
)

// ViewState is what a client renders for the current generation.
type ViewState struct {
	GenerationID string            `json:"generationId,omitempty"`
	State        State             `json:"state,omitempty"`
	JobToken     string            `json:"jobToken,omitempty"`
	Type         domain.MediaType  `json:"type,omitempty"`
	Model        string            `json:"model,omitempty"`
	ModelLabel   string            `json:"modelLabel,omitempty"`
	InProgress   bool              `json:"inProgress"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	ElapsedMs    int64             `json:"elapsedMs"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"maxAttempts,omitempty"`
	Artifacts    []domain.Artifact `json:"artifacts,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// View holds the display state of the generation an orchestrator currently
// owns. It implements Presenter.
type View struct {
	clock Clock

	mu      sync.Mutex
	state   ViewState
	started time.Time
	elapsed time.Duration
}

func NewView(clock Clock) *View {
	if clock == nil {
		clock = SystemClock
	}
	return &View{clock: clock}
}

func (v *View) begin(id string, req generation.Request, now time.Time, maxAttempts int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	startedAt := now.Round(0).UTC()
	v.state = ViewState{
		GenerationID: id,
		State:        StatePending,
		Type:         req.Type,
		Model:        req.Model,
		ModelLabel:   req.ModelLabel,
		InProgress:   true,
		StartedAt:    &startedAt,
	}
	if req.Type == domain.MediaTypeVideo {
		v.state.MaxAttempts = maxAttempts
	}
	v.started = now
	v.elapsed = 0
}

func (v *View) setState(id string, s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID != id {
		return
	}
	v.state.State = s
	if s.Terminal() {
		v.freezeLocked()
	}
}

func (v *View) setJob(id, token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID == id {
		v.state.JobToken = token
	}
}

func (v *View) setAttempts(id string, attempts int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID == id {
		v.state.Attempts = attempts
	}
}

func (v *View) SetInProgress(id string, inProgress bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID != id {
		return
	}
	v.state.InProgress = inProgress
	if !inProgress {
		v.freezeLocked()
	}
}

func (v *View) ShowArtifacts(id string, artifacts []domain.Artifact) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID != id {
		return
	}
	v.state.Artifacts = cloneArtifacts(artifacts)
	v.state.Error = ""
}

func (v *View) ShowError(id string, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.GenerationID != id {
		return
	}
	v.state.Error = message
}

// Snapshot returns a copy of the current display state.
func (v *View) Snapshot() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.state
	out.Artifacts = cloneArtifacts(v.state.Artifacts)
	if out.StartedAt != nil {
		t := *out.StartedAt
		out.StartedAt = &t
	}
	elapsed := v.elapsed
	if out.InProgress && !v.started.IsZero() {
		elapsed = v.clock.Now().Sub(v.started)
	}
	if elapsed > 0 {
		out.ElapsedMs = elapsed.Milliseconds()
	}
	return out
}

func (v *View) freezeLocked() {
	if v.elapsed == 0 && !v.started.IsZero() {
		v.elapsed = v.clock.Now().Sub(v.started)
	}
}

func cloneArtifacts(in []domain.Artifact) []domain.Artifact {
	if in == nil {
		return nil
	}
	out := make([]domain.Artifact, len(in))
	for i, a := range in {
		a.Data = nil
		out[i] = a
	}
	return out
}
