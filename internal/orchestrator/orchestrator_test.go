package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/infra"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	sub  Submission
	err  error
	reqs []generation.Request
	hook func()
}

func (s *fakeSubmitter) Submit(_ context.Context, req generation.Request) (Submission, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.sub, s.err
}

type trackerCall struct {
	method   string
	token    string
	state    State
	attempts int
}

type fakeTracker struct {
	mu    sync.Mutex
	calls []trackerCall
}

func (t *fakeTracker) Track(_ context.Context, h *Handle) error {
	t.add(trackerCall{method: "Track", token: h.Token()})
	return nil
}

func (t *fakeTracker) Heartbeat(_ context.Context, token string, attempts int) error {
	t.add(trackerCall{method: "Heartbeat", token: token, attempts: attempts})
	return nil
}

func (t *fakeTracker) Finish(_ context.Context, token string, state State, _ string, attempts int) error {
	t.add(trackerCall{method: "Finish", token: token, state: state, attempts: attempts})
	return nil
}

func (t *fakeTracker) add(c trackerCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, c)
}

func (t *fakeTracker) last() trackerCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[len(t.calls)-1]
}

type harness struct {
	orch      *Orchestrator
	submitter *fakeSubmitter
	checker   *scriptedChecker
	recorder  *fakeRecorder
	tracker   *fakeTracker
	sched     *manualScheduler
	clock     *fakeClock
}

func newHarness() *harness {
	h := &harness{
		submitter: &fakeSubmitter{},
		checker:   &scriptedChecker{},
		recorder:  &fakeRecorder{},
		tracker:   &fakeTracker{},
		sched:     &manualScheduler{},
		clock:     newFakeClock(),
	}
	n := 0
	h.orch = New(Deps{
		Builder:   generation.NewBuilder("imagen-4.0-generate-001", "veo-3.0-generate-001"),
		Submitter: h.submitter,
		Checker:   h.checker,
		Recorder:  h.recorder,
		Tracker:   h.tracker,
		Logger:    infra.NopLogger(),
	},
		WithOrchestratorClock(h.clock),
		WithDriverOptions(WithScheduler(h.sched), WithPolicy(fixedPolicy())),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("gen-%d", n) }),
	)
	return h
}

func videoForm() generation.FormState {
	return generation.FormState{Type: domain.MediaTypeVideo, Prompt: "a lighthouse at dusk"}
}

func TestGenerateImageCompletesSynchronously(t *testing.T) {
	h := newHarness()
	art := domain.Artifact{StorageRef: "image/1.png", Format: "png", Width: 1024, Height: 1024}
	h.submitter.sub = Submission{Artifacts: []domain.Artifact{art}}

	view, err := h.orch.Generate(context.Background(), generation.FormState{Type: domain.MediaTypeImage, Prompt: "a red apple"})
	require.NoError(t, err)
	require.Equal(t, StateDoneSuccess, view.State)
	require.False(t, view.InProgress)
	require.Equal(t, []domain.Artifact{art}, view.Artifacts)
	require.Equal(t, "gen-1", view.JobToken)

	require.Equal(t, 1, h.recorder.count())
	require.Equal(t, "gen-1", h.recorder.entries[0].JobToken)
	require.Zero(t, h.checker.callCount())
	require.Empty(t, h.tracker.calls)
}

func TestGenerateVideoPollsUntilDone(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/v1"}
	art := domain.Artifact{StorageRef: "video/v1.mp4", Format: "mp4"}
	h.checker.script = []statusResult{notDone(), notDone(), notDone(), doneWith(art)}

	view, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	require.Equal(t, StatePolling, view.State)
	require.True(t, view.InProgress)
	require.Equal(t, "operations/v1", view.JobToken)
	require.Equal(t, MaxAttempts, view.MaxAttempts)

	h.clock.Advance(40 * time.Second)
	h.sched.drain(100)

	view = h.orch.View()
	require.Equal(t, 4, h.checker.callCount())
	require.Equal(t, StateDoneSuccess, view.State)
	require.False(t, view.InProgress)
	require.Equal(t, 4, view.Attempts)
	require.Equal(t, []domain.Artifact{art}, view.Artifacts)
	require.EqualValues(t, 40000, view.ElapsedMs)

	require.Equal(t, 1, h.recorder.count())
	require.Equal(t, 40*time.Second, h.recorder.entries[0].Elapsed)

	require.Equal(t, "Track", h.tracker.calls[0].method)
	require.Equal(t, trackerCall{method: "Finish", token: "operations/v1", state: StateDoneSuccess, attempts: 4}, h.tracker.last())

	v, err := h.orch.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDoneSuccess, v.State)
}

func TestGenerateVideoTimesOut(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/slow"}
	h.checker.script = []statusResult{notDone()}

	_, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	h.sched.drain(1000)

	view := h.orch.View()
	require.Equal(t, MaxAttempts, h.checker.callCount())
	require.Equal(t, StateDoneTimeout, view.State)
	require.Contains(t, view.Error, "30 attempts")
	require.Zero(t, h.recorder.count())
	require.Equal(t, StateDoneTimeout, h.tracker.last().state)
}

func TestGenerateSubmissionFailure(t *testing.T) {
	h := newHarness()
	h.submitter.err = errors.New("Error: model veo-3.0-generate-001 not found")

	view, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	require.Equal(t, StateDoneError, view.State)
	require.Contains(t, view.Error, "Request access to Veo 3")
	require.Empty(t, h.sched.pending())
	require.Zero(t, h.recorder.count())
}

func TestGenerateRejectsInvalidForm(t *testing.T) {
	h := newHarness()
	_, err := h.orch.Generate(context.Background(), generation.FormState{Type: domain.MediaTypeVideo})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	require.Empty(t, h.submitter.reqs)
}

func TestCancelStopsPolling(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/c1"}
	h.checker.script = []statusResult{notDone()}

	_, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	h.sched.fireNext()

	require.True(t, h.orch.Cancel(context.Background()))
	require.False(t, h.orch.Cancel(context.Background()))
	h.sched.drain(10)

	view := h.orch.View()
	require.Equal(t, StateCancelled, view.State)
	require.False(t, view.InProgress)
	require.Equal(t, 1, h.checker.callCount())
	require.Equal(t, trackerCall{method: "Finish", token: "operations/c1", state: StateCancelled, attempts: 1}, h.tracker.last())
	require.Zero(t, h.recorder.count())
}

func TestNewGenerationReplacesPollingOne(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/first"}
	h.checker.script = []statusResult{notDone()}
	_, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)

	h.submitter.sub = Submission{JobToken: "operations/second"}
	h.checker.script = []statusResult{doneWith(domain.Artifact{StorageRef: "video/second.mp4"})}
	_, err = h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	h.sched.drain(10)

	require.Equal(t, []string{"operations/second"}, h.checker.calls)
	view := h.orch.View()
	require.Equal(t, "gen-2", view.GenerationID)
	require.Equal(t, StateDoneSuccess, view.State)
	require.Equal(t, 1, h.recorder.count())
	require.Equal(t, "operations/second", h.recorder.entries[0].JobToken)
}

func TestCancelDuringSubmissionDiscardsResult(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/late"}
	h.submitter.hook = func() { h.orch.Cancel(context.Background()) }

	view, err := h.orch.Generate(context.Background(), videoForm())
	require.ErrorIs(t, err, ErrSuperseded)
	require.Equal(t, StateCancelled, view.State)
	require.Empty(t, h.sched.pending())
	require.Empty(t, h.tracker.calls)
}

func TestResumePollsExistingOperation(t *testing.T) {
	h := newHarness()
	h.checker.script = []statusResult{notDone(), doneWith(domain.Artifact{StorageRef: "video/r.mp4"})}
	req := videoRequest()

	view, err := h.orch.Resume(context.Background(), "operations/resumed", req, h.clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	require.Equal(t, StatePolling, view.State)
	require.Equal(t, "operations/resumed", view.JobToken)

	h.sched.drain(10)
	view, err = h.orch.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateDoneSuccess, view.State)
	require.Equal(t, 1, h.recorder.count())
	require.Equal(t, 5*time.Minute, h.recorder.entries[0].Elapsed)
	require.Equal(t, trackerCall{method: "Heartbeat", token: "operations/resumed", attempts: 1}, h.tracker.calls[0])

	_, err = h.orch.Resume(context.Background(), "", req, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestHaltLeavesOperationTracked(t *testing.T) {
	h := newHarness()
	h.submitter.sub = Submission{JobToken: "operations/halted"}
	h.checker.script = []statusResult{notDone()}

	_, err := h.orch.Generate(context.Background(), videoForm())
	require.NoError(t, err)
	h.sched.fireNext()

	h.orch.Halt()
	h.sched.drain(10)

	view, err := h.orch.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatePolling, view.State)
	require.False(t, h.orch.Progress().Active)
	require.Equal(t, 1, h.checker.callCount())
	require.NotEqual(t, "Finish", h.tracker.last().method)
}
