package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/history"
)

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler records timers instead of running them; tests fire them
// explicitly, in due order, on the test goroutine.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
	delays []time.Duration
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

func (s *manualScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

// fireNext runs the earliest pending timer and reports whether one existed.
func (s *manualScheduler) fireNext() bool {
	p := s.pending()
	if len(p) == 0 {
		return false
	}
	t := p[0]
	s.mu.Lock()
	t.fired = true
	s.now = t.at
	s.mu.Unlock()
	t.f()
	return true
}

// drain fires timers until none are pending, up to limit.
func (s *manualScheduler) drain(limit int) int {
	n := 0
	for n < limit && s.fireNext() {
		n++
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type statusResult struct {
	status Status
	err    error
}

// scriptedChecker answers status checks from a script; the last entry
// repeats once the script is exhausted.
type scriptedChecker struct {
	mu     sync.Mutex
	script []statusResult
	calls  []string
	hook   func(call int)
}

func (c *scriptedChecker) CheckStatus(_ context.Context, token string, _ generation.Request) (Status, error) {
	c.mu.Lock()
	c.calls = append(c.calls, token)
	n := len(c.calls)
	var r statusResult
	if len(c.script) > 0 {
		idx := n - 1
		if idx >= len(c.script) {
			idx = len(c.script) - 1
		}
		r = c.script[idx]
	}
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return r.status, r.err
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func notDone() statusResult { return statusResult{status: Status{Done: false}} }

func doneWith(arts ...domain.Artifact) statusResult {
	return statusResult{status: Status{Done: true, Artifacts: arts}}
}

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *outcomeSink) receive(_ context.Context, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
}

func (s *outcomeSink) all() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

type presenterCall struct {
	method string
	id     string
	arg    any
}

type recordingPresenter struct {
	mu    sync.Mutex
	calls []presenterCall
}

func (p *recordingPresenter) SetInProgress(id string, inProgress bool) {
	p.add(presenterCall{"SetInProgress", id, inProgress})
}

func (p *recordingPresenter) ShowArtifacts(id string, artifacts []domain.Artifact) {
	p.add(presenterCall{"ShowArtifacts", id, artifacts})
}

func (p *recordingPresenter) ShowError(id string, message string) {
	p.add(presenterCall{"ShowError", id, message})
}

func (p *recordingPresenter) add(c presenterCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *recordingPresenter) methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.method
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, entry history.Entry) (*history.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if r.err != nil {
		return nil, r.err
	}
	return &history.Record{ID: "rec", JobToken: entry.JobToken}, nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func fixedPolicy() Policy {
	p := DefaultPolicy()
	p.Uniform = func() float64 { return 0.5 }
	return p
}

func videoRequest() generation.Request {
	return generation.Request{
		Type:       domain.MediaTypeVideo,
		Model:      "veo-3.0-generate-001",
		ModelLabel: "Veo 3",
		Prompt:     "a lighthouse at dusk",
		UserPrompt: "a lighthouse at dusk",
		Parameters: map[string]any{"aspectRatio": "16:9"},
	}
}
