package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/infra"
)

const defaultSubmitTimeout = 2 * time.Minute

// ErrSuperseded is returned by Generate when the generation was cancelled, or
// replaced by a newer one, while its submission was in flight.
var ErrSuperseded = errors.New("orchestrator: generation superseded")

// OperationTracker persists in-flight long-running jobs so another process
// can resume them. All methods are best effort from the orchestrator's point
// of view: failures are logged.
type OperationTracker interface {
	Track(ctx context.Context, h *Handle) error
	Heartbeat(ctx context.Context, token string, attempts int) error
	Finish(ctx context.Context, token string, state State, message string, attempts int) error
}

// Orchestrator owns at most one generation at a time: it submits it, polls it
// through its Driver and reconciles the result.
type Orchestrator struct {
	builder    *generation.Builder
	submitter  Submitter
	tracker    OperationTracker
	driver     *Driver
	reconciler *Reconciler
	view       *View
	clock      Clock
	policy     Policy
	logger     infra.Logger
	newID      func() string

	submitTimeout time.Duration

	mu      sync.Mutex
	current *operation
}

type operation struct {
	id     string
	state  State
	req    generation.Request
	handle *Handle
	done   chan struct{}
	once   sync.Once
}

func (op *operation) settle() {
	op.once.Do(func() { close(op.done) })
}

// Deps are the collaborators of an Orchestrator. Tracker, Recorder and
// Metrics are optional.
type Deps struct {
	Builder   *generation.Builder
	Submitter Submitter
	Checker   StatusChecker
	Recorder  HistoryRecorder
	Tracker   OperationTracker
	Metrics   *Metrics
	Logger    infra.Logger
}

// Option customises an Orchestrator.
type Option func(*Orchestrator, *[]DriverOption)

// WithDriverOptions forwards opts to the Driver.
func WithDriverOptions(opts ...DriverOption) Option {
	return func(_ *Orchestrator, d *[]DriverOption) { *d = append(*d, opts...) }
}

// WithOrchestratorClock sets the clock used for handles, the view and the
// driver.
func WithOrchestratorClock(c Clock) Option {
	return func(o *Orchestrator, d *[]DriverOption) {
		o.clock = c
		*d = append(*d, WithClock(c))
	}
}

// WithIDGenerator replaces the generation id source.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator, _ *[]DriverOption) { o.newID = f }
}

// New wires an orchestrator from deps.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder:       deps.Builder,
		submitter:     deps.Submitter,
		tracker:       deps.Tracker,
		clock:         SystemClock,
		policy:        DefaultPolicy(),
		logger:        deps.Logger,
		newID:         uuid.NewString,
		submitTimeout: defaultSubmitTimeout,
	}
	driverOpts := []DriverOption{WithMetrics(deps.Metrics)}
	for _, opt := range opts {
		opt(o, &driverOpts)
	}
	o.view = NewView(o.clock)
	o.reconciler = NewReconciler(o.view, deps.Recorder, deps.Logger, deps.Metrics)
	driverOpts = append(driverOpts, WithAttemptHook(o.onAttempt))
	o.driver = NewDriver(deps.Checker, o.onOutcome, deps.Logger, driverOpts...)
	o.policy = o.driver.policy
	return o
}

// Generate builds a request from form and submits it, cancelling any
// generation still in flight. Invalid forms are returned as errors; backend
// failures are presented through the view.
func (o *Orchestrator) Generate(ctx context.Context, form generation.FormState) (ViewState, error) {
	req, err := o.builder.Build(form)
	if err != nil {
		return ViewState{}, err
	}

	started := o.clock.Now()
	op := &operation{
		id:    o.newID(),
		state: StatePending,
		req:   req,
		done:  make(chan struct{}),
	}
	o.mu.Lock()
	superseded := o.cancelLocked()
	o.current = op
	o.view.begin(op.id, req, started, o.policy.MaxAttempts)
	o.mu.Unlock()
	o.finishCancelled(ctx, superseded)

	o.logger.Info().
		Str("generation_id", op.id).
		Str("type", string(req.Type)).
		Str("model", req.Model).
		Msg("orchestrator: submitting generation")

	sctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	sub, err := o.submitter.Submit(sctx, req)
	cancel()

	o.mu.Lock()
	if o.current != op || op.state != StatePending {
		o.mu.Unlock()
		o.logger.Info().Str("generation_id", op.id).Msg("orchestrator: submission finished after cancel")
		return o.view.Snapshot(), ErrSuperseded
	}

	if err != nil {
		o.transitionLocked(op, EventSubmitFailed)
		o.mu.Unlock()
		o.reconcile(ctx, op, Outcome{
			Kind:         OutcomeSubmitError,
			GenerationID: op.id,
			Request:      req,
			Err:          err,
			StartedAt:    started.Round(0),
			FinishedAt:   o.clock.Now().Round(0),
		})
		return o.view.Snapshot(), nil
	}

	token := sub.JobToken
	if token == "" {
		token = op.id
	}
	h := NewHandle(op.id, token, req, started)
	op.handle = h
	o.view.setJob(op.id, token)

	if req.Type == domain.MediaTypeImage || sub.JobToken == "" {
		out := outcomeFor(h, OutcomeSuccess, o.clock.Now())
		out.Artifacts = sub.Artifacts
		out.Usage = sub.Usage
		event := EventSubmitImage
		if len(sub.Artifacts) == 0 {
			out.Kind = OutcomeBackendError
			out.Message = emptyResultMessage
			event = EventSubmitFailed
		}
		o.transitionLocked(op, event)
		o.mu.Unlock()
		o.reconcile(ctx, op, out)
		return o.view.Snapshot(), nil
	}

	o.transitionLocked(op, EventSubmitVideo)
	o.mu.Unlock()

	if o.tracker != nil {
		if err := o.tracker.Track(context.WithoutCancel(ctx), h); err != nil {
			o.logger.Warn().Err(err).Str("job_token", token).Msg("orchestrator: track operation")
		}
	}

	o.mu.Lock()
	if o.current == op && op.state == StatePolling {
		o.driver.Start(h)
	}
	o.mu.Unlock()
	return o.view.Snapshot(), nil
}

// Resume starts polling a job submitted earlier, typically by another
// process. It replaces any generation in flight.
func (o *Orchestrator) Resume(ctx context.Context, token string, req generation.Request, startedAt time.Time) (ViewState, error) {
	if token == "" {
		return ViewState{}, fmt.Errorf("orchestrator: resume: %w", domain.ErrInvalidRequest)
	}
	op := &operation{
		id:    o.newID(),
		state: StatePending,
		req:   req,
		done:  make(chan struct{}),
	}
	h := ResumeHandle(op.id, token, req, startedAt)
	op.handle = h

	o.mu.Lock()
	superseded := o.cancelLocked()
	o.current = op
	o.view.begin(op.id, req, h.StartedAt(), o.policy.MaxAttempts)
	o.view.setJob(op.id, token)
	o.transitionLocked(op, EventSubmitVideo)
	o.driver.Start(h)
	o.mu.Unlock()
	o.finishCancelled(ctx, superseded)

	o.logger.Info().Str("job_token", token).Str("generation_id", op.id).Msg("orchestrator: resumed operation")
	return o.view.Snapshot(), nil
}

// Cancel stops the generation in flight. It reports whether there was one.
func (o *Orchestrator) Cancel(ctx context.Context) bool {
	o.mu.Lock()
	op := o.cancelLocked()
	o.mu.Unlock()
	if op == nil {
		return false
	}
	o.finishCancelled(ctx, op)
	return true
}

// Halt stops polling without touching the tracked operation, so that another
// process can resume it later. Waiters are released.
func (o *Orchestrator) Halt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.driver.Stop()
	if o.current != nil {
		o.current.settle()
	}
}

// View returns the current display state.
func (o *Orchestrator) View() ViewState {
	return o.view.Snapshot()
}

// Wait blocks until the current generation has settled or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (ViewState, error) {
	o.mu.Lock()
	op := o.current
	o.mu.Unlock()
	if op == nil {
		return o.view.Snapshot(), nil
	}
	select {
	case <-op.done:
		return o.view.Snapshot(), nil
	case <-ctx.Done():
		return o.view.Snapshot(), ctx.Err()
	}
}

// Progress exposes the driver's read-only progress.
func (o *Orchestrator) Progress() Progress {
	return o.driver.Progress()
}

// cancelLocked moves the current operation to Cancelled and returns it, or
// nil if nothing was in flight.
func (o *Orchestrator) cancelLocked() *operation {
	op := o.current
	if op == nil || op.state.Terminal() {
		return nil
	}
	o.driver.Stop()
	o.transitionLocked(op, EventCancel)
	o.view.SetInProgress(op.id, false)
	op.settle()
	return op
}

func (o *Orchestrator) finishCancelled(ctx context.Context, op *operation) {
	if op == nil {
		return
	}
	o.logger.Info().Str("generation_id", op.id).Msg("orchestrator: generation cancelled")
	if op.handle == nil || o.tracker == nil || op.req.Type != domain.MediaTypeVideo {
		return
	}
	attempts := o.view.Snapshot().Attempts
	if err := o.tracker.Finish(context.WithoutCancel(ctx), op.handle.Token(), StateCancelled, "", attempts); err != nil {
		o.logger.Warn().Err(err).Str("job_token", op.handle.Token()).Msg("orchestrator: finish cancelled operation")
	}
}

func (o *Orchestrator) transitionLocked(op *operation, e Event) {
	next, err := Transition(op.state, e)
	if err != nil {
		o.logger.Error().Err(err).Str("generation_id", op.id).Msg("orchestrator: state")
		return
	}
	op.state = next
	o.view.setState(op.id, next)
}

func (o *Orchestrator) onAttempt(ctx context.Context, h *Handle, attempts int) {
	o.view.setAttempts(h.ID(), attempts)
	if o.tracker == nil {
		return
	}
	if err := o.tracker.Heartbeat(ctx, h.Token(), attempts); err != nil {
		o.logger.Warn().Err(err).Str("job_token", h.Token()).Msg("orchestrator: heartbeat")
	}
}

func (o *Orchestrator) onOutcome(ctx context.Context, out Outcome) {
	o.mu.Lock()
	op := o.current
	if op == nil || op.id != out.GenerationID || op.state != StatePolling {
		o.mu.Unlock()
		o.logger.Debug().Str("job_token", out.Token).Msg("orchestrator: outcome for inactive generation dropped")
		return
	}
	o.transitionLocked(op, out.Kind.Event())
	state := op.state
	o.mu.Unlock()

	o.view.setAttempts(op.id, out.Attempts)
	if o.tracker != nil {
		msg := ""
		if out.Kind != OutcomeSuccess {
			msg = messageFor(out)
		}
		if err := o.tracker.Finish(ctx, out.Token, state, msg, out.Attempts); err != nil {
			o.logger.Warn().Err(err).Str("job_token", out.Token).Msg("orchestrator: finish operation")
		}
	}
	o.reconcile(ctx, op, out)
}

func (o *Orchestrator) reconcile(ctx context.Context, op *operation, out Outcome) {
	defer op.settle()
	o.reconciler.Reconcile(context.WithoutCancel(ctx), out)
}
