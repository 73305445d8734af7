package orchestrator

import (
	"context"
	"sync"
	"time"

	"genstudio/internal/infra"
)

const defaultPollTimeout = 30 * time.Second

const emptyResultMessage = "The generation finished without returning any output."

// OutcomeFunc receives the terminal outcome of a poll loop. The context is
// detached from the loop, so it stays valid after Stop.
type OutcomeFunc func(ctx context.Context, out Outcome)

// AttemptFunc is called after every status check that found the job still
// running.
type AttemptFunc func(ctx context.Context, h *Handle, attempts int)

// Progress is a read-only view of the active loop.
type Progress struct {
	Active   bool
	Token    string
	Attempts int
	Interval time.Duration
}

// Driver polls one long-running job at a time. Starting a new loop replaces
// the previous one; results that belong to a replaced or stopped loop are
// dropped.
type Driver struct {
	checker     StatusChecker
	scheduler   Scheduler
	policy      Policy
	clock       Clock
	logger      infra.Logger
	metrics     *Metrics
	pollTimeout time.Duration

	onOutcome OutcomeFunc
	onAttempt AttemptFunc

	mu   sync.Mutex
	loop *loop
}

type loop struct {
	handle   *Handle
	attempts int
	interval time.Duration
	timer    Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

// DriverOption customises a Driver.
type DriverOption func(*Driver)

func WithScheduler(s Scheduler) DriverOption { return func(d *Driver) { d.scheduler = s } }

func WithPolicy(p Policy) DriverOption { return func(d *Driver) { d.policy = p } }

func WithClock(c Clock) DriverOption { return func(d *Driver) { d.clock = c } }

func WithMetrics(m *Metrics) DriverOption { return func(d *Driver) { d.metrics = m } }

func WithPollTimeout(t time.Duration) DriverOption { return func(d *Driver) { d.pollTimeout = t } }

// WithAttemptHook registers f to run after every not-done status check.
func WithAttemptHook(f AttemptFunc) DriverOption { return func(d *Driver) { d.onAttempt = f } }

// NewDriver returns a driver that reports terminal outcomes to onOutcome.
func NewDriver(checker StatusChecker, onOutcome OutcomeFunc, logger infra.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		checker:     checker,
		scheduler:   TimerScheduler{},
		policy:      DefaultPolicy(),
		clock:       SystemClock,
		logger:      logger,
		pollTimeout: defaultPollTimeout,
		onOutcome:   onOutcome,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start stops any active loop and begins polling h from a fresh backoff
// state.
func (d *Driver) Start(h *Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		handle:   h,
		interval: d.policy.Initial,
		ctx:      ctx,
		cancel:   cancel,
	}
	d.loop = l
	d.metrics.loopStarted()
	d.scheduleLocked(l)
	d.logger.Info().
		Str("job_token", h.Token()).
		Str("generation_id", h.ID()).
		Msg("orchestrator: polling started")
}

// Stop cancels the active loop, if any. A status check already in flight is
// cancelled and its result discarded.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Active reports whether a loop is running.
func (d *Driver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loop != nil
}

// Progress returns the attempt count and current interval of the active
// loop.
func (d *Driver) Progress() Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loop == nil {
		return Progress{}
	}
	return Progress{
		Active:   true,
		Token:    d.loop.handle.Token(),
		Attempts: d.loop.attempts,
		Interval: d.loop.interval,
	}
}

func (d *Driver) stopLocked() {
	if d.loop == nil {
		return
	}
	if d.loop.timer != nil {
		d.loop.timer.Stop()
	}
	d.loop.cancel()
	d.loop = nil
	d.metrics.loopStopped()
}

func (d *Driver) scheduleLocked(l *loop) {
	delay, next := d.policy.Next(l.interval)
	l.interval = next
	l.timer = d.scheduler.AfterFunc(delay, func() { d.poll(l) })
}

func (d *Driver) poll(l *loop) {
	d.mu.Lock()
	if d.loop != l {
		d.mu.Unlock()
		return
	}
	h := l.handle
	ctx := l.ctx
	d.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, d.pollTimeout)
	status, err := d.checker.CheckStatus(cctx, h.Token(), h.Request())
	cancel()

	d.mu.Lock()
	if d.loop != l {
		d.mu.Unlock()
		d.logger.Debug().Str("job_token", h.Token()).Msg("orchestrator: dropping result of stopped loop")
		return
	}
	l.attempts++
	attempts := l.attempts
	now := d.clock.Now()

	var out Outcome
	switch {
	case err != nil:
		d.metrics.poll("error")
		out = outcomeFor(h, OutcomeTransportError, now)
		out.Err = err
	case !status.Done:
		d.metrics.poll("not_done")
		if attempts >= d.policy.MaxAttempts {
			out = outcomeFor(h, OutcomeTimeout, now)
			break
		}
		d.scheduleLocked(l)
		d.mu.Unlock()
		d.logger.Debug().
			Str("job_token", h.Token()).
			Int("attempt", attempts).
			Msg("orchestrator: job still running")
		if d.onAttempt != nil {
			d.onAttempt(ctx, h, attempts)
		}
		return
	case status.Error != "":
		d.metrics.poll("done")
		out = outcomeFor(h, OutcomeBackendError, now)
		out.Message = status.Error
	case len(status.Artifacts) == 0:
		d.metrics.poll("done")
		out = outcomeFor(h, OutcomeBackendError, now)
		out.Message = emptyResultMessage
	default:
		d.metrics.poll("done")
		out = outcomeFor(h, OutcomeSuccess, now)
		out.Artifacts = status.Artifacts
		out.Usage = status.Usage
	}
	out.Attempts = attempts
	d.stopLocked()
	d.mu.Unlock()

	d.logger.Info().
		Str("job_token", h.Token()).
		Str("kind", string(out.Kind)).
		Int("attempts", attempts).
		Msg("orchestrator: polling finished")
	d.onOutcome(context.WithoutCancel(ctx), out)
}
