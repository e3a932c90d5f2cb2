// Package lifecycle drives a single backtest run from submission to a
// terminal status: create, poll on a fixed interval, stop. Observers follow
// along through snapshots.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"backdash/internal/domain"
)

// DefaultInterval is the delay between the end of one status poll and the
// start of the next.
const DefaultInterval = 2 * time.Second

var (
	// ErrDisposed is returned by Submit and Wait once Dispose has been called.
	ErrDisposed = errors.New("lifecycle: controller disposed")
	// ErrNotPolling is returned by Wait when no run is being polled yet.
	ErrNotPolling = errors.New("lifecycle: no run being polled")
	// ErrSuperseded is wrapped by Submit when a later Submit started while
	// this one was creating its run. The backend run still exists.
	ErrSuperseded = errors.New("lifecycle: submission superseded")
)

// API is the subset of the backend client the controller needs.
// *backdash.Client satisfies it.
type API interface {
	CreateRun(ctx context.Context, strategyID string, params domain.Params, name string) (*domain.RunResponse, error)
	GetRunStatus(ctx context.Context, runID string) (*domain.RunStatus, error)
}

// State is the controller phase.
type State int

const (
	Idle State = iota
	Creating
	Polling
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Creating:
		return "creating"
	case Polling:
		return "polling"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further polling will happen for the run.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	RunID      string
	Name       string
	State      State
	Status     domain.RunState
	Progress   float64
	Message    string
	Logs       []string
	Err        error
	ObservedAt time.Time
}

// ContractViolation records a status that contradicted an earlier terminal
// observation for the same run. The controller ignores such statuses.
type ContractViolation struct {
	RunID string
	Had   domain.RunState
	Got   domain.RunState
	At    time.Time
}

func (v *ContractViolation) Error() string {
	return fmt.Sprintf("run %s: status %s after terminal %s", v.RunID, v.Got, v.Had)
}

// loop is one submission's polling state. A loop is current while
// c.cur points at it.
type loop struct {
	runID  string
	cancel context.CancelFunc
	timer  *time.Timer
	done   chan struct{}
}

// Controller owns the lifecycle of one run at a time.
type Controller struct {
	api      API
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	snap       Snapshot
	cur        *loop
	gen        uint64 // bumped by every Submit and Follow
	polls      int
	disposed   bool
	violations []ContractViolation

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Snapshot
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an idle controller.
func New(api API, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		interval: DefaultInterval,
		log:      slog.Default(),
		now:      time.Now,
		subs:     make(map[int]chan Snapshot),
	}
	for _, o := range opts {
		o(c)
	}
	c.snap = Snapshot{State: Idle, ObservedAt: c.now()}
	return c
}

// Submit creates a run and starts polling it. The first status poll fires
// immediately after creation succeeds. A run already being polled is
// abandoned first. If creation fails the controller returns to Idle and the
// error is returned as is. Polling stops when ctx is cancelled.
func (c *Controller) Submit(ctx context.Context, strategyID string, params domain.Params, name string) (Snapshot, error) {
	if strings.TrimSpace(strategyID) == "" {
		return c.Snapshot(), &domain.ValidationError{Field: "strategy_id", Reason: "no strategy selected"}
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return c.Snapshot(), ErrDisposed
	}
	c.endLocked(c.cur)
	c.gen++
	gen := c.gen
	c.polls = 0
	c.setLocked(Snapshot{State: Creating, Name: name})
	c.mu.Unlock()

	resp, err := c.api.CreateRun(ctx, strategyID, params, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return c.snap, ErrDisposed
	}
	if gen != c.gen {
		// A later Submit owns the controller now.
		if err != nil {
			return c.snap, err
		}
		c.log.Warn("created run left unpolled", "run_id", resp.RunID, "strategy", strategyID)
		return c.snap, fmt.Errorf("run %s: %w", resp.RunID, ErrSuperseded)
	}
	if err != nil {
		c.log.Warn("run creation failed", "strategy", strategyID, "error", err)
		c.setLocked(Snapshot{State: Idle, Name: name, Err: err})
		return c.snap, err
	}

	c.log.Info("run created", "run_id", resp.RunID, "strategy", strategyID)
	loopCtx, cancel := context.WithCancel(ctx)
	l := &loop{runID: resp.RunID, cancel: cancel, done: make(chan struct{})}
	c.cur = l
	if resp.Name != "" {
		name = resp.Name
	}
	c.setLocked(Snapshot{
		RunID:   resp.RunID,
		Name:    name,
		State:   Polling,
		Status:  resp.Status,
		Message: resp.Message,
	})
	context.AfterFunc(loopCtx, func() { c.abort(loopCtx, l) })
	l.timer = time.AfterFunc(0, func() { c.tick(loopCtx, l) })
	return c.snap, nil
}

// tick performs one status poll and schedules the next one if the run is
// still active.
func (c *Controller) tick(ctx context.Context, l *loop) {
	c.mu.Lock()
	if c.cur != l {
		c.mu.Unlock()
		return
	}
	l.timer = nil
	c.polls++
	c.mu.Unlock()

	st, err := c.api.GetRunStatus(ctx, l.runID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != l {
		return
	}
	if err != nil {
		c.log.Warn("status poll failed", "run_id", l.runID, "error", err)
	} else if c.applyLocked(st) != nil || c.cur != l {
		return
	}
	l.timer = time.AfterFunc(c.interval, func() { c.tick(ctx, l) })
}

// Follow tracks runID without polling it, for statuses polled elsewhere and
// fed in through Observe. Any run being polled is abandoned.
func (c *Controller) Follow(runID string) error {
	if runID == "" {
		return &domain.ValidationError{Field: "run_id", Reason: "empty"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	c.endLocked(c.cur)
	c.gen++
	c.polls = 0
	c.setLocked(Snapshot{RunID: runID, State: Polling})
	return nil
}

// abort ends l after its context was cancelled from outside.
func (c *Controller) abort(ctx context.Context, l *loop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != l {
		return
	}
	c.log.Info("polling cancelled", "run_id", l.runID, "error", ctx.Err())
	c.endLocked(l)
	s := c.snap
	s.Err = ctx.Err()
	c.setLocked(s)
}

// Observe applies a status obtained outside the polling loop, for example
// from another viewer. Statuses for other runs are rejected. A status that
// would leave a terminal state is recorded and returned as a
// *ContractViolation.
func (c *Controller) Observe(st domain.RunStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.RunID == "" || st.RunID != c.snap.RunID {
		return fmt.Errorf("observe: run %q is not tracked", st.RunID)
	}
	return c.applyLocked(&st)
}

// applyLocked folds a status into the snapshot. Reaching a terminal status
// ends the current loop.
func (c *Controller) applyLocked(st *domain.RunStatus) error {
	if c.snap.State.Terminal() {
		if st.Status == c.snap.Status {
			return nil
		}
		v := ContractViolation{RunID: c.snap.RunID, Had: c.snap.Status, Got: st.Status, At: c.now()}
		c.violations = append(c.violations, v)
		c.log.Error("terminal status contradicted", "run_id", v.RunID, "had", v.Had, "got", v.Got)
		return &v
	}

	next := c.snap
	next.Status = st.Status
	next.Progress = st.Progress
	next.Message = st.Message
	next.Logs = st.Logs
	next.Err = nil
	if st.Name != "" {
		next.Name = st.Name
	}
	switch st.Status {
	case domain.RunCompleted:
		next.State = Completed
	case domain.RunFailed:
		next.State = Failed
	default:
		next.State = Polling
	}
	if next.State.Terminal() {
		c.log.Info("run finished", "run_id", next.RunID, "status", next.Status, "polls", c.polls)
		c.endLocked(c.cur)
	}
	c.setLocked(next)
	return nil
}

// endLocked stops l's timer and context and releases waiters. It is a no-op
// unless l is the current loop.
func (c *Controller) endLocked(l *loop) {
	if l == nil || c.cur != l {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	c.cur = nil
	l.cancel()
	close(l.done)
}

func (c *Controller) setLocked(s Snapshot) {
	s.ObservedAt = c.now()
	c.snap = s
	c.publish(s)
}

// Dispose stops polling and closes every subscription. It is safe to call
// more than once.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.endLocked(c.cur)
	c.mu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
}

// Snapshot returns the latest snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// ActiveTimers reports how many status polls are scheduled but not yet
// started. It is 0 or 1.
func (c *Controller) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil && c.cur.timer != nil {
		return 1
	}
	return 0
}

// Polls returns the number of status polls issued for the current run.
func (c *Controller) Polls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

// Violations returns the recorded contract violations.
func (c *Controller) Violations() []ContractViolation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ContractViolation(nil), c.violations...)
}

// Done returns a channel closed when the current run stops being polled.
// Without a run in flight the channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return c.cur.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Wait blocks until the current run stops being polled, then returns the
// final snapshot. The error is ctx's error, ErrDisposed, the reason
// polling was cut short, or ErrNotPolling if no run is being polled yet,
// which includes a Submit still creating its run.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.cur == nil {
		defer c.mu.Unlock()
		return c.finalLocked()
	}
	done := c.cur.done
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalLocked()
}

func (c *Controller) finalLocked() (Snapshot, error) {
	switch {
	case c.snap.State.Terminal():
		return c.snap, nil
	case c.disposed:
		return c.snap, ErrDisposed
	case c.snap.Err != nil:
		return c.snap, c.snap.Err
	}
	return c.snap, ErrNotPolling
}

// Subscribe registers a snapshot listener. Sends are non-blocking: a full
// channel drops snapshots, so listeners should re-read Snapshot after Done.
func (c *Controller) Subscribe(bufSize int) (id int, ch <-chan Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id = c.nextSubID
	c.nextSubID++
	sc := make(chan Snapshot, bufSize)
	c.subs[id] = sc
	return id, sc
}

// Unsubscribe removes a listener and closes its channel.
func (c *Controller) Unsubscribe(id int) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) publish(s Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
