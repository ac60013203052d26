package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
)

// ErrClosed is returned by Trigger after the scheduler or the subscription was closed
var ErrClosed = errors.New("subscription closed")

// Job is one execution of a subscription
type Job func(ctx context.Context) error

// Options configure a subscription
type Options struct {
	Interval           time.Duration
	Enabled            bool
	ExecuteImmediately bool        // consulted once, on the first activation
	OnError            func(error) // receives job failures; if nil, Trigger returns them and ticks log them
}

// Params holds scheduler configuration
type Params struct {
	DefaultInterval time.Duration
}

// Scheduler owns one repeating timer per active subscription.
// Ticks dispatch their job without waiting for the previous one, so executions
// of the same subscription may overlap; stores order their results by completion time.
type Scheduler struct {
	defaultInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
	jobs    sync.WaitGroup
}

// Status describes a subscription
type Status struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Active   bool          `json:"active"`
	Interval time.Duration `json:"interval"`
}

// NewScheduler creates a scheduler
func NewScheduler(params Params) *Scheduler {
	if params.DefaultInterval <= 0 {
		params.DefaultInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		defaultInterval: params.DefaultInterval,
		ctx:             ctx,
		cancel:          cancel,
		handles:         map[string]*Handle{},
	}
}

// Subscribe registers a periodic job. The timer starts right away only if opts.Enabled is set.
func (s *Scheduler) Subscribe(name string, job Job, opts Options) *Handle {
	if opts.Interval <= 0 {
		opts.Interval = s.defaultInterval
	}
	h := &Handle{
		id:                 uuid.NewString(),
		name:               name,
		job:                job,
		onError:            opts.OnError,
		sched:              s,
		interval:           opts.Interval,
		executeImmediately: opts.ExecuteImmediately,
	}

	s.mu.Lock()
	if s.closed {
		h.closed = true
		s.mu.Unlock()
		lgr.Printf("[WARN] subscribe %s on closed scheduler", name)
		return h
	}
	s.handles[h.id] = h
	s.mu.Unlock()

	lgr.Printf("[DEBUG] subscription %s (%s) created, interval %v, enabled %v", name, h.id, opts.Interval, opts.Enabled)
	if opts.Enabled {
		h.Resume()
	}
	return h
}

// Subscriptions returns status of all live subscriptions sorted by name
func (s *Scheduler) Subscriptions() []Status {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	res := make([]Status, 0, len(handles))
	for _, h := range handles {
		res = append(res, h.Status())
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name == res[j].Name {
			return res[i].ID < res[j].ID
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// Close stops all timers and waits for in-flight executions to finish
func (s *Scheduler) Close() {
	lgr.Printf("[INFO] stopping scheduler...")
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
	s.cancel()
	s.jobs.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

func (s *Scheduler) remove(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h.id)
	s.mu.Unlock()
}

// track registers an execution with the scheduler unless it is closed
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.jobs.Add(1)
	return true
}

// Handle controls one subscription
type Handle struct {
	id      string
	name    string
	job     Job
	onError func(error)
	sched   *Scheduler

	mu                 sync.Mutex
	interval           time.Duration
	executeImmediately bool
	activated          bool
	closed             bool
	stop               chan struct{} // non-nil while the timer is armed
	done               chan struct{} // closed when the timer goroutine exits
}

// ID returns the subscription id
func (h *Handle) ID() string { return h.id }

// Name returns the subscription name
func (h *Handle) Name() string { return h.name }

// IsActive reports whether the timer is armed
func (h *Handle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil
}

// Interval returns the current period
func (h *Handle) Interval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

// Status returns the subscription status
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{ID: h.id, Name: h.name, Active: h.stop != nil, Interval: h.interval}
}

// Resume arms the timer. On the first activation with ExecuteImmediately set,
// one execution is dispatched before the first interval elapses.
// Resuming an active subscription does nothing.
func (h *Handle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.stop != nil {
		return
	}
	runNow := h.executeImmediately && !h.activated
	h.activated = true
	h.arm()
	lgr.Printf("[DEBUG] subscription %s resumed, interval %v", h.name, h.interval)
	if runNow {
		h.dispatch()
	}
}

// Pause disarms the timer. In-flight executions are not canceled.
// No tick is dispatched after Pause returns.
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop == nil {
		return
	}
	h.disarm()
	lgr.Printf("[DEBUG] subscription %s paused", h.name)
}

// Toggle pauses an active subscription or resumes a paused one
func (h *Handle) Toggle() {
	if h.IsActive() {
		h.Pause()
		return
	}
	h.Resume()
}

// SetInterval changes the period. An armed timer is restarted with the new period
// and the pending tick is dropped, not fired.
func (h *Handle) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if d == h.interval {
		return
	}
	h.interval = d
	if h.stop != nil {
		h.disarm()
		h.arm()
	}
	lgr.Printf("[DEBUG] subscription %s interval set to %v", h.name, d)
}

// Trigger runs the job once outside the timer cadence and returns when that run completes.
// The failure goes to OnError if registered, otherwise it is returned.
func (h *Handle) Trigger(ctx context.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed || !h.sched.track() {
		return ErrClosed
	}
	defer h.sched.jobs.Done()

	err := h.job(ctx)
	if err == nil {
		return nil
	}
	if h.onError != nil {
		h.onError(err)
		return nil
	}
	return err
}

// Unsubscribe stops the timer and removes the subscription. Safe to call more than once.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	if h.stop != nil {
		h.disarm()
	}
	wasClosed := h.closed
	h.closed = true
	h.mu.Unlock()

	if !wasClosed {
		h.sched.remove(h)
		lgr.Printf("[DEBUG] subscription %s removed", h.name)
	}
}

// arm starts the timer goroutine, must be called with h.mu held
func (h *Handle) arm() {
	stop, done := make(chan struct{}), make(chan struct{})
	h.stop, h.done = stop, done
	go h.loop(h.interval, stop, done)
}

// disarm stops the timer goroutine and waits for it to exit, must be called with h.mu held
func (h *Handle) disarm() {
	close(h.stop)
	<-h.done
	h.stop, h.done = nil, nil
}

func (h *Handle) loop(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			h.dispatch()
		}
	}
}

// dispatch runs the job in the background, never blocking the timer
func (h *Handle) dispatch() {
	if !h.sched.track() {
		return
	}
	go func() {
		defer h.sched.jobs.Done()
		if err := h.job(h.sched.ctx); err != nil {
			if h.onError != nil {
				h.onError(err)
				return
			}
			lgr.Printf("[WARN] subscription %s run failed: %v", h.name, err)
		}
	}()
}
