// Package poll drives repeated insight fetches while the similarity job is
// pending.
//
// A Scheduler is a small state machine:
//
//	Idle --Start--> Fetching --pending--> Scheduled --timer--> Fetching
//	                   |                      |
//	                   +--terminal/error--> Stopped <--Cancel (any state)
//
// At most one fetch is in flight and at most one timer is armed at any
// time. Fetches are strictly sequential: the next timer is only armed after
// the previous fetch has returned, so results are never reordered.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/timeutil"
)

// DefaultInterval is the delay between a pending response and the next fetch.
const DefaultInterval = 2000 * time.Millisecond

// State is the scheduler's lifecycle state.
type State int

const (
	Idle State = iota
	Fetching
	Scheduled
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Scheduled:
		return "scheduled"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Update is delivered to the observer on every state transition except
// cancellation.
type Update struct {
	State State
	// Attempt is the number of fetches issued so far.
	Attempt int
	// Result is the most recent completed fetch, nil before the first one.
	Result *insight.InsightResult
	// Err is set when the scheduler stopped because of a failed fetch.
	Err error
}

// Config tunes a Scheduler. Zero values select the defaults.
type Config struct {
	Interval time.Duration
	Pending  insight.StatusSet
	Clock    timeutil.Clock
	// Observer is called synchronously for each Update. It may call Cancel.
	Observer func(Update)
}

// Scheduler polls one (contest, photo) pair.
type Scheduler struct {
	fetcher   insight.Fetcher
	contestID int64
	photoID   int64
	interval  time.Duration
	pending   insight.StatusSet
	clock     timeutil.Clock
	observer  func(Update)
	logf      func(format string, v ...interface{})

	// emitMu serializes observer calls.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     State
	ctx       context.Context
	stopWatch func() bool
	timer     timeutil.Timer
	fetches   int
	armed     int
	last      *insight.InsightResult
	lastErr   error
	done      chan struct{}
	doneOnce  sync.Once
}

// New creates an idle Scheduler for the given pair.
func New(f insight.Fetcher, contestID, photoID int64, cfg Config) *Scheduler {
	s := &Scheduler{
		fetcher:   f,
		contestID: contestID,
		photoID:   photoID,
		interval:  cfg.Interval,
		pending:   cfg.Pending,
		clock:     cfg.Clock,
		observer:  cfg.Observer,
		logf:      monitoring.Tagged("poll"),
		done:      make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.pending == nil {
		s.pending = insight.DefaultPendingStatuses()
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

// Start issues the first fetch immediately, on the calling goroutine, and
// returns once it has completed (and the next timer is armed, if any).
// Start on a scheduler that has already been started or cancelled is a
// no-op. Cancelling ctx is equivalent to calling Cancel.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.state = Fetching
	s.mu.Unlock()

	// Cancel runs on its own goroutine once ctx is done.
	stop := context.AfterFunc(ctx, s.Cancel)
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		stop()
		return
	}
	s.stopWatch = stop
	s.mu.Unlock()

	s.logf("start contest=%d photo=%d interval=%s", s.contestID, s.photoID, s.interval)
	s.emit(Update{State: Fetching})
	s.fetch()
}

// Cancel stops the scheduler from any state. It disarms a pending timer and
// discards the result of a fetch still in flight. It is idempotent and emits
// no update.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Stopped {
		return
	}
	s.logf("cancel contest=%d photo=%d in state %s", s.contestID, s.photoID, s.state)
	s.stopLocked()
	s.closeDone()
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fetches returns how many fetches have been issued.
func (s *Scheduler) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// TimersArmed returns how many poll timers have been armed.
func (s *Scheduler) TimersArmed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Last returns the most recent completed fetch outcome.
func (s *Scheduler) Last() (*insight.InsightResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// Done is closed once the scheduler has stopped and its final update, if
// any, has been delivered.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Interval returns the delay between polls.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) fetch() {
	s.mu.Lock()
	if s.state != Fetching {
		s.mu.Unlock()
		return
	}
	if s.ctx.Err() != nil {
		s.stopLocked()
		s.mu.Unlock()
		s.closeDone()
		return
	}
	s.fetches++
	attempt := s.fetches
	ctx := s.ctx
	s.mu.Unlock()

	res, err := s.fetcher.FetchOnce(ctx, s.contestID, s.photoID)
	if err == nil && res == nil {
		err = &insight.FetchError{Kind: insight.Malformed, Message: "The analysis result could not be read.", Err: fmt.Errorf("empty result")}
	}
	if err == nil {
		// Fetchers other than insight.Client skip the payload contract.
		if verr := res.Validate(); verr != nil {
			res, err = nil, verr
		}
	}

	s.mu.Lock()
	if s.state != Fetching || ctx.Err() != nil {
		// Cancelled while the request was in flight.
		if s.state != Stopped {
			s.stopLocked()
		}
		s.mu.Unlock()
		s.closeDone()
		s.logf("discarding attempt %d for contest=%d photo=%d after cancel", attempt, s.contestID, s.photoID)
		return
	}
	s.last, s.lastErr = res, err

	next := Stopped
	if err == nil && s.pending.Contains(res.Status) {
		next = Scheduled
	}
	if next == Stopped {
		s.stopLocked()
	} else {
		s.state = Scheduled
	}
	s.mu.Unlock()

	if err != nil {
		s.logf("attempt %d failed, stopping: %v", attempt, err)
	} else {
		s.logf("attempt %d status=%s next=%s", attempt, res.Status, next)
	}
	s.emit(Update{State: next, Attempt: attempt, Result: res, Err: err})

	if next == Scheduled {
		s.arm()
	} else {
		s.closeDone()
	}
}

// arm starts the one-shot poll timer unless the scheduler was cancelled
// while the observer ran.
func (s *Scheduler) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Scheduled || s.timer != nil {
		return
	}
	s.armed++
	s.timer = s.clock.AfterFunc(s.interval, s.onTimer)
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.state != Scheduled {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = Fetching
	u := Update{State: Fetching, Attempt: s.fetches, Result: s.last}
	s.mu.Unlock()

	s.emit(u)
	s.fetch()
}

// stopLocked moves to Stopped and releases the timer and context watch.
// Done is closed separately by closeDone, after the final update has been
// delivered. s.mu must be held.
func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	s.state = Stopped
}

func (s *Scheduler) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// emit delivers u to the observer. Fetching and Scheduled updates are
// dropped once the scheduler has stopped; the final Stopped update comes
// from the fetch that caused it and is always delivered.
func (s *Scheduler) emit(u Update) {
	if s.observer == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if u.State != Stopped && s.State() == Stopped {
		return
	}
	s.observer(u)
}
