// Package viewer runs one similarity-insight view: it polls the insight for
// a (contest, photo) pair and turns every scheduler transition into a
// Snapshot the presentation layer can draw.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/history"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/plotmodel"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/poll"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/projection"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/timeutil"
)

// Phase is what the view is currently showing.
type Phase int

const (
	// Loading is shown until the first fetch completes.
	Loading Phase = iota
	// Analyzing is shown while the job is pending.
	Analyzing
	// Ready means the plot and summary are available.
	Ready
	// Unavailable means the job ended in a non-success status.
	Unavailable
	// Failed means a fetch failed; the view shows a fatal error panel.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Analyzing:
		return "analyzing"
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further snapshot will follow.
func (p Phase) Terminal() bool {
	return p == Ready || p == Unavailable || p == Failed
}

// Snapshot is the outbound state of a view. Snapshots are immutable: every
// transition publishes a new one.
type Snapshot struct {
	SessionID uuid.UUID
	ContestID int64
	PhotoID   int64

	Phase   Phase
	State   poll.State
	Status  insight.AnalysisStatus
	Attempt int
	// Fetching is set while a request is in flight.
	Fetching bool

	Result *insight.InsightResult
	Points []projection.PlotPoint
	Model  *plotmodel.Model

	Err     error
	Message string

	ObservedAt time.Time
}

// Recorder receives one event per completed fetch. *history.Store
// implements it.
type Recorder interface {
	Record(ctx context.Context, ev history.Event) error
}

// Options configure a Session. Zero values select the defaults.
type Options struct {
	Interval time.Duration
	Pending  insight.StatusSet
	Clock    timeutil.Clock

	Params           projection.Params
	OverlapThreshold float64

	// OnSnapshot is called synchronously for every published snapshot.
	OnSnapshot func(Snapshot)
	// OnUnauthorized is called once with the path to return to after the
	// user has signed in again.
	OnUnauthorized func(returnPath string)
	Recorder       Recorder
}

// Session owns the scheduler of one view.
type Session struct {
	id        uuid.UUID
	contestID int64
	photoID   int64

	sched      *poll.Scheduler
	normalizer *projection.Normalizer
	threshold  float64
	clock      timeutil.Clock
	onSnapshot func(Snapshot)
	onUnauth   func(string)
	recorder   Recorder
	logf       func(format string, v ...interface{})

	mu      sync.Mutex
	current Snapshot
	ctx     context.Context
}

// NewSession creates a session for the pair. Call Start to begin polling
// and Close on teardown.
func NewSession(f insight.Fetcher, contestID, photoID int64, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	params := opts.Params
	if params == (projection.Params{}) {
		params = projection.DefaultParams()
	}
	threshold := opts.OverlapThreshold
	if threshold <= 0 {
		threshold = projection.DefaultOverlapThreshold
	}

	s := &Session{
		id:         uuid.New(),
		contestID:  contestID,
		photoID:    photoID,
		normalizer: projection.NewNormalizer(params),
		threshold:  threshold,
		clock:      clock,
		onSnapshot: opts.OnSnapshot,
		onUnauth:   opts.OnUnauthorized,
		recorder:   opts.Recorder,
		logf:       monitoring.Tagged("viewer"),
		ctx:        context.Background(),
	}
	s.current = Snapshot{
		SessionID:  s.id,
		ContestID:  contestID,
		PhotoID:    photoID,
		Phase:      Loading,
		State:      poll.Idle,
		ObservedAt: clock.Now(),
	}
	s.sched = poll.New(f, contestID, photoID, poll.Config{
		Interval: opts.Interval,
		Pending:  opts.Pending,
		Clock:    clock,
		Observer: s.observe,
	})
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// Scheduler exposes the underlying scheduler for diagnostics.
func (s *Session) Scheduler() *poll.Scheduler { return s.sched }

// Start begins polling. It returns after the first fetch completes.
func (s *Session) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logf("session %s: contest=%d photo=%d", s.id, s.contestID, s.photoID)
	s.sched.Start(ctx)
}

// Close stops polling. It is safe to call more than once.
func (s *Session) Close() {
	s.sched.Cancel()
}

// Done is closed once polling has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.sched.Done()
}

// Snapshot returns the most recently published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Wait blocks until polling stops or ctx is done, then returns the latest
// snapshot.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.sched.Done():
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// ReturnPath is where the user is sent back to after re-authenticating.
func ReturnPath(contestID, photoID int64) string {
	return fmt.Sprintf("/contests/%d/photos/%d", contestID, photoID)
}

func (s *Session) observe(u poll.Update) {
	s.mu.Lock()
	prev := s.current
	ctx := s.ctx
	s.mu.Unlock()

	snap := s.snapshotFor(prev, u)

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	if u.State != poll.Fetching {
		s.record(ctx, u, snap)
	}
	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
	if snap.Phase == Failed && s.onUnauth != nil {
		if kind, ok := insight.KindOf(u.Err); ok && kind == insight.Unauthorized {
			s.onUnauth(ReturnPath(s.contestID, s.photoID))
		}
	}
}

// snapshotFor derives the next snapshot from the previous one and u.
func (s *Session) snapshotFor(prev Snapshot, u poll.Update) Snapshot {
	snap := Snapshot{
		SessionID:  s.id,
		ContestID:  s.contestID,
		PhotoID:    s.photoID,
		Phase:      prev.Phase,
		State:      u.State,
		Attempt:    u.Attempt,
		Result:     u.Result,
		Points:     prev.Points,
		Model:      prev.Model,
		Message:    prev.Message,
		ObservedAt: s.clock.Now(),
	}
	if u.Result != nil {
		snap.Status = u.Result.Status
	}

	switch {
	case u.State == poll.Fetching:
		snap.Fetching = true
		snap.Status = prev.Status
		if prev.Phase == Loading {
			snap.Message = "Loading..."
		}

	case u.Err != nil:
		snap.Phase = Failed
		snap.Err = u.Err
		snap.Message = insight.UserMessage(u.Err)
		snap.Points, snap.Model = nil, nil
		var fe *insight.FetchError
		if errors.As(u.Err, &fe) && fe.Status != "" {
			snap.Status = fe.Status
		}

	case u.State == poll.Scheduled:
		snap.Phase = Analyzing
		snap.Message = fmt.Sprintf("Computing similarity. This view refreshes automatically (every %gs).", s.sched.Interval().Seconds())

	case snap.Status == insight.StatusSuccess:
		snap.Phase = Ready
		snap.Points = s.normalizer.Normalize(u.Result.Projection)
		meta := plotmodel.MetaOf(u.Result.Projection)
		meta.OverlapThreshold = s.threshold
		snap.Model = plotmodel.Build(s.normalizer.Canvas(), snap.Points, meta)
		snap.Message = ""
		if snap.Model.Overlapping {
			snap.Message = "Points overlap. This is expected when there is little data."
		}

	default:
		snap.Phase = Unavailable
		snap.Points, snap.Model = nil, nil
		snap.Message = fmt.Sprintf("Cannot be displayed in the current state (status=%s).", snap.Status)
	}
	return snap
}

func (s *Session) record(ctx context.Context, u poll.Update, snap Snapshot) {
	if s.recorder == nil {
		return
	}
	ev := history.Event{
		SessionID:  s.id,
		ContestID:  s.contestID,
		PhotoID:    s.photoID,
		Attempt:    u.Attempt,
		Status:     string(snap.Status),
		ObservedAt: snap.ObservedAt,
	}
	if u.Err != nil {
		if kind, ok := insight.KindOf(u.Err); ok {
			ev.ErrorKind = kind.String()
		} else {
			ev.ErrorKind = "unknown"
		}
		ev.Message = snap.Message
	}
	if u.Result != nil && u.Result.Summary != nil {
		score := u.Result.Summary.MatchScore
		ev.MatchScore = &score
	}
	// The session may already be cancelled; the journal entry still belongs
	// to a completed fetch.
	if err := s.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logf("session %s: failed to record attempt %d: %v", s.id, u.Attempt, err)
	}
}
