package window

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/icon"
	"github.com/externos/hubd/internal/logger"
	"github.com/sourcegraph/conc"
)

var (
	// ErrUnknownWindow is returned for ids that are not tracked
	ErrUnknownWindow = errors.New("unknown window")
	// ErrPollInFlight is returned when a poll is requested while one runs
	ErrPollInFlight = errors.New("poll already in flight")
)

// Phase is the tracker's position in its poll cycle
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePolling
	PhaseDiffing
)

func (p Phase) String() string {
	switch p {
	case PhasePolling:
		return "polling"
	case PhaseDiffing:
		return "diffing"
	default:
		return "idle"
	}
}

// EventKind describes a tracker event
type EventKind string

const (
	EventAdded   EventKind = "window.added"
	EventRemoved EventKind = "window.removed"
	EventUpdated EventKind = "window.updated"
	EventIcon    EventKind = "window.icon"
)

// Event is sent to subscribers for every change
type Event struct {
	Kind   EventKind     `json:"kind"`
	Window TrackedWindow `json:"window"`
}

// IconQueue accepts icon extraction requests
type IconQueue interface {
	Enqueue(ctx context.Context, req icon.Request) error
}

// Tracker polls the window list on a fixed interval and keeps the
// deduplicated list of user windows.
type Tracker struct {
	backend Backend
	cfg     config.TrackerConfig
	icons   IconQueue
	names   NameResolver
	store   *icon.Store

	mu        sync.RWMutex
	state     State
	listeners []chan Event

	busy  atomic.Bool
	phase atomic.Int32
	wg    conc.WaitGroup
}

// Option configures a Tracker
type Option func(*Tracker)

// WithIconQueue enables icon extraction for newly seen processes
func WithIconQueue(q IconQueue) Option {
	return func(t *Tracker) { t.icons = q }
}

// WithNameResolver sets how process names are looked up
func WithNameResolver(r NameResolver) Option {
	return func(t *Tracker) { t.names = r }
}

// WithIconStore sets where extracted icons are kept
func WithIconStore(s *icon.Store) Option {
	return func(t *Tracker) { t.store = s }
}

// NewTracker creates a tracker
func NewTracker(backend Backend, cfg config.TrackerConfig, opts ...Option) *Tracker {
	t := &Tracker{
		backend: backend,
		cfg:     cfg,
		state:   NewState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run waits for the startup delay, then polls on every interval until ctx
// is done. A tick that fires while the previous poll is still running is
// skipped.
func (t *Tracker) Run(ctx context.Context) {
	log := logger.WithComponent("tracker")
	defer t.wg.Wait()

	if t.cfg.StartupDelay > 0 {
		log.Debug().Dur("delay", t.cfg.StartupDelay).Msg("Waiting before first poll")
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.StartupDelay):
		}
	}

	t.tick(ctx)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	if t.busy.Load() {
		logger.WithComponent("tracker").Debug().Msg("Previous poll still in flight, skipping tick")
		return
	}
	t.wg.Go(func() {
		if _, err := t.PollOnce(ctx); err != nil && !errors.Is(err, ErrPollInFlight) {
			logger.WithComponent("tracker").Warn().Err(err).Msg("Window poll failed")
		}
	})
}

// PollOnce runs a single poll and diff. It returns ErrPollInFlight if
// another poll holds the guard. A failed list command leaves the tracked
// windows untouched.
func (t *Tracker) PollOnce(ctx context.Context) (Changes, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return Changes{}, ErrPollInFlight
	}
	defer func() {
		t.setPhase(PhaseIdle)
		t.busy.Store(false)
	}()

	log := logger.WithComponent("tracker")

	t.setPhase(PhasePolling)
	pollCtx := ctx
	if t.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, t.cfg.PollTimeout)
		defer cancel()
	}
	snap, err := t.backend.ListWindows(pollCtx)
	if err != nil {
		return Changes{}, err
	}

	t.setPhase(PhaseDiffing)
	t.mu.Lock()
	next, changes := Diff(t.state, snap, t.cfg.ShellTitle)
	t.resolveNames(&next, &changes)
	t.inheritIcons(&next, &changes)
	t.state = next
	t.mu.Unlock()

	if changes.ShellPID > 0 {
		log.Debug().Int("pid", changes.ShellPID).Msg("Shell window seen")
	}
	if !changes.Empty() {
		log.Debug().
			Str("trend", changes.Trend.String()).
			Int("added", len(changes.Added)).
			Int("removed", len(changes.Removed)).
			Int("updated", len(changes.Updated)).
			Int("tracked", len(next.Windows)).
			Msg("Window list changed")
	}

	if t.store != nil {
		for _, w := range changes.Removed {
			if _, alive := next.Processes[w.PID]; !alive {
				t.store.Delete(w.PID)
			}
		}
	}

	t.publish(changes)
	t.requestIcons(ctx, changes.IconRequests)

	return changes, nil
}

// resolveNames fills AppName for new processes. Caller holds t.mu.
func (t *Tracker) resolveNames(s *State, c *Changes) {
	if t.names == nil {
		return
	}
	for i, rec := range c.IconRequests {
		rec.Name = t.names.AppName(rec.PID)
		s.Processes[rec.PID] = rec
		c.IconRequests[i] = rec
	}
	for i := range s.Windows {
		if s.Windows[i].AppName == "" {
			s.Windows[i].AppName = s.Processes[s.Windows[i].PID].Name
		}
	}
	for i := range c.Added {
		if c.Added[i].AppName == "" {
			c.Added[i].AppName = s.Processes[c.Added[i].PID].Name
		}
	}
}

// inheritIcons marks added windows of a process that already has an icon,
// either stored or shown on a sibling window. Caller holds t.mu.
func (t *Tracker) inheritIcons(s *State, c *Changes) {
	if len(c.Added) == 0 {
		return
	}
	withIcon := make(map[int]bool)
	for _, w := range s.Windows {
		if w.PID > 0 && w.HasIcon {
			withIcon[w.PID] = true
		}
	}
	if t.store != nil {
		for _, w := range c.Added {
			if _, ok := t.store.Get(w.PID); ok && w.PID > 0 {
				withIcon[w.PID] = true
			}
		}
	}

	for i := range s.Windows {
		if withIcon[s.Windows[i].PID] {
			s.Windows[i].HasIcon = true
		}
	}
	for i := range c.Added {
		if withIcon[c.Added[i].PID] {
			c.Added[i].HasIcon = true
		}
	}
}

// requestIcons hands new processes to the icon queue. Enqueue blocks while
// the queue is full, which holds the poll guard and throttles later polls.
func (t *Tracker) requestIcons(ctx context.Context, recs []ProcessRecord) {
	if t.icons == nil {
		return
	}
	for _, rec := range recs {
		if t.store != nil {
			if _, ok := t.store.Get(rec.PID); ok {
				t.SetIcon(rec.PID)
				continue
			}
		}
		err := t.icons.Enqueue(ctx, icon.Request{PID: rec.PID, WindowID: rec.SampleWindowID})
		if err != nil {
			logger.WithComponent("tracker").Warn().Err(err).Int("pid", rec.PID).Msg("Icon request dropped")
			t.forgetProcess(rec)
			continue
		}
	}
}

// forgetProcess drops rec from the known processes so the next poll
// requests its icon again.
func (t *Tracker) forgetProcess(rec ProcessRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.state.Processes[rec.PID]; ok && cur.SampleWindowID == rec.SampleWindowID {
		delete(t.state.Processes, rec.PID)
	}
}

// HandleIcon is an icon.ResultFunc storing the icon and marking windows
func (t *Tracker) HandleIcon(req icon.Request, ic icon.Icon, err error) {
	if err != nil || len(ic.PNG) == 0 {
		return
	}
	if t.store != nil {
		t.store.Put(req.PID, ic.PNG)
	}
	t.SetIcon(req.PID)
}

// SetIcon marks every window of pid as having an icon
func (t *Tracker) SetIcon(pid int) {
	t.mu.Lock()
	var marked []TrackedWindow
	for i := range t.state.Windows {
		if t.state.Windows[i].PID == pid && !t.state.Windows[i].HasIcon {
			t.state.Windows[i].HasIcon = true
			marked = append(marked, t.state.Windows[i])
		}
	}
	t.mu.Unlock()

	for _, w := range marked {
		t.notify(Event{Kind: EventIcon, Window: w})
	}
}

// Windows returns a copy of the tracked windows in discovery order
func (t *Tracker) Windows() []TrackedWindow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]TrackedWindow(nil), t.state.Windows...)
}

// Window returns one tracked window
func (t *Tracker) Window(id string) (TrackedWindow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, w := range t.state.Windows {
		if w.ID == id {
			return w, true
		}
	}
	return TrackedWindow{}, false
}

// ShellPID returns the remembered shell process id
func (t *Tracker) ShellPID() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.ShellPID
}

// Phase returns the current poll phase
func (t *Tracker) Phase() Phase {
	return Phase(t.phase.Load())
}

func (t *Tracker) setPhase(p Phase) {
	t.phase.Store(int32(p))
}

// Activate raises a tracked window
func (t *Tracker) Activate(ctx context.Context, id string) error {
	if _, ok := t.Window(id); !ok {
		return ErrUnknownWindow
	}
	return t.backend.Activate(ctx, id)
}

// Subscribe adds a listener for window changes
func (t *Tracker) Subscribe() chan Event {
	ch := make(chan Event, 32)
	t.mu.Lock()
	t.listeners = append(t.listeners, ch)
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (t *Tracker) Unsubscribe(ch chan Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, listener := range t.listeners {
		if listener == ch {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (t *Tracker) publish(c Changes) {
	for _, w := range c.Removed {
		t.notify(Event{Kind: EventRemoved, Window: w})
	}
	for _, w := range c.Updated {
		t.notify(Event{Kind: EventUpdated, Window: w})
	}
	for _, w := range c.Added {
		t.notify(Event{Kind: EventAdded, Window: w})
	}
}

func (t *Tracker) notify(ev Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, listener := range t.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}
