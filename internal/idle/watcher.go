// Package idle enforces the idle budget from inside an open page. A Watcher
// per browser tab runs two mutually exclusive timers against the persisted
// activity marker: the idle timer moves the session into a warning window and
// the warning timer logs it out.
//
// Tabs of the same principal share the marker. Activity in one tab therefore
// pushes back the deadline every other tab is counting toward; each timer
// re-reads the marker before acting and rearms when it finds newer activity.
// That trade favours availability over strict per-tab enforcement and is
// intentional.
package idle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/careportal/careportal/internal/observability"
	"github.com/careportal/careportal/internal/session"
)

// State is the watcher lifecycle.
type State int

const (
	StateActive State = iota
	StateWarning
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	default:
		return "logged_out"
	}
}

// MarkerStore persists the shared activity marker.
type MarkerStore interface {
	Touch(ctx context.Context, sid string, at time.Time) error
	LastActivity(ctx context.Context, sid string) (time.Time, bool, error)
	ClearActivity(ctx context.Context, sid string) error
}

var _ MarkerStore = (*session.Store)(nil)

// Config wires a Watcher.
type Config struct {
	SessionID string
	// Budget is the full idle budget; Window is the warning period at its end.
	Budget time.Duration
	Window time.Duration
	Store  MarkerStore
	// Logout invalidates the session server side. It must tolerate repeated
	// calls.
	Logout  func(ctx context.Context, reason LogoutReason) error
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics

	OnWarning func(remaining time.Duration)
	OnActive  func()
	OnLogout  func(reason LogoutReason)
}

// LogoutReason records what ended a session.
type LogoutReason int

const (
	// ReasonIdle covers timer expiry and the focus re-check.
	ReasonIdle LogoutReason = iota
	// ReasonSignOut is an explicit sign-out sent by the agent.
	ReasonSignOut
)

func (r LogoutReason) String() string {
	if r == ReasonSignOut {
		return "sign_out"
	}
	return "idle"
}

const logoutTimeout = 5 * time.Second

// Watcher tracks one tab. Timer callbacks run on their own goroutines; a
// generation counter turns callbacks of superseded timers into no-ops and
// at most one timer is armed at any time.
type Watcher struct {
	cfg Config

	mu      sync.Mutex
	ctx     context.Context
	state   State
	timer   clockwork.Timer
	gen     uint64
	last    time.Time
	started bool
	stopped bool
}

// NewWatcher constructs a Watcher. Start arms it.
func NewWatcher(cfg Config) *Watcher {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Window >= cfg.Budget {
		cfg.Window = cfg.Budget / 2
	}
	return &Watcher{cfg: cfg, ctx: context.Background()}
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start reads the persisted marker, stamps it when missing and arms the
// appropriate timer. A marker already past the budget logs out at once.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.ctx = context.WithoutCancel(ctx)
	now := w.cfg.Clock.Now()
	last, ok := w.readMarker(ctx)
	if !ok {
		w.touch(ctx, now)
		last = now
	}
	w.last = last
	fire := w.evaluate(now.Sub(last))
	w.mu.Unlock()
	fire()
}

// Activity records user input. It only counts while Active: once the warning
// is showing, nothing but an explicit Continue resumes the session.
func (w *Watcher) Activity(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.live() || w.state != StateActive {
		return
	}
	now := w.cfg.Clock.Now()
	w.touch(ctx, now)
	w.armIdle(w.idleAfter())
}

// Continue answers the warning: the marker is stamped, the watcher returns
// to Active and the idle timer starts over.
func (w *Watcher) Continue(ctx context.Context) {
	w.mu.Lock()
	if !w.live() {
		w.mu.Unlock()
		return
	}
	wasWarning := w.state == StateWarning
	w.touch(ctx, w.cfg.Clock.Now())
	w.state = StateActive
	w.armIdle(w.idleAfter())
	w.mu.Unlock()
	if wasWarning {
		w.transitioned(StateActive)
		if w.cfg.OnActive != nil {
			w.cfg.OnActive()
		}
	}
}

// Focus re-checks the deadline when the tab regains focus. Timers of a
// background tab may have been delayed, so elapsed time is rebuilt from the
// persisted marker.
func (w *Watcher) Focus(ctx context.Context) {
	w.mu.Lock()
	if !w.live() {
		w.mu.Unlock()
		return
	}
	last, ok := w.readMarker(ctx)
	if ok {
		w.last = session.Latest(w.last, last)
	}
	fire := w.evaluate(w.cfg.Clock.Now().Sub(w.last))
	w.mu.Unlock()
	fire()
}

// LogoutNow ends the session immediately, as a "sign out" click does. It is
// safe to race with the warning timer.
func (w *Watcher) LogoutNow() {
	w.mu.Lock()
	if !w.live() {
		w.mu.Unlock()
		return
	}
	fire := w.beginLogout(ReasonSignOut)
	w.mu.Unlock()
	fire()
}

// Stop disarms the watcher. No transition fires after Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) live() bool {
	return w.started && !w.stopped && w.state != StateLoggedOut
}

func (w *Watcher) idleAfter() time.Duration {
	return w.cfg.Budget - w.cfg.Window
}

// evaluate moves the watcher to the state matching elapsed idle time and arms
// the matching timer. The returned func runs callbacks and must be called
// after the lock is released.
func (w *Watcher) evaluate(elapsed time.Duration) func() {
	switch {
	case elapsed >= w.cfg.Budget:
		return w.beginLogout(ReasonIdle)
	case elapsed >= w.idleAfter():
		remaining := w.cfg.Budget - elapsed
		entering := w.state != StateWarning
		w.state = StateWarning
		w.armWarning(remaining)
		return func() {
			if entering {
				w.transitioned(StateWarning)
			}
			if w.cfg.OnWarning != nil {
				w.cfg.OnWarning(remaining)
			}
		}
	default:
		leaving := w.state == StateWarning
		w.state = StateActive
		w.armIdle(w.idleAfter() - elapsed)
		return func() {
			if leaving {
				w.transitioned(StateActive)
				if w.cfg.OnActive != nil {
					w.cfg.OnActive()
				}
			}
		}
	}
}

func (w *Watcher) armIdle(d time.Duration) {
	w.arm(d, w.onIdle)
}

func (w *Watcher) armWarning(d time.Duration) {
	w.arm(d, w.onWarning)
}

func (w *Watcher) arm(d time.Duration, fn func(gen uint64)) {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	if d < 0 {
		d = 0
	}
	w.timer = w.cfg.Clock.AfterFunc(d, func() { fn(gen) })
}

func (w *Watcher) onIdle(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.live() || w.state != StateActive {
		w.mu.Unlock()
		return
	}
	fire := w.recheck()
	w.mu.Unlock()
	fire()
}

func (w *Watcher) onWarning(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.live() || w.state != StateWarning {
		w.mu.Unlock()
		return
	}
	fire := w.recheck()
	w.mu.Unlock()
	fire()
}

// recheck re-reads the shared marker before a timer acts so activity from
// another tab rearms instead of warning or logging out.
func (w *Watcher) recheck() func() {
	last, ok := w.readMarker(w.ctx)
	if ok {
		w.last = session.Latest(w.last, last)
	}
	elapsed := w.cfg.Clock.Now().Sub(w.last)
	if w.state == StateWarning && elapsed < w.cfg.Budget && elapsed >= w.idleAfter() {
		// Warning timer fired early relative to a newer marker; keep waiting.
		w.armWarning(w.cfg.Budget - elapsed)
		return func() {}
	}
	return w.evaluate(elapsed)
}

// beginLogout marks the watcher logged out. The returned func performs the
// logout outside the lock. It runs at most once per watcher.
func (w *Watcher) beginLogout(reason LogoutReason) func() {
	if w.state == StateLoggedOut {
		return func() {}
	}
	w.state = StateLoggedOut
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	ctx := w.ctx
	return func() {
		w.transitioned(StateLoggedOut)
		lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
		defer cancel()
		if w.cfg.Logout != nil {
			if err := w.cfg.Logout(lctx, reason); err != nil {
				w.cfg.Logger.Warn("idle logout", slog.String("session", w.cfg.SessionID), slog.String("reason", reason.String()), slog.Any("error", err))
			}
		}
		if w.cfg.Store != nil {
			if err := w.cfg.Store.ClearActivity(lctx, w.cfg.SessionID); err != nil {
				w.cfg.Logger.Warn("idle clear marker", slog.String("session", w.cfg.SessionID), slog.Any("error", err))
			}
		}
		if w.cfg.OnLogout != nil {
			w.cfg.OnLogout(reason)
		}
	}
}

func (w *Watcher) readMarker(ctx context.Context) (time.Time, bool) {
	if w.cfg.Store == nil {
		return w.last, !w.last.IsZero()
	}
	at, ok, err := w.cfg.Store.LastActivity(ctx, w.cfg.SessionID)
	if err != nil {
		w.cfg.Logger.Warn("idle read marker", slog.String("session", w.cfg.SessionID), slog.Any("error", err))
		return w.last, !w.last.IsZero()
	}
	if !ok {
		return w.last, !w.last.IsZero()
	}
	return at, true
}

func (w *Watcher) touch(ctx context.Context, at time.Time) {
	w.last = at
	if w.cfg.Store == nil {
		return
	}
	if err := w.cfg.Store.Touch(ctx, w.cfg.SessionID, at); err != nil {
		w.cfg.Logger.Warn("idle touch marker", slog.String("session", w.cfg.SessionID), slog.Any("error", err))
	}
}

func (w *Watcher) transitioned(s State) {
	w.cfg.Metrics.IdleTransition(s.String())
}
