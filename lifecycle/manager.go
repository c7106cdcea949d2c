// Package lifecycle keeps a session's credential alive: it schedules proactive
// refreshes ahead of expiry, reacts to heartbeat ticks, visibility regain and
// changes made by other tabs, and logs out when a refresh fails.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/jrsteele09/go-session-keeper/expiry"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/jrsteele09/go-session-keeper/refresh"
	"github.com/jrsteele09/go-session-keeper/sessions"
	"github.com/rs/zerolog"
)

const (
	DefaultBuffer    = 2 * time.Minute
	DefaultHeartbeat = 30 * time.Second
)

var (
	ErrAlreadyStarted = errors.ErrAlreadyStarted
	ErrNotRunning     = errors.ErrNotRunning
)

// StateChangeFunc observes transitions. It runs on the manager's event loop
// and must not call Stop.
type StateChangeFunc func(from, to State)

type result struct {
	attempt uint64
	next    time.Time
	err     error
}

// Manager is mounted once per active session. All timer, heartbeat,
// visibility, cross-tab and refresh events are handled on a single event
// loop goroutine; only the refresh call itself runs elsewhere.
type Manager struct {
	signal    *crosstab.Signal
	sessions  sessions.Store
	refresher *refresh.Refresher

	clock         clockwork.Clock
	expiryClock   expiry.Clock
	buffer        time.Duration
	heartbeat     time.Duration
	logger        zerolog.Logger
	onStateChange StateChangeFunc
	refreshOpts   []refresh.RefresherOption

	mu      sync.Mutex
	state   State
	expiry  time.Time
	started bool

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	visible        chan struct{}
	refreshNow     chan struct{}
	sessionChanged chan struct{}
	foreignKick    chan struct{}
	results        chan result

	foreignMu sync.Mutex
	pending   []crosstab.ExpiryChange

	// Owned by the event loop once Start returns.
	timer       clockwork.Timer
	ticker      clockwork.Ticker
	unsubscribe func()
	attempt     uint64
	bgCtx       context.Context
}

type Option func(*Manager)

// WithClock sets the clock that drives timers, the heartbeat and expiry
// arithmetic.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithBuffer sets how long before expiry the proactive refresh runs.
func WithBuffer(buffer time.Duration) Option {
	return func(m *Manager) {
		m.buffer = buffer
	}
}

// WithHeartbeat sets the backstop check interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(m *Manager) {
		m.heartbeat = interval
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithStateChange(fn StateChangeFunc) Option {
	return func(m *Manager) {
		m.onStateChange = fn
	}
}

// WithRefresherOptions passes options such as a tracer or timeout to the
// manager's refresher.
func WithRefresherOptions(options ...refresh.RefresherOption) Option {
	return func(m *Manager) {
		m.refreshOpts = append(m.refreshOpts, options...)
	}
}

// New builds a manager that refreshes through endpoint, shares the expiry
// through signal and reads the user from store.
func New(endpoint refresh.Endpoint, signal *crosstab.Signal, store sessions.Store, options ...Option) *Manager {
	m := &Manager{
		signal:         signal,
		sessions:       store,
		clock:          clockwork.NewRealClock(),
		buffer:         DefaultBuffer,
		heartbeat:      DefaultHeartbeat,
		logger:         zerolog.Nop(),
		done:           make(chan struct{}),
		exited:         make(chan struct{}),
		visible:        make(chan struct{}, 1),
		refreshNow:     make(chan struct{}, 1),
		sessionChanged: make(chan struct{}, 1),
		foreignKick:    make(chan struct{}, 1),
		results:        make(chan result),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.heartbeat <= 0 {
		m.heartbeat = DefaultHeartbeat
	}
	if m.buffer < 0 {
		m.buffer = 0
	}
	m.logger = m.logger.With().Str("component", "lifecycle").Logger()
	m.expiryClock = expiry.New(m.clock.Now)

	opts := append([]refresh.RefresherOption{
		refresh.WithClock(m.expiryClock),
		refresh.WithLogger(m.logger),
	}, m.refreshOpts...)
	m.refresher = refresh.NewRefresher(endpoint, opts...)
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Expiry returns the token expiry the manager is scheduling against, or the
// zero time if it has none.
func (m *Manager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry
}

// RefreshInFlight reports whether a refresh call is outstanding.
func (m *Manager) RefreshInFlight() bool {
	return m.refresher.InFlight()
}

// Done is closed once the manager reaches Disabled and has released its
// timers.
func (m *Manager) Done() <-chan struct{} {
	return m.exited
}

// Start mounts the manager. The initial evaluation happens before Start
// returns; ctx bounds the event loop, and its cancellation acts like Stop.
// Refresh calls already in flight are not cancelled with it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	unsubscribe, err := m.signal.OnForeignChange(m.enqueueForeign)
	if err != nil {
		close(m.exited)
		m.setState(Disabled)
		return errors.Wrapf(err, "Manager.Start")
	}
	m.unsubscribe = unsubscribe
	m.bgCtx = context.WithoutCancel(ctx)
	m.ticker = m.clock.NewTicker(m.heartbeat)

	m.mount()
	go m.run(ctx)
	return nil
}

// Stop unmounts the manager. Timers are released before Stop returns, and a
// refresh that settles afterwards changes nothing. Stop is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	m.stopOnce.Do(func() { close(m.done) })
	<-m.exited
}

// VisibilityRegained reports that the host became visible again, for
// example after a device sleep. It never blocks.
func (m *Manager) VisibilityRegained() {
	trigger(m.visible)
}

// RefreshNow asks for an immediate refresh if one is scheduled.
func (m *Manager) RefreshNow() {
	trigger(m.refreshNow)
}

// SessionChanged tells the manager the session store's user changed.
func (m *Manager) SessionChanged() {
	trigger(m.sessionChanged)
}

func trigger(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// enqueueForeign runs on the store's delivery goroutine and must not block.
func (m *Manager) enqueueForeign(change crosstab.ExpiryChange) {
	m.foreignMu.Lock()
	m.pending = append(m.pending, change)
	m.foreignMu.Unlock()
	trigger(m.foreignKick)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.exited)
	defer m.teardown()

	for m.State() != Disabled {
		var timerC <-chan time.Time
		if m.timer != nil {
			timerC = m.timer.Chan()
		}

		select {
		case <-m.done:
			m.logger.Debug().Msg("stopped")
			return
		case <-ctx.Done():
			m.logger.Debug().Err(ctx.Err()).Msg("context done")
			return
		case <-timerC:
			m.timer = nil
			m.onTimer()
		case <-m.ticker.Chan():
			m.evaluate("heartbeat")
		case <-m.visible:
			m.evaluate("visibility")
		case <-m.sessionChanged:
			m.evaluate("session changed")
		case <-m.refreshNow:
			m.onRefreshNow()
		case <-m.foreignKick:
			m.drainForeign()
		case r := <-m.results:
			m.onResult(r)
		}
	}
}

func (m *Manager) teardown() {
	m.stopTimer()
	if m.ticker != nil {
		m.ticker.Stop()
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.attempt++
	m.setState(Disabled)
}

// mount performs the initial evaluation.
func (m *Manager) mount() {
	user, ok := m.sessions.User()
	if !ok {
		m.logger.Debug().Msg("no user at mount")
		return
	}
	exp, ok := m.readStoredExpiry()
	if !ok {
		m.logger.Debug().Str("user", user.ID).Msg("no token expiry at mount")
		return
	}
	m.setExpiry(exp)
	m.schedule(exp)
}

// evaluate re-checks the user and the stored expiry, then reschedules, or
// refreshes at once when the refresh point has already passed.
func (m *Manager) evaluate(reason string) {
	state := m.State()
	log := m.logger.With().Str("trigger", reason).Str("state", state.String()).Logger()

	_, userPresent := m.sessions.User()
	switch state {
	case Disabled:
		return
	case Refreshing:
		if !userPresent {
			log.Info().Msg("user gone during refresh")
			m.attempt++
			m.setState(Idle)
		}
		return
	}

	if !userPresent {
		if state != Idle {
			log.Info().Msg("user gone")
		}
		m.stopTimer()
		m.setState(Idle)
		return
	}

	exp, ok := m.readStoredExpiry()
	if !ok {
		if state == Scheduled {
			// The removal notice was missed; the expiry is only ever removed by logout.
			log.Info().Msg("token expiry gone from store")
			m.disableForeign()
		}
		return
	}
	if !exp.Equal(m.Expiry()) {
		log.Debug().Time("expiry", exp).Msg("adopting stored expiry")
		m.setExpiry(exp)
	}
	m.schedule(exp)
}

func (m *Manager) onTimer() {
	if m.State() != Scheduled {
		return
	}
	if _, ok := m.sessions.User(); !ok {
		m.setState(Idle)
		return
	}
	m.startRefresh("timer")
}

func (m *Manager) onRefreshNow() {
	if m.State() != Scheduled {
		m.logger.Debug().Str("state", m.State().String()).Msg("refresh now ignored")
		return
	}
	if _, ok := m.sessions.User(); !ok {
		m.stopTimer()
		m.setState(Idle)
		return
	}
	m.startRefresh("refresh now")
}

func (m *Manager) drainForeign() {
	m.foreignMu.Lock()
	changes := m.pending
	m.pending = nil
	m.foreignMu.Unlock()

	for _, c := range changes {
		if m.State() == Disabled {
			return
		}
		if c.Cleared {
			m.logger.Info().Msg("logged out in another tab")
			m.disableForeign()
			return
		}
		m.logger.Debug().Time("expiry", c.Expiry).Msg("expiry updated in another tab")
		m.setExpiry(c.Expiry)
		if m.State() == Refreshing {
			continue
		}
		if _, ok := m.sessions.User(); ok {
			m.schedule(c.Expiry)
		}
	}
}

// disableForeign handles a logout performed elsewhere: the identity is
// cleared locally and no logout call is made.
func (m *Manager) disableForeign() {
	m.stopTimer()
	m.attempt++
	m.setExpiry(time.Time{})
	m.setState(Disabled)
	m.sessions.SetUser(nil)
}

// schedule arms the refresh timer for exp, or refreshes at once when the
// refresh point has passed.
func (m *Manager) schedule(exp time.Time) {
	delay := m.expiryClock.RefreshDelay(exp, m.buffer)
	if delay == 0 {
		m.startRefresh("due")
		return
	}
	m.stopTimer()
	m.timer = m.clock.NewTimer(delay)
	m.logger.Debug().Dur("delay", delay).Time("expiry", exp).Msg("refresh scheduled")
	m.setState(Scheduled)
}

func (m *Manager) startRefresh(reason string) {
	m.stopTimer()
	m.attempt++
	attempt := m.attempt
	previous := m.Expiry()
	m.setState(Refreshing)
	m.logger.Debug().Str("trigger", reason).Msg("refresh started")

	go func() {
		next, err := m.refresher.Refresh(m.bgCtx, previous)
		select {
		case m.results <- result{attempt: attempt, next: next, err: err}:
		case <-m.exited:
		}
	}()
}

func (m *Manager) onResult(r result) {
	if r.attempt != m.attempt || m.State() != Refreshing {
		m.logger.Debug().Err(r.err).Msg("discarding stale refresh result")
		return
	}

	switch {
	case errors.Is(r.err, refresh.ErrRefreshInFlight):
		// Someone else holds the refresher; the next trigger re-evaluates.
		m.setState(Scheduled)
	case r.err != nil:
		m.logger.Warn().Err(r.err).Msg("refresh failed, logging out")
		m.setState(Disabled)
		if err := m.sessions.Logout(m.bgCtx); err != nil {
			m.logger.Error().Err(err).Msg("logout")
		}
	default:
		m.setExpiry(r.next)
		if err := m.signal.WriteExpiry(r.next); err != nil {
			m.logger.Error().Err(err).Msg("publishing expiry")
		}
		if err := m.signal.TouchActivity(m.clock.Now()); err != nil {
			m.logger.Warn().Err(err).Msg("touching last activity")
		}
		m.schedule(r.next)
	}
}

func (m *Manager) readStoredExpiry() (time.Time, bool) {
	exp, ok, err := m.signal.ReadExpiry()
	if err != nil {
		m.logger.Warn().Err(err).Msg("reading token expiry")
		return time.Time{}, false
	}
	return exp, ok
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setExpiry(t time.Time) {
	m.mu.Lock()
	m.expiry = t
	m.mu.Unlock()
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	if from == Disabled || from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	if m.onStateChange != nil {
		m.onStateChange(from, to)
	}
}
