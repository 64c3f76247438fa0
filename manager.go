package session

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Listener receives a state snapshot after every transition.
type Listener func(state State)

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithLogger overrides the logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithTokenInspector sets the inspector used during restoration to derive
// display facts from a recovered token.
func WithTokenInspector(inspector TokenInspector) ManagerOption {
	return func(m *Manager) {
		m.inspector = inspector
	}
}

// Manager is the session state machine. It performs no network I/O; it only
// records outcomes reported by credential exchange operations, and persists
// the access token through the credential store.
type Manager struct {
	mu           sync.RWMutex
	state        State
	store        CredentialStore
	logger       Logger
	now          func() time.Time
	activitySink ActivitySink
	inspector    TokenInspector

	restoreOnce sync.Once
	restoreErr  error

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextListen int
}

var _ SessionManager = (*Manager)(nil)

// NewManager returns a Manager in the unresolved loading state. Call
// Initialize exactly once at process start to resolve it.
func NewManager(store CredentialStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		state:        initialState(),
		store:        store,
		logger:       defLogger{},
		now:          time.Now,
		activitySink: noopActivitySink{},
		listeners:    map[int]Listener{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.store == nil {
		m.store = NewMemoryStore()
	}

	return m
}

// Initialize reconciles durable storage with in-memory state. A stored
// token is adopted provisionally without contacting the server; the next
// authenticated request proves or disproves it. Safe to call more than
// once; only the first call reads the store.
func (m *Manager) Initialize(ctx context.Context) (State, error) {
	m.restoreOnce.Do(func() {
		m.restoreErr = m.restore(ctx)
	})
	return m.Snapshot(), m.restoreErr
}

func (m *Manager) restore(ctx context.Context) error {
	token, err := m.store.Get(ctx)
	if err != nil && !IsStoreMiss(err) {
		// Unreadable storage resolves to unauthenticated rather than a
		// stuck loading state.
		m.logger.Error("session restore store read failed", "error", err)
		m.transition(func(s *State) {
			*s = resolvedState()
			m.stampResolved(s)
		})
		m.recordActivity(ctx, ActivityEventSessionError, "", map[string]any{
			"error": err.Error(),
		})
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read credential store")
	}

	if err != nil || token == "" {
		m.transition(func(s *State) {
			*s = resolvedState()
			m.stampResolved(s)
		})
		m.recordActivity(ctx, ActivityEventSessionRestoreEmpty, "", nil)
		return nil
	}

	var facts TokenFacts
	if m.inspector != nil {
		if f, err := m.inspector.Inspect(token); err == nil {
			facts = f
		} else {
			m.logger.Debug("session restore token inspection failed", "error", err)
		}
	}

	// The restored user is provisional: it exists so the session can be
	// treated as signed in until the next authenticated request proves or
	// disproves the token. UpdateUser replaces it with the real record.
	user := provisionalUser(facts)

	m.transition(func(s *State) {
		s.User = user
		s.AccessToken = token
		s.IsAuthenticated = true
		s.IsLoading = false
		s.Error = ""
		m.stampResolved(s)
	})

	m.recordActivity(ctx, ActivityEventSessionRestored, facts.Subject, map[string]any{
		"token_length": len(token),
		"expired":      facts.Expired,
	})

	return nil
}

// Login records a successful credential exchange and persists the token.
// The in-memory transition happens even when the durable write fails: the
// server already granted the session, the next restart just starts cold.
func (m *Manager) Login(ctx context.Context, user *User, accessToken string) error {
	if user != nil {
		user.EnsureStatus()
	}

	m.transition(func(s *State) {
		s.User = user
		s.AccessToken = accessToken
		s.IsAuthenticated = user != nil && accessToken != ""
		s.IsLoading = false
		s.Error = ""
		m.stampResolved(s)
	})

	var userID string
	if user != nil {
		userID = user.ID.String()
	}
	m.recordActivity(ctx, ActivityEventSessionLogin, userID, nil)

	if err := m.store.Set(ctx, accessToken); err != nil {
		m.logger.Error("session login store write failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist access token")
	}

	return nil
}

// Logout resets the session and clears the credential store. Idempotent:
// logging out an already logged-out session only re-clears storage.
func (m *Manager) Logout(ctx context.Context) error {
	var userID string
	m.transition(func(s *State) {
		if s.User != nil {
			userID = s.User.ID.String()
		}
		*s = resolvedState()
		m.stampResolved(s)
	})

	m.recordActivity(ctx, ActivityEventSessionLogout, userID, nil)

	if err := m.store.Delete(ctx); err != nil && !IsStoreMiss(err) {
		m.logger.Error("session logout store delete failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear access token")
	}

	return nil
}

// UpdateUser replaces the cached user record only. Token and authenticated
// flag are untouched; used after profile-mutating operations.
func (m *Manager) UpdateUser(user *User) {
	if user != nil {
		user.EnsureStatus()
	}
	m.transition(func(s *State) {
		s.User = user
	})
}

// SetLoading flags an in-flight exchange that gates rendering. Entering the
// loading phase clears any previous error.
func (m *Manager) SetLoading(loading bool) {
	m.transition(func(s *State) {
		s.IsLoading = loading
		if loading {
			s.Error = ""
		}
	})
}

// SetError records a failed operation. An error always terminates a loading
// phase. Pass the empty string to clear.
func (m *Manager) SetError(message string) {
	m.transition(func(s *State) {
		s.Error = message
		if message != "" {
			s.IsLoading = false
		}
	})
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe registers a listener notified after every transition. The
// returned function removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	m.listenerMu.Lock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

func (m *Manager) transition(mutate func(*State)) {
	m.mu.Lock()
	next := m.state.clone()
	mutate(&next)
	if !next.valid() {
		// Mutations funnel through the named operations, so a broken
		// invariant is a programming error worth failing loudly over.
		m.mu.Unlock()
		panic("go-session: state transition violates session invariants")
	}
	m.state = next
	snapshot := next.clone()
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Manager) notify(state State) {
	m.listenerMu.Lock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenerMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (m *Manager) stampResolved(s *State) {
	now := m.now()
	s.ResolvedAt = &now
}

func (m *Manager) recordActivity(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: m.now(),
	}

	if err := normalizeActivitySink(m.activitySink).Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error: %v", err)
	}
}
