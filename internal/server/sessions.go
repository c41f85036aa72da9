package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/gosched/internal/scheduler"
	"github.com/me/gosched/pkg/model"
)

// Session is an interactive simulation stepped by API calls. The engine is
// not goroutine-safe, so every access goes through the session lock.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time

	mu       sync.Mutex
	engine   *scheduler.Engine
	lastUsed time.Time
	streams  int
}

var _ scheduler.Scheduler = (*Session)(nil)

// Tick advances the session by one scheduling decision. A session that has
// spent its tick budget answers MaxTicksExceededError.
func (s *Session) Tick(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.engine.State().IsTerminal() && s.engine.Ticks() >= s.engine.Config().MaxTicks {
		return s.engine.Snapshot(), &model.MaxTicksExceededError{
			MaxTicks: s.engine.Config().MaxTicks,
			Clock:    s.engine.Clock(),
		}
	}
	return s.engine.Tick(ctx)
}

// Run drives the session to completion.
func (s *Session) Run(ctx context.Context) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Run(ctx)
}

// SessionView is the JSON representation of a session.
type SessionView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	Snapshot  model.Snapshot  `json:"snapshot"`
	Processes []model.Process `json:"processes"`
	Stats     model.Stats     `json:"stats"`
	Timeline  []model.Slice   `json:"timeline"`
}

// View returns a consistent copy of the session state.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.engine.Result()
	return SessionView{
		ID:        s.ID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		Snapshot:  s.engine.Snapshot(),
		Processes: s.engine.Processes(),
		Stats:     res.Stats,
		Timeline:  res.Timeline,
	}
}

// Result returns the session's result so far.
func (s *Session) Result() *model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Result()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// SessionLimitError is returned when the registry is full.
type SessionLimitError struct {
	Max int
}

func (e *SessionLimitError) Error() string {
	return fmt.Sprintf("session limit reached (%d open sessions)", e.Max)
}

// SessionRegistry tracks open interactive sessions and expires idle ones.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	max      int
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionRegistry creates a registry. A non-positive ttl keeps sessions
// until deleted; a non-positive max leaves the count unbounded.
func NewSessionRegistry(ttl time.Duration, maxSessions int, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		max:      maxSessions,
		now:      time.Now,
		logger:   logger.With("component", "sessions"),
	}
}

// Create registers a new session around eng.
func (r *SessionRegistry) Create(name string, eng *scheduler.Engine) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, &SessionLimitError{Max: r.max}
	}
	now := r.now()
	sess := &Session{
		ID:        "ses_" + uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		engine:    eng,
		lastUsed:  now,
	}
	r.sessions[sess.ID] = sess
	r.logger.Debug("session created", "session_id", sess.ID, "name", name)
	return sess, nil
}

// Get returns the session and marks it used.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		sess.touch(r.now())
	}
	return sess, ok
}

// Delete removes a session. It reports whether the session existed.
func (r *SessionRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.logger.Debug("session deleted", "session_id", id)
	return true
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Purge removes sessions idle for longer than the TTL. Sessions with an
// attached stream are kept. It returns the number removed.
func (r *SessionRegistry) Purge() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	purged := 0
	for id, sess := range r.sessions {
		sess.mu.Lock()
		idle := sess.streams == 0 && sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			purged++
		}
	}
	if purged > 0 {
		r.logger.Info("idle sessions purged", "count", purged, "remaining", len(r.sessions))
	}
	return purged
}

// RunJanitor calls Purge every interval until ctx is cancelled.
func (r *SessionRegistry) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Purge()
		}
	}
}

// attach marks a stream as reading from the session; the returned func
// detaches it.
func (s *Session) attach() func() {
	s.mu.Lock()
	s.streams++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.streams--
		s.lastUsed = time.Now()
		s.mu.Unlock()
	}
}
