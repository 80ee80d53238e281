// Package session provides the in-memory per-user session store.
//
// Each session id owns a private mutex so that two messages from the same user
// never mutate the session concurrently, while unrelated users proceed fully
// in parallel. Sessions idle past the TTL are swept by a background loop.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/livreo/livreo/internal/models"
)

// Constants for session store configuration.
const (
	// DefaultIdleTTL is how long an untouched session survives before the sweep.
	DefaultIdleTTL = 24 * time.Hour
	// DefaultSweepInterval is how often the idle sweep runs.
	DefaultSweepInterval = 10 * time.Minute
)

// Opts holds configuration options for the session store.
type Opts struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Option defines a configuration option for the session store.
type Option func(*Opts)

// WithIdleTTL sets how long an idle session is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(o *Opts) { o.IdleTTL = d }
}

// WithSweepInterval sets how often idle sessions are collected.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) { o.SweepInterval = d }
}

// entry pairs a session with the mutex serializing its mutations.
type entry struct {
	mu      sync.Mutex
	session *models.Session
}

// Store holds all live sessions keyed by user identifier.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store, applying any provided options.
func NewStore(opts ...Option) *Store {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	slog.Debug("Session store created", "idle_ttl", cfg.IdleTTL, "sweep_interval", cfg.SweepInterval)
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      cfg.IdleTTL,
		interval: cfg.SweepInterval,
		done:     make(chan struct{}),
	}
}

// lookup returns the entry for id, creating it with session defaults if absent.
func (st *Store) lookup(id string) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[id]
	if !ok {
		e = &entry{session: models.NewSession(id)}
		st.sessions[id] = e
		slog.Debug("Session created", "id", id)
	}
	return e
}

// Get returns the session for id, creating it with defaults if absent.
// Two consecutive calls without mutation return the same session.
func (st *Store) Get(id string) *models.Session {
	return st.lookup(id).session
}

// Dispatch runs fn holding the session's private lock. This is the only way a
// message handler may mutate a session; the lock is held for the duration of
// fn, including its outbound platform calls.
func (st *Store) Dispatch(id string, fn func(s *models.Session) error) error {
	e := st.lookup(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastSeen = time.Now()
	return fn(e.session)
}

// Reset clears the session's draft and context, preserving auth and user
// unless keepAuth is false.
func (st *Store) Reset(id string, keepAuth bool) {
	e := st.lookup(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Reset(keepAuth)
	slog.Debug("Session reset", "id", id, "keep_auth", keepAuth)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Start launches the idle sweep loop. It returns immediately.
func (st *Store) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(st.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st.sweep()
			case <-ctx.Done():
				return
			case <-st.done:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (st *Store) Stop() {
	st.stopOnce.Do(func() { close(st.done) })
}

// sweep drops sessions idle past the TTL.
func (st *Store) sweep() {
	cutoff := time.Now().Add(-st.ttl)
	st.mu.Lock()
	var expired []string
	for id, e := range st.sessions {
		if e.session.LastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if len(expired) > 0 {
		slog.Info("Session sweep removed idle sessions", "count", len(expired))
	}
}
