// Package store provides transcript storage backends for Livreo.
//
// Every inbound and outbound message is logged with the session step it was
// handled at, which is what support needs to replay a conversation. An
// in-memory store backs tests; SQLite and PostgreSQL back deployments.
package store

import (
	"sort"
	"sync"
	"time"
)

// Transcript directions.
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// TranscriptEntry is one logged message of a conversation.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	Step      string    `json:"step"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the transcript persistence interface.
type Store interface {
	LogTurn(entry TranscriptEntry) error
	// RecentTurns returns up to limit entries for a user, newest first.
	RecentTurns(userID string, limit int) ([]TranscriptEntry, error)
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a simple in-memory transcript store.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// LogTurn implements Store.
func (s *InMemoryStore) LogTurn(entry TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// RecentTurns implements Store.
func (s *InMemoryStore) RecentTurns(userID string, limit int) ([]TranscriptEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TranscriptEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }
