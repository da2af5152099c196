package auth

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Record is the persisted credential set. An empty RefreshToken means
// signed out; a zero Expiry is always treated as expired.
type Record struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Identity     string
}

// Token converts the record into an oauth2 bearer token.
func (r Record) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
	}
}

// RecordFromToken builds a record from a stored oauth2 token. A nil token
// yields the signed-out record.
func RecordFromToken(tok *oauth2.Token, identity string) Record {
	if tok == nil {
		return Record{}
	}
	return Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Identity:     identity,
	}
}

// Store holds the current record and is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	record Record
}

// NewStore returns a store seeded with rec.
func NewStore(rec Record) *Store {
	return &Store{record: rec}
}

// Get returns a copy of the current record.
func (s *Store) Get() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// Set replaces the current record.
func (s *Store) Set(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
}

// Update applies fn to the record under the write lock and returns the result.
func (s *Store) Update(fn func(*Record)) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.record)
	return s.record
}

// Clear resets every field.
func (s *Store) Clear() {
	s.Set(Record{})
}
