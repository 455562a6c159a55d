// Package session accumulates partial form state across the independently
// delivered requests of one flow session. The store is the only shared
// mutable state in the endpoint; everything else is per-request.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const DefaultTTL = 30 * time.Minute

// Record is one flow session. It is created on first contact, mutated only
// inside WithSession, and dropped by the sweep once idle past the TTL. The
// terminal record is kept until then so a re-delivered final request replays
// the cached response instead of re-creating the incident.
type Record struct {
	Key             string
	Screen          string
	Fields          map[string]any
	CreatedAt       time.Time
	LastSeenAt      time.Time
	LastFingerprint string
	CachedResponse  []byte
	Terminal        bool
}

// Duplicate reports whether the fingerprint matches the last processed
// request and a replayable response is available.
func (r *Record) Duplicate(fingerprint string) bool {
	return r.LastFingerprint != "" && r.LastFingerprint == fingerprint && r.CachedResponse != nil
}

// Store serializes access per session key. Implementations must guarantee
// that two calls with the same key never interleave and that calls with
// different keys do not block each other.
type Store interface {
	// WithSession runs fn with exclusive ownership of the key's record,
	// creating a fresh record when none exists or the previous one expired.
	WithSession(key string, fn func(rec *Record) error) error
	// EvictExpired drops records idle past the TTL and returns the count.
	EvictExpired(now time.Time) int
	// Len reports the number of live records.
	Len() int
}

type memoryEntry struct {
	mu  sync.Mutex
	rec *Record
}

// MemoryStore keeps records in process memory. There is no durability
// requirement across restarts: no incident exists until the terminal
// transition, so a restarted form session is acceptable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

func (s *MemoryStore) WithSession(key string, fn func(rec *Record) error) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{}
		s.entries[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.clock()
	if e.rec == nil || s.expired(e.rec, now) {
		e.rec = &Record{
			Key:       key,
			Fields:    make(map[string]any),
			CreatedAt: now,
		}
	}
	e.rec.LastSeenAt = now
	return fn(e.rec)
}

func (s *MemoryStore) EvictExpired(now time.Time) int {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	evicted := 0
	for _, k := range keys {
		s.mu.Lock()
		e, ok := s.entries[k]
		s.mu.Unlock()
		if !ok {
			continue
		}
		// Same per-key lock as WithSession, so the sweep never races an
		// in-flight mutation of the record it is about to drop.
		e.mu.Lock()
		if e.rec != nil && s.expired(e.rec, now) {
			s.mu.Lock()
			delete(s.entries, k)
			s.mu.Unlock()
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(rec *Record, now time.Time) bool {
	return now.Sub(rec.LastSeenAt) > s.ttl
}

// Fingerprint identifies a decrypted request body for replay detection.
func Fingerprint(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}
