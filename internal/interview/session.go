// Package interview holds per-call conversation state: the session store,
// utterance history, derived phase, and reply-language classification.
package interview

import (
	"sync"
	"time"
)

// Role tags an utterance with its speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is immutable once appended. Insertion order is the dialogue
// history fed verbatim to the dialogue engine.
type Utterance struct {
	Role Role
	Text string
}

// Session is the conversation state for one call. It must only be mutated
// while held via Store.Begin, which serializes turns per session key.
type Session struct {
	key            string
	utterances     []Utterance
	userTurns      int
	briefExtracted bool
	candidateID    string
	lastSeen       time.Time
}

// Key returns the caller-generated session key.
func (s *Session) Key() string { return s.key }

// Append records an utterance at the end of the history.
func (s *Session) Append(u Utterance) {
	s.utterances = append(s.utterances, u)
	if u.Role == RoleUser {
		s.userTurns++
	}
}

// Utterances returns a copy of the ordered history.
func (s *Session) Utterances() []Utterance {
	out := make([]Utterance, len(s.utterances))
	copy(out, s.utterances)
	return out
}

// UserTurnCount reports how many user utterances the session holds.
// It never decreases.
func (s *Session) UserTurnCount() int { return s.userTurns }

// Len reports the total number of utterances.
func (s *Session) Len() int { return len(s.utterances) }

// Empty reports whether no turn has happened yet.
func (s *Session) Empty() bool { return len(s.utterances) == 0 }

// Phase derives the dialogue phase from the user-turn count. Monotonic:
// once STRUCTURED, later calls can only observe STRUCTURED.
func (s *Session) Phase(warmUpTurns int) Phase {
	return PhaseFor(s.userTurns, warmUpTurns)
}

// MarkBriefExtracted flips the once-per-call brief extraction flag and
// reports whether this call was the first to do so.
func (s *Session) MarkBriefExtracted() bool {
	if s.briefExtracted {
		return false
	}
	s.briefExtracted = true
	return true
}

// CandidateID returns the candidate row created for this session, if any.
func (s *Session) CandidateID() string { return s.candidateID }

// SetCandidateID records the candidate row backing this session.
func (s *Session) SetCandidateID(id string) { s.candidateID = id }

type entry struct {
	mu   sync.Mutex // single-flight guard: one turn at a time per session
	sess *Session
}

// Store maps session keys to live sessions. Sessions are created lazily on
// first Begin, expire after the idle TTL, and are removed by End.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// DefaultSessionTTL bounds how long an idle call keeps its history in memory.
const DefaultSessionTTL = 30 * time.Minute

// NewStore creates a session store with a background janitor evicting
// sessions idle for longer than ttl. Close releases the janitor.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	st := &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go st.janitor()
	return st
}

// Begin locks the session for key, creating it if absent, and returns it
// together with a release function. Callers must invoke release when the
// turn completes; no two turns for the same key run concurrently.
func (st *Store) Begin(key string) (*Session, func()) {
	st.mu.Lock()
	e, ok := st.entries[key]
	if !ok {
		e = &entry{sess: &Session{key: key, lastSeen: time.Now()}}
		st.entries[key] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	e.sess.lastSeen = time.Now()
	return e.sess, e.mu.Unlock
}

// End removes the session for key and returns it, or nil if absent. The
// caller owns the returned session exclusively.
func (st *Store) End(key string) *Session {
	st.mu.Lock()
	e, ok := st.entries[key]
	if ok {
		delete(st.entries, key)
	}
	st.mu.Unlock()
	if !ok {
		return nil
	}
	// Wait out any in-flight turn before handing the history over.
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Close stops the eviction janitor.
func (st *Store) Close() {
	st.once.Do(func() { close(st.stop) })
}

func (st *Store) janitor() {
	interval := st.ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case now := <-ticker.C:
			st.evict(now)
		}
	}
}

func (st *Store) evict(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for key, e := range st.entries {
		if now.Sub(e.sess.lastSeen) > st.ttl {
			delete(st.entries, key)
		}
	}
}
