// Package conversation keeps the per-session transcript of questions and replies.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
)

type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Log is an append-only transcript. With a positive limit only the newest
// turns are retained.
type Log struct {
	maxTurns int
	turns    []Turn
}

func NewLog(maxTurns int) *Log {
	return &Log{maxTurns: maxTurns}
}

func (l *Log) Append(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	l.turns = append(l.turns, turn)
	if l.maxTurns > 0 && len(l.turns) > l.maxTurns {
		drop := len(l.turns) - l.maxTurns
		l.turns = append(l.turns[:0:0], l.turns[drop:]...)
	}
}

// Turns returns a copy of the transcript, oldest first.
func (l *Log) Turns() []Turn {
	return append([]Turn(nil), l.turns...)
}

func (l *Log) Len() int {
	return len(l.turns)
}

// Session owns one Log. Do runs one request at a time against it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	log    *Log
	active atomic.Int32

	// lastUsed is guarded by the owning Store's mutex.
	lastUsed time.Time
}

func (s *Session) Do(fn func(*Log) error) error {
	s.active.Add(1)
	defer s.active.Add(-1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.log)
}

// Transcript returns a snapshot of the session log.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Turns()
}

func (s *Session) busy() bool {
	return s.active.Load() > 0
}

// StoreConfig bounds the store. Zero values mean no limit.
type StoreConfig struct {
	MaxSessions int
	MaxTurns    int
	// IdleTTL drops sessions that have not been used for this long.
	IdleTTL time.Duration
}

// Store holds the live sessions. Sessions idle past IdleTTL expire, and when
// MaxSessions is reached Create evicts the least recently used idle session.
type Store struct {
	cfg StoreConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(cfg StoreConfig) *Store {
	return &Store{cfg: cfg, now: time.Now, sessions: map[string]*Session{}}
}

// Create opens a session whose transcript starts with the greeting, if any.
func (s *Store) Create(greeting string) (*Session, error) {
	log := NewLog(s.cfg.MaxTurns)
	if greeting != "" {
		log.Append(Turn{Role: RoleAssistant, Content: greeting})
	}
	now := s.now().UTC()
	session := &Session{ID: uuid.NewString(), CreatedAt: now, log: log, lastUsed: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(now)
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions && !s.evictLocked() {
		return nil, fmt.Errorf("create session: %w (limit %d, all in use)", ErrTooManySessions, s.cfg.MaxSessions)
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *Store) Get(id string) (*Session, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if ok && s.expired(session, now) {
		delete(s.sessions, id)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("get session %q: %w", id, ErrSessionNotFound)
	}
	session.lastUsed = now
	return session, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expired(session *Session, now time.Time) bool {
	return s.cfg.IdleTTL > 0 && !session.busy() && now.Sub(session.lastUsed) > s.cfg.IdleTTL
}

func (s *Store) expireLocked(now time.Time) {
	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
		}
	}
}

// evictLocked removes the least recently used session that has no request in
// flight. It reports false when every session is busy.
func (s *Store) evictLocked() bool {
	var victim *Session
	for _, session := range s.sessions {
		if session.busy() {
			continue
		}
		if victim == nil || session.lastUsed.Before(victim.lastUsed) {
			victim = session
		}
	}
	if victim == nil {
		return false
	}
	delete(s.sessions, victim.ID)
	return true
}
