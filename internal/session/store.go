// Package session keeps per-user bot state in memory: the verification flag
// and the currently provisioned mailbox.
package session

import (
	"sort"
	"sync"
	"time"
)

// Session is a snapshot of one user's state. Empty strings mean absent.
type Session struct {
	UserID         int64
	MailboxAddress string
	MailboxToken   string
	Verified       bool
	CreatedAt      time.Time
}

// HasMailbox reports whether a mailbox is currently associated with the user.
func (s Session) HasMailbox() bool {
	return s.MailboxAddress != "" && s.MailboxToken != ""
}

// Store maps user ids to sessions. The zero value is not usable; use NewStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]*userLock),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the user's session, creating an unverified one without
// a mailbox on first access.
func (s *Store) GetOrCreate(userID int64) Session {
	s.mu.RLock()
	if sess, ok := s.sessions[userID]; ok {
		out := *sess
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(userID)
}

// Get returns the user's session without creating it.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// SetMailbox records a mailbox for the user. Address and token are stored
// together: if either is empty both are cleared.
func (s *Store) SetMailbox(userID int64, address, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(userID)
	if address == "" || token == "" {
		sess.MailboxAddress, sess.MailboxToken = "", ""
		return
	}
	sess.MailboxAddress, sess.MailboxToken = address, token
}

// ClearMailbox forgets the user's mailbox.
func (s *Store) ClearMailbox(userID int64) {
	s.SetMailbox(userID, "", "")
}

// SetVerified marks the user as verified. There is no way to unset it.
func (s *Store) SetVerified(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(userID).Verified = true
}

// UserIDs returns a sorted snapshot of every known user id. Later changes to
// the store do not affect the returned slice.
func (s *Store) UserIDs() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of known users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Lock serializes work for a single user and returns the matching unlock
// function. Locks for different users never block each other.
func (s *Store) Lock(userID int64) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, userID)
			}
			s.locksMu.Unlock()
		})
	}
}

func (s *Store) getOrCreateLocked(userID int64) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, CreatedAt: s.now()}
		s.sessions[userID] = sess
	}
	return sess
}
