package main

import (
	"time"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/util/syncx"
)

// sessionState tells how the next inbound event from a user is interpreted.
type sessionState int

const (
	// No record in progress; text is treated as a new URL submission.
	stateIdle sessionState = iota
	// A record was parsed and presented; waiting for Yes/No.
	stateAwaitingConfirmation
	// User pressed No; waiting for a Title/Authors/Tags button.
	stateAwaitingEditField
	// A field was chosen; the next text message replaces its value.
	stateAwaitingEditValue
)

// session is the per-user conversation state. A record is present in every
// state except stateIdle, and editField is set only in stateAwaitingEditValue.
type session struct {
	state     sessionState
	rec       record
	editField string // "title", "authors" or "tags"
	touched   time.Time
}

// sessionStore keeps per-user sessions in memory. Sessions untouched for
// longer than ttl are dropped by evictStale.
type sessionStore struct {
	ttl time.Duration
	now func() time.Time

	sessions *syncx.Protected[map[string]session]
}

func newSessionStore(ttl time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{
		ttl:      ttl,
		now:      now,
		sessions: syncx.Protect(make(map[string]session)),
	}
}

func (s *sessionStore) get(user string) (session, bool) {
	var (
		sess session
		ok   bool
	)
	s.sessions.RAccess(func(m map[string]session) {
		sess, ok = m[user]
	})
	return sess, ok
}

func (s *sessionStore) set(user string, sess session) {
	sess.touched = s.now()
	s.sessions.Access(func(m map[string]session) {
		m[user] = sess
	})
}

func (s *sessionStore) clear(user string) {
	s.sessions.Access(func(m map[string]session) {
		delete(m, user)
	})
}

// evictStale drops sessions untouched for longer than the store's TTL and
// reports how many were dropped.
func (s *sessionStore) evictStale() int {
	deadline := s.now().Add(-s.ttl)
	var evicted int
	s.sessions.Access(func(m map[string]session) {
		for user, sess := range m {
			if sess.touched.Before(deadline) {
				delete(m, user)
				evicted++
			}
		}
	})
	return evicted
}
