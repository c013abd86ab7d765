// Package iter provides the session-bound paginated iterators (C7) for
// profile discovery, received likes, matches, and news. Per design note §9,
// discovery/news mint session ids as UUIDv4 (google/uuid, already a direct
// dependency); received-likes/matches mint them from a per-process
// atomic.Uint64 counter (go.uber.org/atomic via 3rdparty/atomic) seeded at
// process start, since those two surfaces paginate off a monotonic row id
// already and an integer session id composes naturally with that snapshot
// token.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package iter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duskline/backend/3rdparty/atomic"
	"github.com/duskline/backend/cmn"
)

// Kind identifies which paginated surface a session belongs to.
type Kind int

const (
	KindDiscovery Kind = iota
	KindReceivedLikes
	KindMatches
	KindNews
)

// SessionId is opaque to the client; its shape (UUID string vs. decimal
// counter string) depends on Kind per design note §9.
type SessionId string

// State is the server-held per-account, per-kind iterator cursor (spec
// §4.7): cell cursor / snapshot token, reset marker, page index, and the
// previous reset marker (so a client that never advanced past reset can
// still be told apart from one mid-page).
type State struct {
	SessionId     SessionId
	SnapshotToken int64
	PageIndex     int
	ResetTime     time.Time
	PrevResetTime time.Time
}

type sessionKey struct {
	account cmn.AccountIdDb
	kind    Kind
}

// Manager holds per-account iterator state for every kind.
type Manager struct {
	mu      sync.Mutex
	states  map[sessionKey]*State
	counter atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{states: make(map[sessionKey]*State)}
}

func mintSessionId(kind Kind, counter *atomic.Uint64) SessionId {
	switch kind {
	case KindDiscovery, KindNews:
		return SessionId(uuid.NewString())
	default:
		return SessionId(itoa(counter.Inc()))
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Reset starts a fresh iterator session, capturing snapshotToken (e.g. the
// latest received-like row id) so subsequent pages enumerate entries at or
// before that token regardless of concurrent inserts (spec §4.7, scenario
// S4).
func (m *Manager) Reset(account cmn.AccountIdDb, kind Kind, snapshotToken int64, now time.Time) SessionId {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey{account, kind}
	prev := m.states[key]
	prevReset := now
	if prev != nil {
		prevReset = prev.ResetTime
	}
	sid := mintSessionId(kind, &m.counter)
	m.states[key] = &State{
		SessionId:     sid,
		SnapshotToken: snapshotToken,
		PageIndex:     0,
		ResetTime:     now,
		PrevResetTime: prevReset,
	}
	return sid
}

// NextPage validates that sid matches the account's current session for
// kind; on match it returns the state with PageIndex advanced, on mismatch
// it returns ok=false (spec §4.7: "a mismatch signals server restarted,
// client must reset").
func (m *Manager) NextPage(account cmn.AccountIdDb, kind Kind, sid SessionId) (state State, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey{account, kind}
	s, found := m.states[key]
	if !found || s.SessionId != sid {
		return State{}, false
	}
	s.PageIndex++
	return *s, true
}

// Current returns the account's current session for kind without advancing
// it, or ok=false if no session has been started.
func (m *Manager) Current(account cmn.AccountIdDb, kind Kind) (state State, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.states[sessionKey{account, kind}]
	if !found {
		return State{}, false
	}
	return *s, true
}
