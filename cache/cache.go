// Package cache is the in-memory hot-state arena (C3): a per-account entry
// keyed by the account's integer row id, never by back-pointer, per the
// cyclic-ownership design note -- the cache is addressed from outside by
// AccountIdDb, and anything needing to reach back into the cache (the event
// bus resolving pending flags, say) holds that integer, not a pointer into
// the arena.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cache

import (
	"sync"

	"github.com/duskline/backend/cmn"
)

// PendingNotificationFlags is a bitset of notification kinds queued for a
// disconnected account, drained on next connect (spec §4.5).
type PendingNotificationFlags uint32

const (
	PendingProfileChanged PendingNotificationFlags = 1 << iota
	PendingMediaChanged
	PendingMatch
	PendingNewMessage
	PendingModerationDecision
	PendingAccountStateChanged
	PendingNews
)

func (f *PendingNotificationFlags) Set(bit PendingNotificationFlags)   { *f |= bit }
func (f *PendingNotificationFlags) Clear()                            { *f = 0 }
func (f PendingNotificationFlags) Has(bit PendingNotificationFlags) bool { return f&bit != 0 }

// ConnectionInfo binds a live WebSocket connection's remote address to an
// account; cleared on logout or on disconnect (spec §4.12).
type ConnectionInfo struct {
	Addr        string
	ClientType  cmn.ClientType
	AccessToken cmn.AccessToken
}

// AccountSlice holds the per-component hot fields enabled by server role;
// nil slices mean that component isn't loaded for this process.
type AccountSlice struct {
	State      cmn.AccountState
	Visibility cmn.ProfileVisibility
}

type ProfileSlice struct {
	SyncVersion    cmn.SyncVersion
	NameModeration cmn.StringModerationState
	TextModeration cmn.StringModerationState
}

type MediaSlice struct {
	SyncVersion cmn.SyncVersion
}

type ChatSlice struct {
	// LastEphemeralSent holds the Unix second of the last typing/online event
	// this account sent to each receiver, keyed by the receiver's AccountIdDb;
	// server.EphemeralGate checks it against the minimum wait (spec §4.12).
	LastEphemeralSent map[cmn.AccountIdDb]int64
}

// Entry is the per-account hot-state record. Lifetime equals the account
// row's; the write runner (C4) holds exclusive mutation rights.
type Entry struct {
	mu sync.RWMutex

	Id          cmn.AccountIdInternal
	Permissions uint32
	Pending     PendingNotificationFlags
	Conn        *ConnectionInfo

	Account *AccountSlice
	Profile *ProfileSlice
	Media   *MediaSlice
	Chat    *ChatSlice
}

// Arena is the process-wide cache: entries indexed by integer row id, plus
// the token/address indices the session layer (C12) looks up on every
// request.
type Arena struct {
	mu sync.RWMutex

	byRow     map[cmn.AccountIdDb]*Entry
	byPublic  map[cmn.AccountId]cmn.AccountIdDb
	byToken   map[cmn.AccessToken]cmn.AccountIdDb
	byAddr    map[tokenAddrKey]cmn.AccountIdDb
}

type tokenAddrKey struct {
	token cmn.AccessToken
	addr  string
}

func NewArena() *Arena {
	return &Arena{
		byRow:    make(map[cmn.AccountIdDb]*Entry),
		byPublic: make(map[cmn.AccountId]cmn.AccountIdDb),
		byToken:  make(map[cmn.AccessToken]cmn.AccountIdDb),
		byAddr:   make(map[tokenAddrKey]cmn.AccountIdDb),
	}
}

// Insert adds a freshly-loaded entry to the arena (startup refill or
// post-register). Overwrites any existing entry for the same row id.
func (a *Arena) Insert(id cmn.AccountIdInternal, e *Entry) {
	e.Id = id
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byRow[id.Row()] = e
	a.byPublic[id.AccountId()] = id.Row()
}

// Remove evicts an account's entry entirely (admin destroy only; the cache
// never self-evicts per spec §3's ownership note).
func (a *Arena) Remove(id cmn.AccountIdInternal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byRow, id.Row())
	delete(a.byPublic, id.AccountId())
	for tok, row := range a.byToken {
		if row == id.Row() {
			delete(a.byToken, tok)
		}
	}
	for k, row := range a.byAddr {
		if row == id.Row() {
			delete(a.byAddr, k)
		}
	}
}

// ResolveAccountId looks up the internal id for a public account UUID.
func (a *Arena) ResolveAccountId(id cmn.AccountId) (cmn.AccountIdDb, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row, ok := a.byPublic[id]
	return row, ok
}

// BindToken records AccessToken → row at login; clears any stale mapping to
// a different row first.
func (a *Arena) BindToken(token cmn.AccessToken, row cmn.AccountIdDb) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byToken[token] = row
}

// UnbindToken clears the token index at logout (invariant 1).
func (a *Arena) UnbindToken(token cmn.AccessToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byToken, token)
}

// ResolveToken looks up the row bound to an access token.
func (a *Arena) ResolveToken(token cmn.AccessToken) (cmn.AccountIdDb, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row, ok := a.byToken[token]
	return row, ok
}

// BindAddr records the (token, remote address) WebSocket binding.
func (a *Arena) BindAddr(token cmn.AccessToken, addr string, row cmn.AccountIdDb) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byAddr[tokenAddrKey{token, addr}] = row
}

// UnbindAddr clears an address binding on disconnect (spec §4.12: stays
// valid token-wise, address binding only is cleared).
func (a *Arena) UnbindAddr(token cmn.AccessToken, addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byAddr, tokenAddrKey{token, addr})
}

// Get returns the entry for row, or nil if absent.
func (a *Arena) Get(row cmn.AccountIdDb) *Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byRow[row]
}

// ReadCache borrow-scopes f over the entry's read lock; f must not block on
// I/O (spec §5: awaits are forbidden inside cache closures).
func (a *Arena) ReadCache(row cmn.AccountIdDb, f func(*Entry)) bool {
	e := a.Get(row)
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	f(e)
	return true
}

// WriteCache borrow-scopes f over the entry's write lock.
func (a *Arena) WriteCache(row cmn.AccountIdDb, f func(*Entry)) bool {
	e := a.Get(row)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e)
	return true
}

// Len reports the number of cached accounts, for housekeeping/metrics.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byRow)
}
