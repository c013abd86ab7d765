package server

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/notify"
)

// Sessions wires the WebSocket session lifecycle (handshake already done) to
// the relational store, the cache arena, and the event bus.
type Sessions struct {
	write db.WriteCommands
	read  db.ReadCommands
	arena *cache.Arena
	hub   *notify.Hub
}

func NewSessions(write db.WriteCommands, read db.ReadCommands, arena *cache.Arena, hub *notify.Hub) *Sessions {
	return &Sessions{write: write, read: read, arena: arena, hub: hub}
}

// Login mints a fresh access/refresh token pair, persists them, and binds
// the access token to the account's cache row.
func (s *Sessions) Login(id cmn.AccountIdInternal, now time.Time) (cmn.AccessToken, cmn.RefreshToken, error) {
	access, err := newToken()
	if err != nil {
		return "", "", err
	}
	refresh, err := newToken()
	if err != nil {
		return "", "", err
	}
	if err := s.write.Login(id, access, cmn.RefreshToken(refresh), now); err != nil {
		return "", "", err
	}
	s.arena.BindToken(access, id.Row())
	return access, cmn.RefreshToken(refresh), nil
}

// LoginWithPassword verifies the account's password credential before
// minting a session; it never reaches the cache or token tables on a
// mismatch.
func (s *Sessions) LoginWithPassword(id cmn.AccountIdInternal, plaintext string, now time.Time) (cmn.AccessToken, cmn.RefreshToken, error) {
	ok, err := s.read.VerifyPassword(id, plaintext)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", cmn.ErrUnauthorized("incorrect password")
	}
	return s.Login(id, now)
}

// Logout erases both tokens and the address binding ("Logout
// erases both tokens and the address binding"). Disconnect without logout
// leaves the access token valid and only clears the address binding.
func (s *Sessions) Logout(id cmn.AccountIdInternal, access cmn.AccessToken, addr string) error {
	if err := s.write.Logout(id); err != nil {
		return err
	}
	s.arena.UnbindToken(access)
	s.arena.UnbindAddr(access, addr)
	s.hub.Disconnect(id.Row())
	return nil
}

// Connect binds a live connection's remote address to the account and
// registers its event sender with the hub, draining pending notifications.
func (s *Sessions) Connect(id cmn.AccountIdInternal, access cmn.AccessToken, addr string, clientType cmn.ClientType, sender notify.Sender) {
	s.arena.BindAddr(access, addr, id.Row())
	s.arena.WriteCache(id.Row(), func(e *cache.Entry) {
		e.Conn = &cache.ConnectionInfo{Addr: addr, ClientType: clientType, AccessToken: access}
	})
	s.hub.Connect(id.Row(), sender)
}

// Disconnect clears the address binding only; the access token stays valid
// until an explicit Logout.
func (s *Sessions) Disconnect(id cmn.AccountIdInternal, access cmn.AccessToken, addr string) {
	s.arena.UnbindAddr(access, addr)
	s.arena.WriteCache(id.Row(), func(e *cache.Entry) { e.Conn = nil })
	s.hub.Disconnect(id.Row())
}

// Authenticate resolves a bearer access token to the account's cache row,
// falling back to the relational store on a cold cache (e.g. just restarted).
func (s *Sessions) Authenticate(access cmn.AccessToken) (cmn.AccountIdInternal, error) {
	if row, ok := s.arena.ResolveToken(access); ok {
		if e := s.arena.Get(row); e != nil {
			return e.Id, nil
		}
	}
	id, err := s.read.AccountIdByAccessToken(access)
	if err != nil {
		return cmn.AccountIdInternal{}, err
	}
	s.arena.BindToken(access, id.Row())
	return id, nil
}

// newToken mints a 256-bit base64url access/refresh token (44 chars).
func newToken() (cmn.AccessToken, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generate token")
	}
	return cmn.AccessToken(base64.URLEncoding.EncodeToString(b[:])), nil
}
