package server_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/notify"
	"github.com/duskline/backend/server"
)

func newTestSessions(t *testing.T) (*server.Sessions, *db.Databases, *cache.Arena) {
	t.Helper()
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	arena := cache.NewArena()
	hub := notify.NewHub(arena)
	return server.NewSessions(d.Write, d.Read, arena, hub), d, arena
}

func TestLoginBindsTokenInCache(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	arena.Insert(id, &cache.Entry{})

	access, refresh, err := s.Login(id, now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(access) != 44 || len(refresh) == 0 {
		t.Fatalf("expected a 44-char access token, got %d chars", len(access))
	}
	row, ok := arena.ResolveToken(access)
	if !ok || row != id.Row() {
		t.Fatalf("expected the access token to resolve to the logged-in account")
	}
}

func TestLogoutClearsTokenAndAddrBinding(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	arena.Insert(id, &cache.Entry{})

	access, _, err := s.Login(id, now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	arena.BindAddr(access, "1.2.3.4:9", id.Row())

	if err := s.Logout(id, access, "1.2.3.4:9"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := arena.ResolveToken(access); ok {
		t.Fatalf("expected the token binding to be cleared after logout")
	}
	if _, err := d.Read.AccountIdByAccessToken(access); !cmn.IsKind(err, cmn.KindUnauthorized) {
		t.Fatalf("expected the token row itself to be gone, got %v", err)
	}
}

func TestLoginWithPasswordRejectsWrongPassword(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	arena.Insert(id, &cache.Entry{})
	if err := d.Write.SetPassword(id, "correct horse battery staple"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	if _, _, err := s.LoginWithPassword(id, "wrong password", now); !cmn.IsKind(err, cmn.KindUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestLoginWithPasswordAcceptsCorrectPassword(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	arena.Insert(id, &cache.Entry{})
	if err := d.Write.SetPassword(id, "correct horse battery staple"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	access, _, err := s.LoginWithPassword(id, "correct horse battery staple", now)
	if err != nil {
		t.Fatalf("login with password: %v", err)
	}
	if _, ok := arena.ResolveToken(access); !ok {
		t.Fatalf("expected the access token to be bound after a successful password login")
	}
}

func TestDisconnectWithoutLogoutKeepsTokenValid(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	arena.Insert(id, &cache.Entry{})
	access, _, err := s.Login(id, now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	arena.BindAddr(access, "1.2.3.4:9", id.Row())

	s.Disconnect(id, access, "1.2.3.4:9")

	if _, ok := arena.ResolveToken(access); !ok {
		t.Fatalf("expected the access token to remain valid after a bare disconnect")
	}
	if entry := arena.Get(id.Row()); entry != nil && entry.Conn != nil {
		t.Fatalf("expected the connection info to be cleared on disconnect")
	}
}

func TestAuthenticateFallsBackToStoreOnColdCache(t *testing.T) {
	s, d, arena := newTestSessions(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	access, _, err := s.Login(id, now)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	// a fresh arena with no entry for this account simulates a cold cache.
	_ = arena

	fresh := cache.NewArena()
	coldSessions := server.NewSessions(d.Write, d.Read, fresh, notify.NewHub(fresh))
	resolved, err := coldSessions.Authenticate(access)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if resolved.Row() != id.Row() {
		t.Fatalf("expected the cold-cache fallback to resolve the right account")
	}
}
