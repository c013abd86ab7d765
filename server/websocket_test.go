package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/chat"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/config"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/keys"
	"github.com/duskline/backend/notify"
)

func newTestWSListener(t *testing.T) (*WebSocketListener, *db.Databases) {
	t.Helper()
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	arena := cache.NewArena()
	hub := notify.NewHub(arena)
	sessions := NewSessions(d.Write, d.Read, arena, hub)
	chatSvc := chat.New(d.Write, d.Read, hub, config.LimitsConfig{
		MaxSenderAckMissing: 10, MaxReceiverAckMissing: 10,
	})
	keyReg := keys.New(d.Write, d.Read, 5)
	ephemeral := NewEphemeralGate(arena, time.Second)
	l := NewWebSocketListener("", sessions, chatSvc, keyReg, d.Read, ephemeral, nil, hub)
	return l, d
}

func TestBearerTokenParsesAuthorizationHeader(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != cmn.AccessToken("abc123") {
		t.Fatalf("expected abc123, got %q", got)
	}
}

func TestBearerTokenRejectsMissingPrefix(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Authorization", "abc123")
	if got := bearerToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestDispatchRegisterKeyAddsKey(t *testing.T) {
	l, d := newTestWSListener(t)
	acct, err := d.Write.RegisterAccount(time.Now())
	if err != nil {
		t.Fatalf("register account: %v", err)
	}

	l.dispatch(acct, EventToServer{Kind: ServerEventRegisterKey, KeyVersion: 1, KeyData: "pubkey-bytes"})

	latest, err := l.keyReg.Latest(acct)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == 0 {
		t.Fatalf("expected a registered key id, got 0")
	}
}

func TestDispatchSendMessageDeliversToMatchedReceiver(t *testing.T) {
	l, d := newTestWSListener(t)
	now := time.Now()
	sender, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register sender: %v", err)
	}
	receiver, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register receiver: %v", err)
	}
	if _, err := d.Write.SetLike(sender.Row(), receiver.Row(), now); err != nil {
		t.Fatalf("sender likes receiver: %v", err)
	}
	if _, err := d.Write.SetLike(receiver.Row(), sender.Row(), now); err != nil {
		t.Fatalf("receiver likes sender back: %v", err)
	}

	l.dispatch(sender, EventToServer{
		Kind: ServerEventSendMessage, Receiver: string(receiver.AccountId()), Ciphertext: []byte("hi"),
	})

	pending, err := l.chatSvc.Pending(receiver)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
}
