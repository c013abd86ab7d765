package chat_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/chat"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/config"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/notify"
)

func newTestService(t *testing.T) (*chat.Service, *db.Databases) {
	t.Helper()
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	hub := notify.NewHub(cache.NewArena())
	limits := config.Default().Limits
	return chat.New(d.Write, d.Read, hub, limits), d
}

func register(t *testing.T, d *db.Databases, now time.Time) cmn.AccountIdInternal {
	t.Helper()
	id, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}

func matchUp(t *testing.T, d *db.Databases, a, b cmn.AccountIdInternal, now time.Time) {
	t.Helper()
	if _, err := d.Write.SetLike(a.Row(), b.Row(), now); err != nil {
		t.Fatalf("a likes b: %v", err)
	}
	became, err := d.Write.SetLike(b.Row(), a.Row(), now)
	if err != nil {
		t.Fatalf("b likes a: %v", err)
	}
	if !became {
		t.Fatalf("expected mutual like to become a match")
	}
}

// TestMessageOrderingPerReceiver is scenario S2: A sends 0x01 (mn=1 for B's
// inbox), B sends 0x02 and 0x03 (mn=1, mn=2 for A's inbox) -- MessageNumber is
// scoped per receiver, not per pair.
func TestMessageOrderingPerReceiver(t *testing.T) {
	s, d := newTestService(t)
	now := time.Now()
	a := register(t, d, now)
	b := register(t, d, now)
	matchUp(t, d, a, b, now)

	mn1, err := s.SendMessage(a, b, []byte{0x01}, 0, now)
	if err != nil {
		t.Fatalf("a->b send: %v", err)
	}
	if mn1 != 1 {
		t.Fatalf("expected b's first inbound message number to be 1, got %d", mn1)
	}

	mn2, err := s.SendMessage(b, a, []byte{0x02}, 0, now)
	if err != nil {
		t.Fatalf("b->a send 1: %v", err)
	}
	if mn2 != 1 {
		t.Fatalf("expected a's first inbound message number to be 1, got %d", mn2)
	}

	mn3, err := s.SendMessage(b, a, []byte{0x03}, 0, now)
	if err != nil {
		t.Fatalf("b->a send 2: %v", err)
	}
	if mn3 != 2 {
		t.Fatalf("expected a's second inbound message number to be 2, got %d", mn3)
	}

	pendingForA, err := s.Pending(a)
	if err != nil {
		t.Fatalf("pending for a: %v", err)
	}
	if len(pendingForA) != 2 || pendingForA[0].MessageNumber != 1 || pendingForA[1].MessageNumber != 2 {
		t.Fatalf("expected a's pending messages gap-free and increasing, got %+v", pendingForA)
	}
}

// TestSendMessageRejectsStalePublicKey is scenario S3: the receiver rotates
// their public key after the sender cached the old key id.
func TestSendMessageRejectsStalePublicKey(t *testing.T) {
	s, d := newTestService(t)
	now := time.Now()
	a := register(t, d, now)
	b := register(t, d, now)
	matchUp(t, d, a, b, now)

	v1, err := d.Write.AddPublicKey(b.Row(), 1, "key-v1", 5, now)
	if err != nil {
		t.Fatalf("add key v1: %v", err)
	}
	if _, err := d.Write.AddPublicKey(b.Row(), 2, "key-v2", 5, now); err != nil {
		t.Fatalf("add key v2: %v", err)
	}

	_, err = s.SendMessage(a, b, []byte{0x01}, v1, now)
	if !cmn.IsKind(err, cmn.KindConflict) {
		t.Fatalf("expected a conflict citing the outdated key id %d, got %v", v1, err)
	}
}

func TestSendMessageRejectsWithoutMatch(t *testing.T) {
	s, d := newTestService(t)
	now := time.Now()
	a := register(t, d, now)
	b := register(t, d, now)

	_, err := s.SendMessage(a, b, []byte{0x01}, 0, now)
	if !cmn.IsKind(err, cmn.KindNotAllowed) {
		t.Fatalf("expected not-allowed without a match, got %v", err)
	}
}

func TestSendMessageRejectsAfterReceiverBlocksSender(t *testing.T) {
	s, d := newTestService(t)
	now := time.Now()
	a := register(t, d, now)
	b := register(t, d, now)
	matchUp(t, d, a, b, now)

	if err := d.Write.SetBlock(b.Row(), a.Row(), now); err != nil {
		t.Fatalf("b blocks a: %v", err)
	}

	_, err := s.SendMessage(a, b, []byte{0x01}, 0, now)
	if !cmn.IsKind(err, cmn.KindForbidden) {
		t.Fatalf("expected forbidden after receiver blocked sender, got %v", err)
	}
}

func TestSendMessageRejectsAtSenderAckLimit(t *testing.T) {
	s, d := newTestService(t)
	now := time.Now()
	a := register(t, d, now)
	b := register(t, d, now)
	matchUp(t, d, a, b, now)

	limit := config.Default().Limits.MaxSenderAckMissing
	for i := 0; i < limit; i++ {
		if _, err := s.SendMessage(a, b, []byte{byte(i)}, 0, now); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	_, err := s.SendMessage(a, b, []byte{0xFF}, 0, now)
	if !cmn.IsKind(err, cmn.KindLimitReached) {
		t.Fatalf("expected limit-reached once sender hits MaxSenderAckMissing, got %v", err)
	}

	// acking the first message frees up one slot.
	if err := s.AckSender(a, b, 1); err != nil {
		t.Fatalf("ack sender: %v", err)
	}
	if _, err := s.SendMessage(a, b, []byte{0xAA}, 0, now); err != nil {
		t.Fatalf("expected send to succeed after freeing a slot: %v", err)
	}
}
