package iter_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/iter"
)

// TestIteratorStability is scenario S4: a reset captures a snapshot token;
// a stale session id must be rejected so the client knows to reset.
func TestIteratorStability(t *testing.T) {
	m := iter.NewManager()
	account := cmn.AccountIdDb(1)
	now := time.Now()

	sid := m.Reset(account, iter.KindReceivedLikes, 42, now)

	state, ok := m.NextPage(account, iter.KindReceivedLikes, sid)
	if !ok {
		t.Fatalf("expected page 1 to succeed with the session id just minted")
	}
	if state.SnapshotToken != 42 {
		t.Fatalf("expected snapshot token to stick across pages, got %d", state.SnapshotToken)
	}

	// a like arriving with id 43 between pages must not perturb this session's
	// snapshot token.
	state2, ok := m.NextPage(account, iter.KindReceivedLikes, sid)
	if !ok || state2.SnapshotToken != 42 {
		t.Fatalf("expected page 2 to keep snapshot token 42, got ok=%v token=%d", ok, state2.SnapshotToken)
	}
	if state2.PageIndex != 2 {
		t.Fatalf("expected page index to advance, got %d", state2.PageIndex)
	}

	if _, ok := m.NextPage(account, iter.KindReceivedLikes, "stale-session"); ok {
		t.Fatalf("expected a mismatched session id to be rejected")
	}
}

func TestDiscoveryAndNewsUseUUIDSessionIds(t *testing.T) {
	m := iter.NewManager()
	sid := m.Reset(cmn.AccountIdDb(1), iter.KindDiscovery, 0, time.Now())
	if len(sid) != 36 {
		t.Fatalf("expected a UUID-shaped session id, got %q", sid)
	}
}

func TestLikesAndMatchesUseIntegerSessionIds(t *testing.T) {
	m := iter.NewManager()
	a := m.Reset(cmn.AccountIdDb(1), iter.KindReceivedLikes, 0, time.Now())
	b := m.Reset(cmn.AccountIdDb(2), iter.KindMatches, 0, time.Now())
	if a == b {
		t.Fatalf("expected distinct session ids across accounts")
	}
	if len(a) >= 36 || len(b) >= 36 {
		t.Fatalf("expected compact integer-shaped session ids, got %q %q", a, b)
	}
}
