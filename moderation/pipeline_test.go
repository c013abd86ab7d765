package moderation_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/moderation"
	"github.com/duskline/backend/notify"
)

func openTestDB(t *testing.T) *db.Databases {
	t.Helper()
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestAllowlistContains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allow.csv")
	if err := os.WriteFile(path, []byte("Zoe,amelia\nJordan\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	al, err := moderation.LoadAllowlistCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !al.Contains("zoe") || !al.Contains("Amelia") || !al.Contains("jordan") {
		t.Fatalf("expected all three names on the allowlist")
	}
	if al.Contains("nobody") {
		t.Fatalf("expected an unlisted name to be absent")
	}
}

// TestModerationRace is scenario S5: the admin's decision carries the text
// as it stood when the queue page was fetched; if the account edited since,
// the decision must be rejected as a conflict, not silently applied.
func TestModerationRace(t *testing.T) {
	d := openTestDB(t)
	now := time.Now()
	id, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	text := "hello world"
	if err := d.Write.EditProfile(id, db.ProfileEdit{Text: &text}, now); err != nil {
		t.Fatalf("edit profile: %v", err)
	}

	p := moderation.New(d.Write, d.Read, nil, nil)
	if err := p.MoveStringToHuman(id, moderation.FieldProfileText); err != nil {
		t.Fatalf("move to human: %v", err)
	}

	// the account edits their text again before the admin's decision lands
	newText := "a different text entirely"
	if err := d.Write.EditProfile(id, db.ProfileEdit{Text: &newText}, now); err != nil {
		t.Fatalf("second edit: %v", err)
	}

	err = p.HumanDecideString(id, moderation.FieldProfileText, text, moderation.Decision{Accept: true})
	if !cmn.IsKind(err, cmn.KindConflict) {
		t.Fatalf("expected conflict on stale moderation decision, got %v", err)
	}

	profile, err := d.Read.Profile(id)
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	if profile.TextModeration != cmn.StrWaitingBotOrHuman {
		t.Fatalf("expected text moderation state to remain WaitingBotOrHuman after conflict, got %v", profile.TextModeration)
	}
}

func TestHumanDecideStringEmitsModerationDecisionEvent(t *testing.T) {
	d := openTestDB(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	name := "River"
	if err := d.Write.EditProfile(id, db.ProfileEdit{Name: &name}, now); err != nil {
		t.Fatalf("edit: %v", err)
	}

	arena := cache.NewArena()
	hub := notify.NewHub(arena)
	sender := make(notify.Sender, 4)
	hub.Connect(id.Row(), sender)

	p := moderation.New(d.Write, d.Read, nil, hub)
	if err := p.MoveStringToHuman(id, moderation.FieldProfileName); err != nil {
		t.Fatalf("move to human: %v", err)
	}
	if err := p.HumanDecideString(id, moderation.FieldProfileName, name, moderation.Decision{Accept: true}); err != nil {
		t.Fatalf("decide: %v", err)
	}

	select {
	case ev := <-sender:
		if ev.Kind != notify.EventModerationDecision {
			t.Fatalf("expected EventModerationDecision, got %v", ev.Kind)
		}
	default:
		t.Fatalf("expected a moderation_decision event to be delivered")
	}
}

// TestHumanAcceptContentCompletesInitialSetup is scenario S1's tail: an
// admin accepting setup content moves the account from InitialSetup to
// Normal and emits account_state_changed.
func TestHumanAcceptContentCompletesInitialSetup(t *testing.T) {
	d := openTestDB(t)
	now := time.Now()
	id, err := d.Write.RegisterAccount(now)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	content, err := d.Write.UploadContent(id, 0, now)
	if err != nil {
		t.Fatalf("upload content: %v", err)
	}
	if err := d.Write.SetContentModerationState(content, cmn.ModWaitingHuman, nil, nil); err != nil {
		t.Fatalf("move content to human: %v", err)
	}

	arena := cache.NewArena()
	hub := notify.NewHub(arena)
	sender := make(notify.Sender, 4)
	hub.Connect(id.Row(), sender)

	p := moderation.New(d.Write, d.Read, nil, hub)
	if err := p.HumanDecideContent(content, cmn.ModWaitingHuman, moderation.Decision{Accept: true}); err != nil {
		t.Fatalf("decide content: %v", err)
	}

	acct, err := d.Read.AccountByInternalId(id.Row())
	if err != nil {
		t.Fatalf("read account: %v", err)
	}
	if acct.State != cmn.AccountNormal {
		t.Fatalf("expected account state Normal after setup content accepted, got %v", acct.State)
	}

	var sawDecision, sawStateChanged bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sender:
			switch ev.Kind {
			case notify.EventModerationDecision:
				sawDecision = true
			case notify.EventAccountStateChanged:
				sawStateChanged = true
			}
		default:
		}
	}
	if !sawDecision || !sawStateChanged {
		t.Fatalf("expected both moderation_decision and account_state_changed events, got decision=%v stateChanged=%v",
			sawDecision, sawStateChanged)
	}
}

func TestHumanDecideStringAcceptsMatchingEdit(t *testing.T) {
	d := openTestDB(t)
	now := time.Now()
	id, _ := d.Write.RegisterAccount(now)
	name := "River"
	if err := d.Write.EditProfile(id, db.ProfileEdit{Name: &name}, now); err != nil {
		t.Fatalf("edit: %v", err)
	}
	p := moderation.New(d.Write, d.Read, nil, nil)
	if err := p.MoveStringToHuman(id, moderation.FieldProfileName); err != nil {
		t.Fatalf("move to human: %v", err)
	}
	if err := p.HumanDecideString(id, moderation.FieldProfileName, name, moderation.Decision{Accept: true}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	profile, _ := d.Read.Profile(id)
	if profile.NameModeration != cmn.StrAcceptedByHuman {
		t.Fatalf("expected AcceptedByHuman, got %v", profile.NameModeration)
	}
}
