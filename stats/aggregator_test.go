package stats_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/stats"
)

func TestAPIUsageAggregatorTracksPerAccountPerRoute(t *testing.T) {
	a := stats.NewAPIUsageAggregator()
	acct := cmn.AccountIdDb(1)
	a.Record(acct, "/discover")
	a.Record(acct, "/discover")
	a.Record(acct, "/profile")

	snapshot := a.GetCurrentStateAndReset()
	if snapshot[acct]["/discover"] != 2 || snapshot[acct]["/profile"] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	second := a.GetCurrentStateAndReset()
	if len(second) != 0 {
		t.Fatalf("expected counts to reset after a snapshot, got %+v", second)
	}
}

func TestIPUsageAggregatorTracksCountAndLastSeen(t *testing.T) {
	a := stats.NewIPUsageAggregator()
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Minute)
	a.Record("1.2.3.4", t0)
	a.Record("1.2.3.4", t1)

	snapshot := a.GetCurrentStateAndReset()
	rec := snapshot["1.2.3.4"]
	if rec.Count != 2 || !rec.LastSeen.Equal(t1) {
		t.Fatalf("expected count=2 lastSeen=%v, got %+v", t1, rec)
	}
}

func TestClientVersionAggregatorGroupsByType(t *testing.T) {
	a := stats.NewClientVersionAggregator()
	a.Record(cmn.ClientAndroid, "2.1.0")
	a.Record(cmn.ClientAndroid, "2.1.0")
	a.Record(cmn.ClientIOS, "3.0.0")

	snapshot := a.GetCurrentStateAndReset()
	if snapshot[cmn.ClientAndroid]["2.1.0"] != 2 {
		t.Fatalf("expected 2 android 2.1.0 connections, got %+v", snapshot)
	}
	if snapshot[cmn.ClientIOS]["3.0.0"] != 1 {
		t.Fatalf("expected 1 ios 3.0.0 connection, got %+v", snapshot)
	}
}
