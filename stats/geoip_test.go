package stats_test

import (
	"testing"

	"github.com/duskline/backend/stats"
)

func TestStaticTableLookupResolvesKnownPrefix(t *testing.T) {
	l := stats.NewStaticTableLookup(map[string]string{"203.0.113.": "US"})
	if got := l.Lookup("203.0.113.5"); got != "US" {
		t.Fatalf("expected US, got %q", got)
	}
}

func TestStaticTableLookupFallsBackToUnknown(t *testing.T) {
	l := stats.NewStaticTableLookup(map[string]string{"203.0.113.": "US"})
	if got := l.Lookup("198.51.100.7"); got != stats.UnknownCountry {
		t.Fatalf("expected %q, got %q", stats.UnknownCountry, got)
	}
}

func TestStaticTableLookupTreatsLoopbackAsLocalhost(t *testing.T) {
	l := stats.NewStaticTableLookup(nil)
	if got := l.Lookup("127.0.0.1"); got != stats.LocalhostCountry {
		t.Fatalf("expected %q, got %q", stats.LocalhostCountry, got)
	}
	if got := l.Lookup("::1"); got != stats.LocalhostCountry {
		t.Fatalf("expected %q, got %q", stats.LocalhostCountry, got)
	}
}
