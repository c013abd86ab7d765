package stats_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/stats"
)

func TestFlusherFlushesAllThreeAggregators(t *testing.T) {
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	api := stats.NewAPIUsageAggregator()
	ip := stats.NewIPUsageAggregator()
	cv := stats.NewClientVersionAggregator()
	geoip := stats.NewStaticTableLookup(map[string]string{"203.0.113.": "US"})

	now := time.Now()
	api.Record(cmn.AccountIdDb(1), "/discover")
	ip.Record("203.0.113.9", now)
	ip.Record("127.0.0.1", now)
	cv.Record(cmn.ClientWeb, "1.0.0")

	f := stats.NewFlusher(d.Write, api, ip, cv, geoip, time.Hour)
	if err := f.FlushOnce(now); err != nil {
		t.Fatalf("flush once: %v", err)
	}

	// a second flush with nothing accumulated must be a harmless no-op.
	if err := f.FlushOnce(now.Add(time.Second)); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	if got := api.GetCurrentStateAndReset(); len(got) != 0 {
		t.Fatalf("expected the API aggregator to be drained by the flush, got %+v", got)
	}
}

func TestFlusherStopIsIdempotentAndStopsRun(t *testing.T) {
	d, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	f := stats.NewFlusher(d.Write, stats.NewAPIUsageAggregator(), stats.NewIPUsageAggregator(),
		stats.NewClientVersionAggregator(), stats.NewStaticTableLookup(nil), time.Hour)

	done := make(chan error, 1)
	go func() { done <- f.Run() }()

	f.Stop(nil)
	f.Stop(nil) // must not panic or double-close

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected Run to return nil on Stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return promptly after Stop")
	}
}
