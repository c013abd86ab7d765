package stats_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duskline/backend/stats"
)

func TestReporterObservesIncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := stats.NewReporter(reg)

	r.ObserveAPICall("acct-1", "/discover")
	r.ObserveAPICall("acct-1", "/discover")
	r.ObserveIPConnection("US")
	r.ObserveClientVersion(2, "1.0.0")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "duskline_api_calls_total" {
			continue
		}
		for _, m := range mf.Metric {
			if m.GetCounter().GetValue() == 2 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected duskline_api_calls_total to report a count of 2, families: %+v", families)
	}
}
