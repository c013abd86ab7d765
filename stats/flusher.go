package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/duskline/backend/db"
)

// Flusher is the periodic task that snapshots all three aggregators and
// forwards them to the history DB (spec §4.13). It satisfies the same
// Name/Run/Stop shape server.RunGroup supervises everything else with,
// without this package importing server.
type Flusher struct {
	write    db.WriteCommands
	api      *APIUsageAggregator
	ip       *IPUsageAggregator
	cv       *ClientVersionAggregator
	geoip    GeoIPLookup
	interval time.Duration

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

func NewFlusher(write db.WriteCommands, api *APIUsageAggregator, ip *IPUsageAggregator, cv *ClientVersionAggregator, geoip GeoIPLookup, interval time.Duration) *Flusher {
	return &Flusher{
		write:    write,
		api:      api,
		ip:       ip,
		cv:       cv,
		geoip:    geoip,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (f *Flusher) Name() string { return "stats-flusher" }

func (f *Flusher) Run() error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return nil
		case now := <-ticker.C:
			if err := f.FlushOnce(now); err != nil {
				return err
			}
		}
	}
}

func (f *Flusher) Stop(error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.stop)
}

// FlushOnce snapshots-and-resets all three aggregators and upserts them into
// the history DB under a single save_time_id. Exported so a test (or an
// admin-triggered "flush now") can drive one cycle without waiting on the
// ticker.
func (f *Flusher) FlushOnce(now time.Time) error {
	saveTimeID := now.Unix()

	apiSnapshot := f.api.GetCurrentStateAndReset()
	if len(apiSnapshot) > 0 {
		values := make(map[string]int64)
		for account, routes := range apiSnapshot {
			for route, count := range routes {
				values[fmt.Sprintf("%d:%s", account, route)] += count
			}
		}
		if err := f.write.FlushMetrics(saveTimeID, values); err != nil {
			return err
		}
	}

	ipSnapshot := f.ip.GetCurrentStateAndReset()
	if len(ipSnapshot) > 0 {
		byCountry := make(map[string]int64)
		for ip, rec := range ipSnapshot {
			byCountry[f.geoip.Lookup(ip)] += rec.Count
		}
		if err := f.write.FlushIPCountryRollup(saveTimeID, byCountry); err != nil {
			return err
		}
	}

	cvSnapshot := f.cv.GetCurrentStateAndReset()
	for clientType, versions := range cvSnapshot {
		if len(versions) == 0 {
			continue
		}
		if err := f.write.FlushClientVersionRollup(saveTimeID, int32(clientType), versions); err != nil {
			return err
		}
	}
	return nil
}
