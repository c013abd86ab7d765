// Package stats is the statistics & usage tracker (C13): three in-memory
// aggregators snapshotted on a periodic flush into the history DB, plus a
// live Prometheus exposure of the same counts. Adapted from the teacher's
// stats package (formerly a statsd-backed statsTracker/statsRunner keyed by
// metric name; this domain tracks per-account/per-IP/per-client-version
// counts instead, so the tracker shape is rebuilt, not reused) -- the
// periodic-snapshot-and-flush loop survives as Flusher (stats/flusher.go).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sync"
	"time"

	"github.com/duskline/backend/cmn"
)

// RouteCounters is one account's per-route API call counts.
type RouteCounters map[string]int64

// APIUsageAggregator tallies API calls per account per route (spec §4.13).
type APIUsageAggregator struct {
	mu     sync.RWMutex
	counts map[cmn.AccountIdDb]RouteCounters
}

func NewAPIUsageAggregator() *APIUsageAggregator {
	return &APIUsageAggregator{counts: make(map[cmn.AccountIdDb]RouteCounters)}
}

func (a *APIUsageAggregator) Record(account cmn.AccountIdDb, route string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rc, ok := a.counts[account]
	if !ok {
		rc = make(RouteCounters)
		a.counts[account] = rc
	}
	rc[route]++
}

// GetCurrentStateAndReset returns the accumulated counts and clears them,
// mirroring the teacher's copyZeroReset convention of returning only the
// non-zero snapshot and resetting in the same critical section.
func (a *APIUsageAggregator) GetCurrentStateAndReset() map[cmn.AccountIdDb]RouteCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := a.counts
	a.counts = make(map[cmn.AccountIdDb]RouteCounters)
	return snapshot
}

// IPUsageRecord is one source IP's usage since the last flush.
type IPUsageRecord struct {
	Count    int64
	LastSeen time.Time
}

// IPUsageAggregator tallies connection counts per source IP address.
type IPUsageAggregator struct {
	mu      sync.RWMutex
	records map[string]*IPUsageRecord
}

func NewIPUsageAggregator() *IPUsageAggregator {
	return &IPUsageAggregator{records: make(map[string]*IPUsageRecord)}
}

func (a *IPUsageAggregator) Record(ip string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[ip]
	if !ok {
		r = &IPUsageRecord{}
		a.records[ip] = r
	}
	r.Count++
	r.LastSeen = now
}

func (a *IPUsageAggregator) GetCurrentStateAndReset() map[string]IPUsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := make(map[string]IPUsageRecord, len(a.records))
	for ip, r := range a.records {
		snapshot[ip] = *r
	}
	a.records = make(map[string]*IPUsageRecord)
	return snapshot
}

// clientVersionKey identifies one (client type, semantic version) pair.
type clientVersionKey struct {
	ClientType cmn.ClientType
	Version    string
}

// ClientVersionAggregator tallies connecting client versions (spec §4.13).
type ClientVersionAggregator struct {
	mu     sync.RWMutex
	counts map[clientVersionKey]int64
}

func NewClientVersionAggregator() *ClientVersionAggregator {
	return &ClientVersionAggregator{counts: make(map[clientVersionKey]int64)}
}

func (a *ClientVersionAggregator) Record(clientType cmn.ClientType, version string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[clientVersionKey{ClientType: clientType, Version: version}]++
}

// GetCurrentStateAndReset groups by client type, each holding version→count.
func (a *ClientVersionAggregator) GetCurrentStateAndReset() map[cmn.ClientType]map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[cmn.ClientType]map[string]int64)
	for k, v := range a.counts {
		byVersion, ok := out[k.ClientType]
		if !ok {
			byVersion = make(map[string]int64)
			out[k.ClientType] = byVersion
		}
		byVersion[k.Version] = v
	}
	a.counts = make(map[clientVersionKey]int64)
	return out
}
