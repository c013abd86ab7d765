package geo

import (
	"time"

	"github.com/tidwall/buntdb"

	"github.com/duskline/backend/3rdparty/atomic"
	"github.com/duskline/backend/3rdparty/glog"
	"github.com/duskline/backend/cmn"
)

// Sweeper periodically evicts accounts whose last-seen horizon has elapsed
// from the index (invariant 6), adapted from the teacher's housekeeping
// pattern for cache eviction: a running-guard atomic.Bool so an overrunning
// sweep never overlaps itself (a tick that arrives mid-sweep is skipped).
// Sweeps are driven by a fixed time.Ticker.
type Sweeper struct {
	ix       *Index
	horizon  time.Duration
	interval time.Duration
	running  atomic.Bool
	stop     chan struct{}
}

func NewSweeper(ix *Index, horizon, interval time.Duration) *Sweeper {
	return &Sweeper{ix: ix, horizon: horizon, interval: interval, stop: make(chan struct{})}
}

// Run blocks, sweeping every interval until Stop is called.
func (s *Sweeper) Run() {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) Stop() { close(s.stop) }

func (s *Sweeper) sweepOnce() {
	if !s.running.CAS(false, true) {
		glog.Warningf("location index sweep still running, skipping this tick")
		return
	}
	defer s.running.Store(false)

	now := time.Now()
	var evicted, total int
	var toDelete []cmn.AccountId

	s.ix.mu.RLock()
	cellsSnapshot := make([]*cell, 0, len(s.ix.cells))
	for _, c := range s.ix.cells {
		cellsSnapshot = append(cellsSnapshot, c)
	}
	s.ix.mu.RUnlock()

	for _, c := range cellsSnapshot {
		c.mu.Lock()
		for acct, p := range c.profiles {
			total++
			if now.Sub(p.LastSeen) > s.horizon {
				delete(c.profiles, acct)
				evicted++
				toDelete = append(toDelete, acct)
			}
		}
		c.mu.Unlock()
	}

	if len(toDelete) > 0 {
		_ = s.ix.spatial.Update(func(tx *buntdb.Tx) error {
			for _, acct := range toDelete {
				if _, err := tx.Delete(spatialKey(acct)); err != nil && err != buntdb.ErrNotFound {
					return err
				}
			}
			return nil
		})
	}
	if evicted > 0 {
		glog.Infof("location index sweep: total %d, evicted %d past last-seen horizon", total, evicted)
	}
}
