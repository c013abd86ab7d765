package geo

import (
	"time"

	"github.com/duskline/backend/cmn"
)

// LastSeenFilter mirrors the client's discovery filter shapes (spec §4.6):
// Online(withinSeconds) restricts to accounts seen within the window;
// Any disables the filter.
type LastSeenFilter struct {
	Online  bool
	Within  time.Duration
}

// Query bundles a ProfileQueryMakerDetails (spec §4.6) plus the search
// origin and iteration bound.
type Query struct {
	MinAge, MaxAge int
	LastSeen       LastSeenFilter
	EditedAfter    time.Time
	CreatedAfter   time.Time
	UnlimitedLikes bool

	OriginLat, OriginLon float64
	MaxRadiusCells       int
	PageSize             int
}

func (q Query) matches(p ProfileData, now time.Time) bool {
	if p.Age < q.MinAge || p.Age > q.MaxAge {
		return false
	}
	if q.LastSeen.Online && now.Sub(p.LastSeen) > q.LastSeen.Within {
		return false
	}
	if !q.EditedAfter.IsZero() && p.EditTime.Before(q.EditedAfter) {
		return false
	}
	if !q.CreatedAfter.IsZero() && p.CreatedTime.Before(q.CreatedAfter) {
		return false
	}
	if q.UnlimitedLikes && !p.UnlimitedLikes {
		return false
	}
	return true
}

// Result is one matched profile, carried with its account id for the
// caller to hydrate from C1/C3.
type Result struct {
	Account cmn.AccountId
	Profile ProfileData
}

// Search walks cells in an expanding spiral from the origin cell until
// PageSize results are collected or MaxRadiusCells is exhausted (spec
// §4.6). Within a cell, iteration order is the map's (unspecified but
// deterministic for a fixed cell state, since it's consumed in one
// synchronous pass).
func (ix *Index) Search(q Query, now time.Time) []Result {
	origin := ix.cellKeyFor(q.OriginLat, q.OriginLon)
	var out []Result
	seen := map[cellKey]bool{}
	for _, k := range spiralCells(origin, q.MaxRadiusCells) {
		if seen[k] {
			continue
		}
		seen[k] = true
		ix.mu.RLock()
		c, ok := ix.cells[k]
		ix.mu.RUnlock()
		if !ok {
			continue
		}
		c.mu.RLock()
		for acct, p := range c.profiles {
			if q.matches(p, now) {
				out = append(out, Result{Account: acct, Profile: p})
				if len(out) >= q.PageSize {
					c.mu.RUnlock()
					return out
				}
			}
		}
		c.mu.RUnlock()
	}
	return out
}

// spiralCells enumerates cell coordinates in a fixed outward spiral from
// origin, ring by ring, up to maxRadius rings.
func spiralCells(origin cellKey, maxRadius int) []cellKey {
	cells := []cellKey{origin}
	for r := 1; r <= maxRadius; r++ {
		cells = append(cells, ringCells(origin, r)...)
	}
	return cells
}

// ringCells returns the cells at Chebyshev distance exactly r from origin,
// walked clockwise starting from the top-left corner of the ring.
func ringCells(origin cellKey, r int) []cellKey {
	var out []cellKey
	top, bottom := origin.row-r, origin.row+r
	left, right := origin.col-r, origin.col+r
	for col := left; col <= right; col++ {
		out = append(out, cellKey{top, col})
	}
	for row := top + 1; row <= bottom; row++ {
		out = append(out, cellKey{row, right})
	}
	for col := right - 1; col >= left; col-- {
		out = append(out, cellKey{bottom, col})
	}
	for row := bottom - 1; row > top; row-- {
		out = append(out, cellKey{row, left})
	}
	return out
}
