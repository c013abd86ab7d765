package geo_test

import (
	"testing"
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/config"
	"github.com/duskline/backend/geo"
)

func newTestIndex(t *testing.T) *geo.Index {
	t.Helper()
	ix, err := geo.NewIndex(config.LocationConfig{
		MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180, CellSizeKm: 25,
	})
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

// TestLocationFilter is scenario S6: age range + online-last-seen filter
// with three candidates, exactly one of which should match.
func TestLocationFilter(t *testing.T) {
	ix := newTestIndex(t)
	now := time.Now()

	p1 := cmn.NewAccountId() // age 30, online, nearby -> included
	p2 := cmn.NewAccountId() // age 40, online, same cell -> excluded on age
	p3 := cmn.NewAccountId() // age 30, offline 2h -> excluded on last-seen

	ix.Insert(p1, geo.ProfileData{Age: 30, LastSeen: now, Lat: 60.18, Lon: 24.95, Visibility: cmn.VisibilityPublic})
	ix.Insert(p2, geo.ProfileData{Age: 40, LastSeen: now, Lat: 60.18, Lon: 24.95, Visibility: cmn.VisibilityPublic})
	ix.Insert(p3, geo.ProfileData{Age: 30, LastSeen: now.Add(-2 * time.Hour), Lat: 60.18, Lon: 24.95, Visibility: cmn.VisibilityPublic})

	q := geo.Query{
		MinAge: 25, MaxAge: 35,
		LastSeen:       geo.LastSeenFilter{Online: true, Within: time.Minute},
		OriginLat:      60.17, OriginLon: 24.94,
		MaxRadiusCells: 2,
		PageSize:       10,
	}
	results := ix.Search(q, now)
	if len(results) != 1 || results[0].Account != p1 {
		t.Fatalf("expected exactly p1 to match, got %+v", results)
	}
}

func TestMoveRelocatesBetweenCells(t *testing.T) {
	ix := newTestIndex(t)
	now := time.Now()
	id := cmn.NewAccountId()

	ix.Insert(id, geo.ProfileData{Age: 28, LastSeen: now, Lat: 10, Lon: 10})
	if ix.Len() != 1 {
		t.Fatalf("expected 1 indexed profile after insert")
	}

	ix.Move(id, 10, 10, geo.ProfileData{Age: 28, LastSeen: now, Lat: 50, Lon: 50})
	if ix.Len() != 1 {
		t.Fatalf("expected still exactly 1 profile after move, got %d", ix.Len())
	}

	q := geo.Query{MinAge: 0, MaxAge: 99, OriginLat: 50, OriginLon: 50, MaxRadiusCells: 1, PageSize: 10}
	results := ix.Search(q, now)
	if len(results) != 1 || results[0].Account != id {
		t.Fatalf("expected profile to be found at its new location, got %+v", results)
	}
}

func TestRemoveDropsFromBothGridAndSpatialIndex(t *testing.T) {
	ix := newTestIndex(t)
	now := time.Now()
	id := cmn.NewAccountId()
	ix.Insert(id, geo.ProfileData{Age: 28, LastSeen: now, Lat: 1, Lon: 1})

	n, err := ix.IntersectsCount(-1, -1, 2, 2)
	if err != nil || n != 1 {
		t.Fatalf("expected spatial index to see 1 entry, got %d err=%v", n, err)
	}

	ix.Remove(id, 1, 1)
	if ix.Len() != 0 {
		t.Fatalf("expected grid to be empty after remove")
	}
	n, err = ix.IntersectsCount(-1, -1, 2, 2)
	if err != nil || n != 0 {
		t.Fatalf("expected spatial index to be empty after remove, got %d err=%v", n, err)
	}
}
