package server

import (
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
)

// EphemeralGate rate-limits typing/online events per sender-pair (spec
// §4.12): a frame arriving before MinWait has elapsed since the last one for
// that pair is dropped silently, not queued or rejected.
type EphemeralGate struct {
	arena   *cache.Arena
	minWait time.Duration
}

func NewEphemeralGate(arena *cache.Arena, minWait time.Duration) *EphemeralGate {
	return &EphemeralGate{arena: arena, minWait: minWait}
}

// Allow reports whether a sender→receiver ephemeral event should be
// delivered now, updating the per-pair clock if so.
func (g *EphemeralGate) Allow(sender, receiver cmn.AccountIdDb, now time.Time) bool {
	allowed := false
	g.arena.WriteCache(sender, func(e *cache.Entry) {
		if e.Chat == nil {
			e.Chat = &cache.ChatSlice{LastEphemeralSent: make(map[cmn.AccountIdDb]int64)}
		}
		if e.Chat.LastEphemeralSent == nil {
			e.Chat.LastEphemeralSent = make(map[cmn.AccountIdDb]int64)
		}
		last, ok := e.Chat.LastEphemeralSent[receiver]
		if ok && now.Unix()-last < int64(g.minWait.Seconds()) {
			return
		}
		e.Chat.LastEphemeralSent[receiver] = now.Unix()
		allowed = true
	})
	return allowed
}
