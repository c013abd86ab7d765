package notify

import (
	"sync"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
)

// Sender is a live connection's typed event channel; buffered so a burst of
// events doesn't block the write runner's post-commit hook.
type Sender chan EventToClient

// Hub fans events out to connected senders, folding into the cache's
// pending-notification bitset when a target has no live connection, and
// routes admin notifications by subscription.
type Hub struct {
	arena *cache.Arena

	mu      sync.RWMutex
	conns   map[cmn.AccountIdDb]Sender
	admins  map[cmn.AccountIdDb]AdminSubscription
}

func NewHub(arena *cache.Arena) *Hub {
	return &Hub{
		arena:  arena,
		conns:  make(map[cmn.AccountIdDb]Sender),
		admins: make(map[cmn.AccountIdDb]AdminSubscription),
	}
}

// Connect registers a live connection's sender, draining any pending
// notification flags into a synthetic event set (spec §4.5: "a subsequent
// connect drains and delivers").
func (h *Hub) Connect(row cmn.AccountIdDb, sender Sender) {
	h.mu.Lock()
	h.conns[row] = sender
	h.mu.Unlock()

	h.arena.WriteCache(row, func(e *cache.Entry) {
		if e.Pending == 0 {
			return
		}
		for kind := EventProfileChanged; kind <= EventNews; kind++ {
			if e.Pending.Has(kind.pendingFlag()) {
				select {
				case sender <- EventToClient{Kind: kind, Account: e.Id.AccountId()}:
				default:
				}
			}
		}
		e.Pending.Clear()
	})
}

// Disconnect removes the connection's sender; subsequent events for this
// account fold into the pending-notification bitset.
func (h *Hub) Disconnect(row cmn.AccountIdDb) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, row)
}

// Publish delivers ev to row's live connection, or folds it into the
// cache's pending flags if none exists.
func (h *Hub) Publish(row cmn.AccountIdDb, ev EventToClient) {
	h.mu.RLock()
	sender, connected := h.conns[row]
	h.mu.RUnlock()

	if connected {
		select {
		case sender <- ev:
			return
		default:
			// full buffer: fall through to pending-flag folding rather than
			// block the write runner's post-commit hook.
		}
	}
	h.arena.WriteCache(row, func(e *cache.Entry) {
		e.Pending.Set(ev.Kind.pendingFlag())
	})
}

// PublishEphemeral delivers ev to row's live connection only; unlike
// Publish, it never folds into the pending-notification bitset, since an
// offline recipient has no backlog worth keeping for a typing/online signal.
func (h *Hub) PublishEphemeral(row cmn.AccountIdDb, ev EventToClient) {
	h.mu.RLock()
	sender, connected := h.conns[row]
	h.mu.RUnlock()
	if !connected {
		return
	}
	select {
	case sender <- ev:
	default:
	}
}

// SubscribeAdmin registers or updates an admin's notification subscription.
func (h *Hub) SubscribeAdmin(row cmn.AccountIdDb, sub AdminSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.admins[row] = sub
}

// UnsubscribeAdmin removes an admin's subscription.
func (h *Hub) UnsubscribeAdmin(row cmn.AccountIdDb) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.admins, row)
}

// PublishAdmin routes ev to every admin whose subscription bit is set and
// whose quiet window has elapsed (spec §4.5).
func (h *Hub) PublishAdmin(bit uint32, ev EventToClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for row, sub := range h.admins {
		if !sub.accepts(bit, ev.Timestamp) {
			continue
		}
		sender, connected := h.conns[row]
		if !connected {
			continue
		}
		select {
		case sender <- ev:
		default:
		}
	}
}
