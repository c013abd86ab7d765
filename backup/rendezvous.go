package backup

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// Conn abstracts the transport a rendezvous side talks over -- satisfied by
// an adapter over *gorilla/websocket.Conn in the session layer, and by a
// fake in tests.
type Conn interface {
	Send(f Frame) error
	Close(reason string) error
}

// EvictedReason is the typed close reason sent to a Target bumped by a
// newer registration for the same account (design note §9: LIFO, newer
// Target wins).
const EvictedReason = "evicted_by_newer_target"

type rendezvousKey struct {
	account  cmn.AccountId
	password string
}

type pendingTarget struct {
	conn    Conn
	session uint32
}

// Rendezvous holds at most one pending Target per account; a Source
// connecting with matching credentials consumes the pending entry once.
type Rendezvous struct {
	mu      sync.Mutex
	pending map[rendezvousKey]*pendingTarget
}

func NewRendezvous() *Rendezvous {
	return &Rendezvous{pending: make(map[rendezvousKey]*pendingTarget)}
}

// RegisterTarget records conn as the pending Target for account+password,
// evicting (and typed-closing) any Target already waiting for the account,
// whatever password it registered with.
func (r *Rendezvous) RegisterTarget(account cmn.AccountId, password string, conn Conn) (sessionID uint32, err error) {
	session, err := newSessionID()
	if err != nil {
		return 0, err
	}

	key := rendezvousKey{account: account, password: password}
	var evicted []Conn
	r.mu.Lock()
	for k, p := range r.pending {
		if k.account == account {
			evicted = append(evicted, p.conn)
			delete(r.pending, k)
		}
	}
	r.pending[key] = &pendingTarget{conn: conn, session: session}
	r.mu.Unlock()

	for _, c := range evicted {
		_ = c.Close(EvictedReason)
	}
	return session, nil
}

// ConnectSource looks up (and removes) the pending Target for account+
// password; a Source consumes the rendezvous entry exactly once.
func (r *Rendezvous) ConnectSource(account cmn.AccountId, password string) (Conn, uint32, error) {
	key := rendezvousKey{account: account, password: password}
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.pending[key]
	if !ok {
		return nil, 0, cmn.ErrNotFound("no target is waiting for this account")
	}
	delete(r.pending, key)
	return target.conn, target.session, nil
}

// CancelTarget removes a pending registration without evicting anything,
// e.g. when the Target disconnects before a Source ever arrives.
func (r *Rendezvous) CancelTarget(account cmn.AccountId, password string, sessionID uint32) {
	key := rendezvousKey{account: account, password: password}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.pending[key]; ok && cur.session == sessionID {
		delete(r.pending, key)
	}
}

func newSessionID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "generate backup session id")
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
