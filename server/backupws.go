package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/duskline/backend/3rdparty/glog"
	"github.com/duskline/backend/backup"
	"github.com/duskline/backend/cmn"
)

// backupControl is the one JSON frame a backup socket sends before switching
// to the binary backup.Frame wire format, identifying which side it is and
// the account+password the rendezvous matches on (spec §4.11).
type backupControl struct {
	Role     string `json:"role"` // "target" or "source"
	Account  string `json:"account"`
	Password string `json:"password"`
}

// wsBackupConn adapts a *websocket.Conn to backup.Conn.
type wsBackupConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsBackupConn) Send(f backup.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, backup.Encode(f))
}

func (c *wsBackupConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	return c.conn.Close()
}

// backupWaiter lets a Target's goroutine, blocked passively waiting for a
// Source, learn when the matching Session is created so it can start
// forwarding the frames it receives meanwhile.
type backupWaiter struct {
	sessionCh chan *backup.Session
}

func (l *WebSocketListener) handleBackup(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("backup ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var ctrl backupControl
	if err := conn.ReadJSON(&ctrl); err != nil {
		return
	}
	wc := &wsBackupConn{conn: conn}
	account := cmn.AccountId(ctrl.Account)

	switch ctrl.Role {
	case "target":
		l.runBackupTarget(conn, wc, account, ctrl.Password)
	case "source":
		l.runBackupSource(conn, wc, account, ctrl.Password)
	default:
		_ = wc.Close("unknown_role")
	}
}

func (l *WebSocketListener) runBackupTarget(conn *websocket.Conn, wc *wsBackupConn, account cmn.AccountId, password string) {
	sessionID, err := l.rendezvous.RegisterTarget(account, password, wc)
	if err != nil {
		_ = wc.Close("registration_failed")
		return
	}
	waiter := &backupWaiter{sessionCh: make(chan *backup.Session, 1)}
	l.backupMu.Lock()
	l.backupWaiters[sessionID] = waiter
	l.backupMu.Unlock()
	defer func() {
		l.backupMu.Lock()
		delete(l.backupWaiters, sessionID)
		l.backupMu.Unlock()
	}()

	frames := make(chan backup.Frame, 8)
	go readBackupFrames(conn, frames)

	var session *backup.Session
	for {
		select {
		case session = <-waiter.sessionCh:
			if session == nil {
				return
			}
			go session.Run()
		case f, ok := <-frames:
			if !ok {
				if session == nil {
					l.rendezvous.CancelTarget(account, password, sessionID)
				}
				return
			}
			if session != nil {
				_ = session.Forward(backup.SideTarget, f)
			}
		}
	}
}

func (l *WebSocketListener) runBackupSource(conn *websocket.Conn, wc *wsBackupConn, account cmn.AccountId, password string) {
	targetConn, sessionID, err := l.rendezvous.ConnectSource(account, password)
	if err != nil {
		_ = wc.Close("no_target_waiting")
		return
	}
	session := backup.NewSession(sessionID, targetConn, wc, backup.DefaultNoProgressTimeout)
	go session.Run()
	defer session.Stop()

	l.backupMu.Lock()
	if waiter, ok := l.backupWaiters[sessionID]; ok {
		waiter.sessionCh <- session
	}
	l.backupMu.Unlock()

	frames := make(chan backup.Frame, 8)
	go readBackupFrames(conn, frames)
	for f := range frames {
		_ = session.Forward(backup.SideSource, f)
	}
}

func readBackupFrames(conn *websocket.Conn, out chan<- backup.Frame) {
	defer close(out)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := backup.Decode(data)
		if err != nil {
			continue
		}
		out <- f
	}
}
