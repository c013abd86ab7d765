package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/duskline/backend/3rdparty/glog"
	"github.com/duskline/backend/backup"
	"github.com/duskline/backend/chat"
	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/keys"
	"github.com/duskline/backend/notify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketListener serves two upgrade endpoints, `/ws/chat` and
// `/ws/backup` (backupws.go). On `/ws/chat` it authenticates
// the bearer token, decodes the fixed handshake frame, then pumps
// EventToServer/EventToClient JSON frames until the socket closes (spec
// §4.12/§6). One goroutine per connection, matching the teacher's
// one-goroutine-per-stream-request shape.
type WebSocketListener struct {
	addr       string
	sessions   *Sessions
	chatSvc    *chat.Service
	keyReg     *keys.Registry
	read       db.ReadCommands
	ephemeral  *EphemeralGate
	rendezvous *backup.Rendezvous
	hub        *notify.Hub

	backupMu      sync.Mutex
	backupWaiters map[uint32]*backupWaiter

	srv *http.Server
}

func NewWebSocketListener(addr string, sessions *Sessions, chatSvc *chat.Service, keyReg *keys.Registry,
	read db.ReadCommands, ephemeral *EphemeralGate, rendezvous *backup.Rendezvous, hub *notify.Hub) *WebSocketListener {
	return &WebSocketListener{
		addr: addr, sessions: sessions, chatSvc: chatSvc, keyReg: keyReg,
		read: read, ephemeral: ephemeral, rendezvous: rendezvous, hub: hub,
		backupWaiters: make(map[uint32]*backupWaiter),
	}
}

func (l *WebSocketListener) Name() string { return "ws-listener" }

func (l *WebSocketListener) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", l.handleChat)
	mux.HandleFunc("/ws/backup", l.handleBackup)
	l.srv = &http.Server{Addr: l.addr, Handler: mux}
	err := l.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (l *WebSocketListener) Stop(error) {
	if l.srv != nil {
		_ = l.srv.Close()
	}
}

func bearerToken(r *http.Request) cmn.AccessToken {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return cmn.AccessToken(strings.TrimPrefix(h, prefix))
}

func (l *WebSocketListener) handleChat(w http.ResponseWriter, r *http.Request) {
	access := bearerToken(r)
	if access == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	acct, err := l.sessions.Authenticate(access)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return
	}
	hs, err := DecodeHandshake(frame)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()))
		return
	}

	sender := make(notify.Sender, 32)
	addr := remoteAddr(r)
	l.sessions.Connect(acct, access, addr, hs.ClientType, sender)
	defer l.sessions.Disconnect(acct, access, addr)

	done := make(chan struct{})
	go l.writePump(conn, sender, done)
	l.readPump(conn, acct, access, addr)
	close(done)
}

func (l *WebSocketListener) writePump(conn *websocket.Conn, sender notify.Sender, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-sender:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (l *WebSocketListener) readPump(conn *websocket.Conn, acct cmn.AccountIdInternal, access cmn.AccessToken, addr string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev EventToServer
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Kind == ServerEventLogout {
			_ = l.sessions.Logout(acct, access, addr)
			return
		}
		l.dispatch(acct, ev)
	}
}

func (l *WebSocketListener) dispatch(acct cmn.AccountIdInternal, ev EventToServer) {
	now := time.Now()
	switch ev.Kind {
	case ServerEventSendMessage:
		receiver, err := l.read.AccountByUUID(cmn.AccountId(ev.Receiver))
		if err != nil {
			return
		}
		if _, err := l.chatSvc.SendMessage(acct, receiver.IdInternal, ev.Ciphertext, ev.ClientPublicKeyId, now); err != nil {
			glog.Warningf("send_message rejected for %s: %v", acct, err)
		}
	case ServerEventAckSender:
		peer, err := l.read.AccountByUUID(cmn.AccountId(ev.Peer))
		if err != nil {
			return
		}
		_ = l.chatSvc.AckSender(acct, peer.IdInternal, ev.MessageNumber)
	case ServerEventAckReceiver:
		_ = l.chatSvc.AckReceiver(acct, ev.MessageNumber)
	case ServerEventRegisterKey:
		if _, err := l.keyReg.Add(acct, ev.KeyVersion, ev.KeyData, ev.KeyOverride, now); err != nil {
			glog.Warningf("register_key rejected for %s: %v", acct, err)
		}
	case ServerEventEphemeral:
		peer, err := l.read.AccountByUUID(cmn.AccountId(ev.Peer))
		if err != nil {
			return
		}
		if !l.ephemeral.Allow(acct.Row(), peer.IdInternal.Row(), now) {
			return
		}
		l.hub.PublishEphemeral(peer.IdInternal.Row(), notify.EventToClient{
			Kind: notify.EventEphemeral, Account: acct.AccountId(), Payload: ev.EphemeralKind, Timestamp: now,
		})
	}
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
