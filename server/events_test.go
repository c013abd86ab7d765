package server_test

import (
	"encoding/json"
	"testing"

	"github.com/duskline/backend/server"
)

func TestEventToServerRoundTripsThroughJSON(t *testing.T) {
	ev := server.EventToServer{
		Kind:              server.ServerEventSendMessage,
		Receiver:          "acct-2",
		Ciphertext:        []byte{1, 2, 3},
		ClientPublicKeyId: 7,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded server.EventToServer
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != ev.Kind || decoded.Receiver != ev.Receiver || decoded.ClientPublicKeyId != ev.ClientPublicKeyId {
		t.Fatalf("round trip mismatch: %+v vs %+v", ev, decoded)
	}
	if string(decoded.Ciphertext) != string(ev.Ciphertext) {
		t.Fatalf("ciphertext mismatch: %v vs %v", ev.Ciphertext, decoded.Ciphertext)
	}
}

func TestEventToServerLogoutKind(t *testing.T) {
	ev := server.EventToServer{Kind: server.ServerEventLogout, AllSessions: true}
	b, _ := json.Marshal(ev)
	var decoded server.EventToServer
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != server.ServerEventLogout || !decoded.AllSessions {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}
