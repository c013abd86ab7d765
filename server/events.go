package server

// EventToServer is a client->server WebSocket frame, decoded with jsoniter
// after the handshake completes (spec §4.12/§6). Kind selects which of the
// optional payload fields is populated; unused fields are omitted on the
// wire via `omitempty`.
type EventToServer struct {
	Kind ServerEventKind `json:"t"`

	// SendMessage
	Receiver          string `json:"receiver,omitempty"`
	Ciphertext        []byte `json:"ciphertext,omitempty"`
	ClientPublicKeyId int64  `json:"client_public_key_id,omitempty"`

	// AckSender / AckReceiver
	Peer          string `json:"peer,omitempty"`
	MessageNumber uint64 `json:"message_number,omitempty"`

	// Ephemeral (typing/online)
	EphemeralKind int `json:"ephemeral_kind,omitempty"`

	// Logout
	AllSessions bool `json:"all_sessions,omitempty"`

	// RegisterKey
	KeyVersion  int64  `json:"key_version,omitempty"`
	KeyData     string `json:"key_data,omitempty"`
	KeyOverride *int   `json:"key_override,omitempty"`
}

type ServerEventKind int

const (
	ServerEventSendMessage ServerEventKind = iota
	ServerEventAckSender
	ServerEventAckReceiver
	ServerEventEphemeral
	ServerEventLogout
	ServerEventRegisterKey
)
