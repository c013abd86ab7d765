package chat

import (
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/config"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/notify"
)

// Service orchestrates send_message (spec §4.9) over the relational pending-
// message store, publishing a new-message event to the receiver on success.
type Service struct {
	write  db.WriteCommands
	read   db.ReadCommands
	hub    *notify.Hub
	limits config.LimitsConfig
}

func New(write db.WriteCommands, read db.ReadCommands, hub *notify.Hub, limits config.LimitsConfig) *Service {
	return &Service{write: write, read: read, hub: hub, limits: limits}
}

// SendMessage runs the four send_message checks in order and, on success,
// assigns the next receiver-scoped MessageNumber and emits EventNewMessage.
func (s *Service) SendMessage(sender, receiver cmn.AccountIdInternal, ciphertext []byte, clientPublicKeyId int64, now time.Time) (uint64, error) {
	forward, err := s.read.InteractionState(sender.Row(), receiver.Row())
	if err != nil {
		return 0, err
	}
	if forward != cmn.InteractionMatch {
		return 0, cmn.ErrNotAllowed("accounts are not matched")
	}
	backward, err := s.read.InteractionState(receiver.Row(), sender.Row())
	if err != nil {
		return 0, err
	}
	if backward == cmn.InteractionBlockSent {
		return 0, cmn.ErrForbidden("receiver has blocked sender")
	}

	latestKeyId, err := s.read.LatestPublicKeyId(receiver.Row())
	if err != nil {
		return 0, err
	}
	if latestKeyId > clientPublicKeyId {
		return 0, cmn.ErrConflict("receiver public key outdated")
	}

	unackedFromSender, err := s.read.CountUnackedFromSender(sender.Row(), receiver.Row())
	if err != nil {
		return 0, err
	}
	if unackedFromSender >= s.limits.MaxSenderAckMissing {
		return 0, cmn.ErrLimitReached("sender has too many unacked messages to this receiver")
	}
	unackedToReceiver, err := s.read.CountUnackedToReceiver(receiver.Row())
	if err != nil {
		return 0, err
	}
	if unackedToReceiver >= s.limits.MaxReceiverAckMissing {
		return 0, cmn.ErrLimitReached("receiver has too many unacked incoming messages")
	}

	mn, err := s.write.InsertPendingMessage(sender.Row(), receiver.Row(), ciphertext, now)
	if err != nil {
		return 0, err
	}

	s.hub.Publish(receiver.Row(), notify.EventToClient{
		Kind:      notify.EventNewMessage,
		Account:   sender.AccountId(),
		Payload:   newMessagePayload{MessageNumber: mn},
		Timestamp: now,
	})
	return mn, nil
}

type newMessagePayload struct {
	MessageNumber uint64 `json:"mn"`
}

// AckSender/AckReceiver forward to the data layer; the row is deleted once
// both acks have landed (spec §4.9).
func (s *Service) AckSender(sender, receiver cmn.AccountIdInternal, mn uint64) error {
	return s.write.AckSender(sender.Row(), receiver.Row(), mn)
}

func (s *Service) AckReceiver(receiver cmn.AccountIdInternal, mn uint64) error {
	return s.write.AckReceiver(receiver.Row(), mn)
}

// Pending returns the receiver's outstanding pending messages in
// MessageNumber order (spec invariant 3: gap-free, strictly increasing).
func (s *Service) Pending(receiver cmn.AccountIdInternal) ([]db.PendingMessageRow, error) {
	return s.read.PendingMessagesForReceiver(receiver.Row())
}
