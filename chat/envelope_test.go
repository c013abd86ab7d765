package chat_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/duskline/backend/chat"
	"github.com/duskline/backend/cmn"
)

// TestEnvelopeRoundTrip is scenario: decoding encode(sender, receiver, mn, t,
// bytes) recovers the same tuple.
func TestEnvelopeRoundTrip(t *testing.T) {
	sender := cmn.NewAccountId()
	receiver := cmn.NewAccountId()
	now := time.Unix(1_700_000_000, 0)

	cases := []uint64{0, 1, 255, 256, 65535, 65536, 1 << 32, 1<<63 + 7}
	for _, mn := range cases {
		msg := chat.SignedMessageData{
			Version:       chat.EnvelopeVersion,
			Sender:        sender,
			Receiver:      receiver,
			MessageNumber: mn,
			UnixTime:      now,
			Ciphertext:    []byte("hello, encrypted world"),
		}
		encoded, err := chat.Encode(msg)
		if err != nil {
			t.Fatalf("encode mn=%d: %v", mn, err)
		}
		decoded, err := chat.Decode(encoded)
		if err != nil {
			t.Fatalf("decode mn=%d: %v", mn, err)
		}
		if decoded.Version != msg.Version || decoded.Sender != msg.Sender || decoded.Receiver != msg.Receiver ||
			decoded.MessageNumber != msg.MessageNumber || decoded.UnixTime.Unix() != msg.UnixTime.Unix() ||
			!bytes.Equal(decoded.Ciphertext, msg.Ciphertext) {
			t.Fatalf("round trip mismatch for mn=%d: got %+v", mn, decoded)
		}
	}
}

func TestEnvelopeEmptyCiphertext(t *testing.T) {
	msg := chat.SignedMessageData{
		Version:       chat.EnvelopeVersion,
		Sender:        cmn.NewAccountId(),
		Receiver:      cmn.NewAccountId(),
		MessageNumber: 5,
		UnixTime:      time.Unix(1700000000, 0),
	}
	encoded, err := chat.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := chat.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Ciphertext) != 0 {
		t.Fatalf("expected empty ciphertext, got %q", decoded.Ciphertext)
	}
}
