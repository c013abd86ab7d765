// Package chat is the messaging core (C9): the signed envelope wire format
// and the send_message orchestration over db/chat.go's pending-message store.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package chat

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// SignedMessageData is the canonical byte layout clients sign over (spec
// §4.9). The server never inspects Ciphertext; it only stores and forwards
// it.
type SignedMessageData struct {
	Version       byte
	Sender        cmn.AccountId
	Receiver      cmn.AccountId
	MessageNumber uint64
	UnixTime      time.Time
	Ciphertext    []byte
}

const EnvelopeVersion byte = 1

// Encode serialises: version byte, 16-byte sender UUID, 16-byte receiver
// UUID, width-prefixed MessageNumber, width-prefixed unix time, ciphertext.
func Encode(msg SignedMessageData) ([]byte, error) {
	sender, err := uuid.Parse(string(msg.Sender))
	if err != nil {
		return nil, errors.Wrap(err, "parse sender account id")
	}
	receiver, err := uuid.Parse(string(msg.Receiver))
	if err != nil {
		return nil, errors.Wrap(err, "parse receiver account id")
	}

	var buf bytes.Buffer
	buf.WriteByte(msg.Version)
	buf.Write(sender[:])
	buf.Write(receiver[:])
	writeWidthPrefixed(&buf, msg.MessageNumber)
	writeWidthPrefixed(&buf, uint64(msg.UnixTime.Unix()))
	buf.Write(msg.Ciphertext)
	return buf.Bytes(), nil
}

// Decode recovers the tuple encoded by Encode; it is the caller's job to
// verify the signature over these same bytes before trusting the content.
func Decode(data []byte) (SignedMessageData, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read version")
	}

	var senderBytes, receiverBytes [16]byte
	if _, err := io.ReadFull(r, senderBytes[:]); err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read sender uuid")
	}
	if _, err := io.ReadFull(r, receiverBytes[:]); err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read receiver uuid")
	}
	sender, err := uuid.FromBytes(senderBytes[:])
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "decode sender uuid")
	}
	receiver, err := uuid.FromBytes(receiverBytes[:])
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "decode receiver uuid")
	}

	mn, err := readWidthPrefixed(r)
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read message number")
	}
	ts, err := readWidthPrefixed(r)
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read unix time")
	}

	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return SignedMessageData{}, errors.Wrap(err, "read ciphertext")
	}

	return SignedMessageData{
		Version:       version,
		Sender:        cmn.AccountId(sender.String()),
		Receiver:      cmn.AccountId(receiver.String()),
		MessageNumber: mn,
		UnixTime:      time.Unix(int64(ts), 0),
		Ciphertext:    ciphertext,
	}, nil
}

// widthFor returns the smallest of {1,2,4,8} bytes that holds v.
func widthFor(v uint64) byte {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

func writeWidthPrefixed(buf *bytes.Buffer, v uint64) {
	width := widthFor(v)
	buf.WriteByte(width)
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(b, v)
	}
	buf.Write(b)
}

func readWidthPrefixed(r *bytes.Reader) (uint64, error) {
	width, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch width {
	case 1, 2, 4, 8:
	default:
		return 0, errors.Errorf("invalid width-prefix byte %d", width)
	}
	b := make([]byte, width)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	default:
		return binary.BigEndian.Uint64(b), nil
	}
}
