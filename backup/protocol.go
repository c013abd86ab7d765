// Package backup is the source/target backup-transfer protocol (C11): a
// rendezvous keyed by AccountId+password and a framed relay between the two
// sides, enforcing a single pending Target per account and a no-progress
// timeout.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package backup

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MessageType identifies a backup-transfer frame (spec §4.11).
type MessageType uint8

const (
	Empty MessageType = iota
	StartBackupSession
	ContentList
	ContentQueryAnswer
	ContentQuery
	ContentListSyncDone
)

func (t MessageType) Valid() bool { return t <= ContentListSyncDone }

// Frame is one backup-transfer message: an 8-bit type, a 32-bit session id
// scoping it to one rendezvous, and an opaque payload.
type Frame struct {
	Type    MessageType
	Session uint32
	Payload []byte
}

const headerSize = 1 + 4

// Encode serialises a Frame as type:u8, session:u32 big-endian, payload.
func Encode(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[1:5], f.Session)
	copy(buf[headerSize:], f.Payload)
	return buf
}

func Decode(data []byte) (Frame, error) {
	if len(data) < headerSize {
		return Frame{}, errors.New("backup frame shorter than header")
	}
	t := MessageType(data[0])
	if !t.Valid() {
		return Frame{}, errors.Errorf("invalid backup message type %d", data[0])
	}
	session := binary.BigEndian.Uint32(data[1:5])
	payload := append([]byte(nil), data[headerSize:]...)
	return Frame{Type: t, Session: session, Payload: payload}, nil
}
