// Package server is the session layer (C12): the WebSocket handshake,
// login/logout side effects, and ephemeral-event rate limiting, adapted from
// the teacher's daemon/rungroup supervisor shape (formerly package ais).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package server

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// ProtocolVersion is the current first-byte value a client must send.
const ProtocolVersion byte = 1

const handshakeSize = 1 + 1 + 2 + 2 + 2

// Handshake is the first frame a client sends after opening the WebSocket
// (spec §4.12/§6): protocol version, client type, and the client's own
// semantic version.
type Handshake struct {
	ProtocolVersion byte
	ClientType      cmn.ClientType
	Major           uint16
	Minor           uint16
	Patch           uint16
}

// DecodeHandshake parses the fixed 8-byte first frame.
func DecodeHandshake(data []byte) (Handshake, error) {
	if len(data) != handshakeSize {
		return Handshake{}, errors.Errorf("handshake frame must be %d bytes, got %d", handshakeSize, len(data))
	}
	h := Handshake{
		ProtocolVersion: data[0],
		ClientType:      cmn.ClientType(data[1]),
		Major:           binary.LittleEndian.Uint16(data[2:4]),
		Minor:           binary.LittleEndian.Uint16(data[4:6]),
		Patch:           binary.LittleEndian.Uint16(data[6:8]),
	}
	if h.ProtocolVersion != ProtocolVersion {
		return Handshake{}, cmn.ErrNotAllowed("unsupported protocol version")
	}
	if !h.ClientType.Valid() {
		return Handshake{}, cmn.ErrNotAllowed("unrecognized client type")
	}
	return h, nil
}

// EncodeHandshake is the inverse of DecodeHandshake, mostly useful for tests
// and for a test client driving the handshake end to end.
func EncodeHandshake(h Handshake) []byte {
	buf := make([]byte, handshakeSize)
	buf[0] = h.ProtocolVersion
	buf[1] = byte(h.ClientType)
	binary.LittleEndian.PutUint16(buf[2:4], h.Major)
	binary.LittleEndian.PutUint16(buf[4:6], h.Minor)
	binary.LittleEndian.PutUint16(buf[6:8], h.Patch)
	return buf
}
