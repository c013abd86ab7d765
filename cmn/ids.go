// Package cmn provides common low-level types and utilities shared by every
// other package in the backend: account identities, typed enums, and the
// error taxonomy the HTTP/WebSocket edge translates to status codes.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "github.com/google/uuid"

// AccountIdDb is the opaque monotonic row id backing an account in the
// current database. It is never exposed on an external surface.
type AccountIdDb int64

// AccountId is the stable public identifier handed to clients.
type AccountId string

// AccountIdInternal pairs the public id with the row id. It is the sole
// account handle passed between packages inside the core; nothing outside
// cmn constructs one except through NewAccountIdInternal.
type AccountIdInternal struct {
	id AccountId
	db AccountIdDb
}

func NewAccountIdInternal(id AccountId, db AccountIdDb) AccountIdInternal {
	return AccountIdInternal{id: id, db: db}
}

func (a AccountIdInternal) AccountId() AccountId     { return a.id }
func (a AccountIdInternal) Row() AccountIdDb         { return a.db }
func (a AccountIdInternal) IsEmpty() bool            { return a.db == 0 && a.id == "" }
func (a AccountIdInternal) String() string           { return string(a.id) }

// NewAccountId mints a fresh random public account id.
func NewAccountId() AccountId { return AccountId(uuid.NewString()) }

// ContentId is the public identifier of a content item (image etc).
type ContentId string

func NewContentId() ContentId { return ContentId(uuid.NewString()) }

// ContentIdDb is the opaque row id of a content item.
type ContentIdDb int64

// AccessToken is a 256-bit random, base64url-encoded bearer credential.
type AccessToken string

// RefreshToken is a sibling long-lived credential stored alongside the
// access token and rotated together at login/logout.
type RefreshToken string
