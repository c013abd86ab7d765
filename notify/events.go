// Package notify is the event bus (C5): a typed per-connection event
// channel, pending-notification folding into the cache's bitset when no
// connection exists, and admin subscription routing.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package notify

import (
	"time"

	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/cmn"
)

// EventKind identifies an EventToClient variant.
type EventKind int

const (
	EventProfileChanged EventKind = iota
	EventMediaChanged
	EventMatch
	EventNewMessage
	EventModerationDecision
	EventAccountStateChanged
	EventNews
	EventAdminNotification
	// EventEphemeral carries a typing/online signal (spec §4.12): never
	// folded into the pending-notification bitset, since a recipient who
	// wasn't connected to see it live has nothing meaningful to catch up on.
	EventEphemeral
)

func (k EventKind) pendingFlag() cache.PendingNotificationFlags {
	switch k {
	case EventProfileChanged:
		return cache.PendingProfileChanged
	case EventMediaChanged:
		return cache.PendingMediaChanged
	case EventMatch:
		return cache.PendingMatch
	case EventNewMessage:
		return cache.PendingNewMessage
	case EventModerationDecision:
		return cache.PendingModerationDecision
	case EventAccountStateChanged:
		return cache.PendingAccountStateChanged
	case EventNews:
		return cache.PendingNews
	default:
		return 0
	}
}

// EventToClient is the envelope delivered to a connected client or folded
// into the cache's pending-notification bitset.
type EventToClient struct {
	Kind      EventKind   `json:"t"`
	Account   cmn.AccountId `json:"a,omitempty"`
	Payload   interface{} `json:"o,omitempty"`
	Timestamp time.Time   `json:"-"`
}

// AdminSubscription gates which admin notifications an admin connection
// receives: subscription bits plus a per-subscription min-timestamp (an
// admin who just subscribed doesn't get a backlog of past events).
type AdminSubscription struct {
	Bits         uint32
	MinTimestamp time.Time
}

func (s AdminSubscription) accepts(bit uint32, ts time.Time) bool {
	return s.Bits&bit != 0 && !ts.Before(s.MinTimestamp)
}
