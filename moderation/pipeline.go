// Package moderation is the moderation pipeline (C8): FIFO queues per
// content kind, the bot/human state machine, and admin decisions -- the
// orchestration layer over db/profile.go and db/media.go's query surfaces.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package moderation

import (
	"time"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/notify"
)

// Field identifies which moderated surface a decision applies to.
type Field int

const (
	FieldProfileName Field = iota
	FieldProfileText
	FieldProfileContent
)

func (f Field) String() string {
	switch f {
	case FieldProfileName:
		return "profile_name"
	case FieldProfileText:
		return "profile_text"
	case FieldProfileContent:
		return "profile_content"
	default:
		return "unknown"
	}
}

// Decision is an admin's ruling on a queue item: Accept or Reject, with
// optional category/details on rejection and an optional escalation to the
// human queue instead of a final ruling.
type Decision struct {
	Accept           bool
	RejectedCategory *string
	RejectedDetails  *string
	MoveToHuman      bool
}

// Pipeline orchestrates moderation-state transitions against the relational
// store, the allowlist, and the event bus.
type Pipeline struct {
	write     db.WriteCommands
	read      db.ReadCommands
	allowlist *Allowlist
	hub       *notify.Hub
}

func New(write db.WriteCommands, read db.ReadCommands, allowlist *Allowlist, hub *notify.Hub) *Pipeline {
	return &Pipeline{write: write, read: read, allowlist: allowlist, hub: hub}
}

// ModerationDecisionPayload is the per-reason bucket carried by
// EventModerationDecision: which field was decided and the
// resulting terminal state.
type ModerationDecisionPayload struct {
	Field  string `json:"field"`
	Accept bool   `json:"accept"`
}

// SubmitNameEdit applies the allowlist shortcut (name has an
// additional AcceptedUsingAllowlist terminal state) -- called right after
// EditProfile resets the field to WaitingBotOrHuman, before it reaches any
// queue.
func (p *Pipeline) SubmitNameEdit(id cmn.AccountIdInternal, name string) error {
	if p.allowlist != nil && p.allowlist.Contains(name) {
		return p.write.SetNameModerationState(id, cmn.StrAcceptedUsingAllowlist)
	}
	return nil
}

// BotDecision records an automated classifier's ruling on a WaitingBotOrHuman
// string field. A bot may also decline to decide, in which case the caller
// simply doesn't call this and the item stays for a human instead.
func (p *Pipeline) BotDecision(id cmn.AccountIdInternal, field Field, accepted bool) error {
	state := cmn.StrRejectedByBot
	if accepted {
		state = cmn.StrAcceptedByBot
	}
	return p.setStringState(id, field, state)
}

// MoveStringToHuman escalates a WaitingBotOrHuman item to WaitingHuman.
func (p *Pipeline) MoveStringToHuman(id cmn.AccountIdInternal, field Field) error {
	return p.setStringState(id, field, cmn.StrWaitingHuman)
}

func (p *Pipeline) setStringState(id cmn.AccountIdInternal, field Field, state cmn.StringModerationState) error {
	switch field {
	case FieldProfileName:
		return p.write.SetNameModerationState(id, state)
	case FieldProfileText:
		return p.write.SetTextModerationState(id, state)
	default:
		return cmn.ErrNotAllowed("field is not a string-moderated field")
	}
}

// HumanDecideString applies an admin's ruling on a name/text queue item.
// expectedValue must match the field's current value; a mismatch means the
// account edited the field after the admin fetched the queue page, and the
// decision is rejected as a conflict (scenario S5) rather than silently
// overwriting a newer edit.
func (p *Pipeline) HumanDecideString(id cmn.AccountIdInternal, field Field, expectedValue string, dec Decision) error {
	profile, err := p.read.Profile(id)
	if err != nil {
		return err
	}
	current := profile.Name
	currentState := profile.NameModeration
	if field == FieldProfileText {
		current = profile.Text
		currentState = profile.TextModeration
	}
	if current != expectedValue || currentState != cmn.StrWaitingHuman {
		return cmn.ErrConflict("moderation target changed since the queue was fetched")
	}
	if dec.MoveToHuman {
		return p.setStringState(id, field, cmn.StrWaitingHuman)
	}
	state := cmn.StrRejectedByHuman
	if dec.Accept {
		state = cmn.StrAcceptedByHuman
	}
	if err := p.setStringState(id, field, state); err != nil {
		return err
	}
	p.publishDecision(id, field, dec.Accept)
	return nil
}

// HumanDecideContent applies an admin's ruling on a content-item queue entry.
// expectedState guards the same race as HumanDecideString: if another admin
// already decided this item, the decision is rejected as a conflict.
func (p *Pipeline) HumanDecideContent(id cmn.ContentId, expectedState cmn.ContentModerationState, dec Decision) error {
	row, err := p.read.ContentByUUID(id)
	if err != nil {
		return err
	}
	if row.ModerationState != expectedState {
		return cmn.ErrConflict("content moderation state changed since the queue was fetched")
	}
	if dec.MoveToHuman {
		return p.write.SetContentModerationState(id, cmn.ModWaitingHuman, nil, nil)
	}
	state := cmn.ModRejectedByHuman
	if dec.Accept {
		state = cmn.ModAcceptedByHuman
	}
	if err := p.write.SetContentModerationState(id, state, dec.RejectedCategory, dec.RejectedDetails); err != nil {
		return err
	}
	p.publishDecision(row.Account, FieldProfileContent, dec.Accept)

	if dec.Accept {
		if err := p.completeInitialSetup(row.Account); err != nil {
			return err
		}
	}
	return nil
}

// completeInitialSetup transitions a still-InitialSetup account to Normal
// once one of its setup content items clears human moderation (scenario S1),
// emitting account_state_changed. A no-op for an account already past
// InitialSetup (e.g. this is a later content edit, not the original setup).
func (p *Pipeline) completeInitialSetup(id cmn.AccountIdInternal) error {
	acct, err := p.read.AccountByInternalId(id.Row())
	if err != nil {
		return err
	}
	if acct.State != cmn.AccountInitialSetup {
		return nil
	}
	if err := p.write.SetAccountState(id, cmn.AccountNormal); err != nil {
		return err
	}
	if p.hub != nil {
		p.hub.Publish(id.Row(), notify.EventToClient{
			Kind: notify.EventAccountStateChanged, Account: id.AccountId(),
			Payload: cmn.AccountNormal, Timestamp: time.Now(),
		})
	}
	return nil
}

func (p *Pipeline) publishDecision(id cmn.AccountIdInternal, field Field, accept bool) {
	if p.hub == nil {
		return
	}
	p.hub.Publish(id.Row(), notify.EventToClient{
		Kind: notify.EventModerationDecision, Account: id.AccountId(),
		Payload: ModerationDecisionPayload{Field: field.String(), Accept: accept}, Timestamp: time.Now(),
	})
}

// BotDecideContent records an automated classifier ruling on a WaitingBot
// content item.
func (p *Pipeline) BotDecideContent(id cmn.ContentId, accepted bool) error {
	state := cmn.ModRejectedByBot
	if accepted {
		state = cmn.ModAcceptedByBot
	}
	return p.write.SetContentModerationState(id, state, nil, nil)
}
