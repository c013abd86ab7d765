package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

type ProfileRow struct {
	Age                    int32
	Name                   string
	NameModeration         cmn.StringModerationState
	Text                   string
	TextModeration         cmn.StringModerationState
	Attributes             map[string]string
	Lat, Lon               float64
	ProfileVersion         string
	ProfileEditedAt        time.Time
	ProfileContentEditedAt time.Time
	SyncVersion            cmn.SyncVersion
	LastSeenAt             time.Time
	UnlimitedLikes         bool
}

func (r ReadCommands) Profile(id cmn.AccountIdInternal) (*ProfileRow, error) {
	row := r.db.QueryRow(`SELECT age, name, name_moderation_state, text, text_moderation_state,
		attributes, lat, lon, profile_version, profile_edited_unixtime, profile_content_edited_unixtime,
		sync_version, last_seen_unixtime, unlimited_likes
		FROM profiles WHERE account_id_db = ?`, int64(id.Row()))
	var (
		age, nameMod, textMod, sync int64
		name, text, attrsJSON, ver  string
		lat, lon                    float64
		editedAt, contentEditedAt   int64
		lastSeen                    int64
		unlimited                   int64
	)
	if err := row.Scan(&age, &name, &nameMod, &text, &textMod, &attrsJSON, &lat, &lon, &ver,
		&editedAt, &contentEditedAt, &sync, &lastSeen, &unlimited); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cmn.ErrNotFound("profile not found")
		}
		return nil, cmn.ErrInternal("scan profile", err)
	}
	attrs := map[string]string{}
	_ = json.Unmarshal([]byte(attrsJSON), &attrs)
	return &ProfileRow{
		Age: int32(age), Name: name, NameModeration: cmn.StringModerationState(nameMod),
		Text: text, TextModeration: cmn.StringModerationState(textMod), Attributes: attrs,
		Lat: lat, Lon: lon, ProfileVersion: ver,
		ProfileEditedAt: time.Unix(editedAt, 0), ProfileContentEditedAt: time.Unix(contentEditedAt, 0),
		SyncVersion: cmn.SyncVersion(sync), LastSeenAt: time.Unix(lastSeen, 0), UnlimitedLikes: unlimited != 0,
	}, nil
}

// ProfileEdit carries the fields a profile-edit request may change; nil
// pointers mean "unchanged".
type ProfileEdit struct {
	Name       *string
	Text       *string
	Age        *int32
	Attributes map[string]string
	Lat, Lon   *float64
}

// EditProfile applies edit, bumps ProfileVersion/edited-time, bumps
// SyncVersion (saturating), and -- per invariant 4 -- resets the moderation
// state of any moderated field (name, text) that changed back to
// WaitingBotOrHuman.
func (w WriteCommands) EditProfile(id cmn.AccountIdInternal, edit ProfileEdit, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT name, text, sync_version FROM profiles WHERE account_id_db = ?`, int64(id.Row()))
		var curName, curText string
		var sync int64
		if err := row.Scan(&curName, &curText, &sync); err != nil {
			return err
		}
		nameChanged := edit.Name != nil && *edit.Name != curName
		textChanged := edit.Text != nil && *edit.Text != curText
		next := cmn.SyncVersion(sync).Next()

		q := `UPDATE profiles SET profile_edited_unixtime = ?, profile_version = ?, sync_version = ?`
		args := []interface{}{now.Unix(), cmn.GenTie() + now.Format("150405"), int64(next)}
		if edit.Name != nil {
			q += `, name = ?`
			args = append(args, *edit.Name)
		}
		if nameChanged {
			q += `, name_moderation_state = ?`
			args = append(args, int32(cmn.StrWaitingBotOrHuman))
		}
		if edit.Text != nil {
			q += `, text = ?`
			args = append(args, *edit.Text)
		}
		if textChanged {
			q += `, text_moderation_state = ?`
			args = append(args, int32(cmn.StrWaitingBotOrHuman))
		}
		if edit.Age != nil {
			q += `, age = ?`
			args = append(args, int64(*edit.Age))
		}
		if edit.Attributes != nil {
			b, _ := json.Marshal(edit.Attributes)
			q += `, attributes = ?`
			args = append(args, string(b))
		}
		if edit.Lat != nil && edit.Lon != nil {
			q += `, lat = ?, lon = ?`
			args = append(args, *edit.Lat, *edit.Lon)
		}
		q += ` WHERE account_id_db = ?`
		args = append(args, int64(id.Row()))
		_, err := tx.Exec(q, args...)
		return err
	})
}

// SetNameModerationState is used by the moderation pipeline (C8) to record
// a bot/human decision for the name field (SetTextModerationState does the
// same for the text field).
func (w WriteCommands) SetNameModerationState(id cmn.AccountIdInternal, s cmn.StringModerationState) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE profiles SET name_moderation_state = ? WHERE account_id_db = ?`, int32(s), int64(id.Row()))
		return err
	})
}

func (w WriteCommands) SetTextModerationState(id cmn.AccountIdInternal, s cmn.StringModerationState) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE profiles SET text_moderation_state = ? WHERE account_id_db = ?`, int32(s), int64(id.Row()))
		return err
	})
}

func (w WriteCommands) TouchLastSeen(id cmn.AccountIdInternal, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE profiles SET last_seen_unixtime = ? WHERE account_id_db = ?`, now.Unix(), int64(id.Row()))
		return err
	})
}

// ProfileModerationCandidate is a row from the profile-name/profile-text
// moderation queue view (C8), ordered by (edit_time, account_id) as spec'd.
type ProfileModerationCandidate struct {
	Account   cmn.AccountIdInternal
	Name      string
	Text      string
	EditedAt  time.Time
}

func (r ReadCommands) NameModerationQueue(state cmn.StringModerationState, limit int) ([]ProfileModerationCandidate, error) {
	return r.stringModerationQueue("name_moderation_state", "name", state, limit)
}

func (r ReadCommands) TextModerationQueue(state cmn.StringModerationState, limit int) ([]ProfileModerationCandidate, error) {
	return r.stringModerationQueue("text_moderation_state", "text", state, limit)
}

func (r ReadCommands) stringModerationQueue(stateCol, valCol string, state cmn.StringModerationState, limit int) ([]ProfileModerationCandidate, error) {
	q := `SELECT a.uuid, a.id_db, p.` + valCol + `, p.profile_edited_unixtime
		FROM profiles p JOIN accounts a ON a.id_db = p.account_id_db
		WHERE p.` + stateCol + ` = ?
		ORDER BY p.profile_edited_unixtime ASC, a.id_db ASC LIMIT ?`
	rows, err := r.db.Query(q, int32(state), limit)
	if err != nil {
		return nil, cmn.ErrInternal("query moderation queue", err)
	}
	defer rows.Close()
	var out []ProfileModerationCandidate
	for rows.Next() {
		var uuid, val string
		var dbID, editedAt int64
		if err := rows.Scan(&uuid, &dbID, &val, &editedAt); err != nil {
			return nil, cmn.ErrInternal("scan moderation row", err)
		}
		out = append(out, ProfileModerationCandidate{
			Account:  cmn.NewAccountIdInternal(cmn.AccountId(uuid), cmn.AccountIdDb(dbID)),
			Name:     val,
			EditedAt: time.Unix(editedAt, 0),
		})
	}
	return out, rows.Err()
}
