package db

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

type ContentRow struct {
	Id               cmn.ContentId
	IdDb             cmn.ContentIdDb
	Account          cmn.AccountIdInternal
	Slot             int
	ContentType      cmn.ContentType
	ModerationState  cmn.ContentModerationState
	FaceDetected     bool
	SecureCapture    bool
	IsCurrentProfile bool
	IsSecurityContent bool
	CreatedAt        time.Time
}

// UploadContent inserts a new content row in a slot, InSlot state.
func (w WriteCommands) UploadContent(account cmn.AccountIdInternal, slot int, now time.Time) (cmn.ContentId, error) {
	id := cmn.NewContentId()
	err := w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO content_items(uuid, account_id_db, slot, content_type, moderation_state, created_unixtime)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(id), int64(account.Row()), slot, int32(cmn.ContentTypeJpegImage), int32(cmn.ModInSlot), now.Unix())
		return err
	})
	if err != nil {
		return "", cmn.ErrInternal("upload content", err)
	}
	return id, nil
}

// MoveToModerationQueue transitions a content item from InSlot to
// WaitingBot once the owning account submits a moderation request (spec S1).
func (w WriteCommands) MoveToModerationQueue(id cmn.ContentId) error {
	return w.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE content_items SET moderation_state = ?
			WHERE uuid = ? AND moderation_state = ?`,
			int32(cmn.ModWaitingBot), string(id), int32(cmn.ModInSlot))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return cmn.ErrConflict("content not in slot state")
		}
		return nil
	})
}

func (w WriteCommands) SetContentModerationState(id cmn.ContentId, state cmn.ContentModerationState, rejectedCategory, rejectedDetails *string) error {
	if !state.Valid() {
		return cmn.ErrNotAllowed("invalid content moderation state")
	}
	return w.withTx(func(tx *sql.Tx) error {
		isCurrent := 0
		if state.Accepted() {
			isCurrent = 1
		}
		_, err := tx.Exec(`UPDATE content_items SET moderation_state = ?, is_current_profile_content = ?,
			rejected_category = ?, rejected_details = ? WHERE uuid = ?`,
			int32(state), isCurrent, rejectedCategory, rejectedDetails, string(id))
		return err
	})
}

func (r ReadCommands) ContentByUUID(id cmn.ContentId) (*ContentRow, error) {
	row := r.db.QueryRow(`SELECT uuid, id_db, account_id_db, slot, content_type, moderation_state,
		face_detected, secure_capture, is_current_profile_content, is_security_content, created_unixtime
		FROM content_items WHERE uuid = ?`, string(id))
	return scanContentRow(row)
}

func scanContentRow(row *sql.Row) (*ContentRow, error) {
	var uuid string
	var idDb, accDb int64
	var slot int
	var ctype, modState int32
	var face, secure, isCurrent, isSecurity int
	var created int64
	if err := row.Scan(&uuid, &idDb, &accDb, &slot, &ctype, &modState, &face, &secure, &isCurrent, &isSecurity, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cmn.ErrNotFound("content not found")
		}
		return nil, cmn.ErrInternal("scan content", err)
	}
	return &ContentRow{
		Id: cmn.ContentId(uuid), IdDb: cmn.ContentIdDb(idDb),
		Account: cmn.NewAccountIdInternal("", cmn.AccountIdDb(accDb)),
		Slot: slot, ContentType: cmn.ContentType(ctype), ModerationState: cmn.ContentModerationState(modState),
		FaceDetected: face != 0, SecureCapture: secure != 0, IsCurrentProfile: isCurrent != 0,
		IsSecurityContent: isSecurity != 0, CreatedAt: time.Unix(created, 0),
	}, nil
}

// ContentModerationQueue returns up to `limit` rows awaiting the given state,
// ordered (edit_time, account_id) per spec §4.8.
func (r ReadCommands) ContentModerationQueue(state cmn.ContentModerationState, limit int) ([]ContentRow, error) {
	rows, err := r.db.Query(`SELECT uuid, id_db, account_id_db, slot, content_type, moderation_state,
		face_detected, secure_capture, is_current_profile_content, is_security_content, created_unixtime
		FROM content_items WHERE moderation_state = ?
		ORDER BY created_unixtime ASC, account_id_db ASC LIMIT ?`, int32(state), limit)
	if err != nil {
		return nil, cmn.ErrInternal("query content moderation queue", err)
	}
	defer rows.Close()
	var out []ContentRow
	for rows.Next() {
		var uuid string
		var idDb, accDb int64
		var slot int
		var ctype, modState int32
		var face, secure, isCurrent, isSecurity int
		var created int64
		if err := rows.Scan(&uuid, &idDb, &accDb, &slot, &ctype, &modState, &face, &secure, &isCurrent, &isSecurity, &created); err != nil {
			return nil, cmn.ErrInternal("scan content moderation row", err)
		}
		out = append(out, ContentRow{
			Id: cmn.ContentId(uuid), IdDb: cmn.ContentIdDb(idDb),
			Account: cmn.NewAccountIdInternal("", cmn.AccountIdDb(accDb)),
			Slot: slot, ContentType: cmn.ContentType(ctype), ModerationState: cmn.ContentModerationState(modState),
			FaceDetected: face != 0, SecureCapture: secure != 0, IsCurrentProfile: isCurrent != 0,
			IsSecurityContent: isSecurity != 0, CreatedAt: time.Unix(created, 0),
		})
	}
	return out, rows.Err()
}

func (w WriteCommands) DeleteContent(id cmn.ContentId) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM content_items WHERE uuid = ?`, string(id))
		return err
	})
}
