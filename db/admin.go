package db

import (
	"database/sql"
	"time"

	"github.com/duskline/backend/cmn"
)

// AccountAdmin is the admin-only namespace for the account domain, kept
// separate from ReadCommands/WriteCommands so an admin query can never be
// reached accidentally through a non-admin handle (spec §4.1).
type AccountAdmin struct{ w WriteCommands }

func (w WriteCommands) Admin() AccountAdmin { return AccountAdmin{w: w} }

// Ban sets state=Banned regardless of current state; used by the moderation
// admin sum type (design note §9).
func (a AccountAdmin) Ban(id cmn.AccountIdInternal) error {
	return a.w.SetAccountState(id, cmn.AccountBanned)
}

// DestroyAccount is the only non-elapse path that removes an account row
// (spec §3: "destroyed only by admin or by elapse of the deletion wait
// window"). In one transaction it deletes the account's rows from
// access_tokens, profiles, content_items, interactions, pending_messages,
// public_keys and accounts; rows in reports, message_number_counters and
// public_key_counters are left in place.
func (a AccountAdmin) DestroyAccount(id cmn.AccountIdInternal) error {
	return a.w.withTx(func(tx *sql.Tx) error {
		dbID := int64(id.Row())
		for _, stmt := range []string{
			`DELETE FROM access_tokens WHERE account_id_db = ?`,
			`DELETE FROM profiles WHERE account_id_db = ?`,
			`DELETE FROM content_items WHERE account_id_db = ?`,
			`DELETE FROM interactions WHERE account_a = ? OR account_b = ?`,
			`DELETE FROM pending_messages WHERE sender_id_db = ? OR receiver_id_db = ?`,
			`DELETE FROM public_keys WHERE account_id_db = ?`,
			`DELETE FROM accounts WHERE id_db = ?`,
		} {
			args := []interface{}{dbID}
			if count := countPlaceholders(stmt); count == 2 {
				args = append(args, dbID)
			}
			if _, err := tx.Exec(stmt, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func countPlaceholders(stmt string) int {
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
		}
	}
	return n
}

// MarkPendingDeletion flips state to PendingDeletion and stamps the request
// time; a background sweep destroys accounts whose wait window has elapsed.
func (w WriteCommands) MarkPendingDeletion(id cmn.AccountIdInternal, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE accounts SET state = ?, deletion_requested_unixtime = ? WHERE id_db = ?`,
			int32(cmn.AccountPendingDeletion), now.Unix(), int64(id.Row()))
		return err
	})
}

// AccountsPastDeletionWindow finds PendingDeletion accounts whose wait window
// has elapsed, for the admin sweep to destroy.
func (r ReadCommands) AccountsPastDeletionWindow(wait time.Duration, now time.Time) ([]cmn.AccountIdInternal, error) {
	cutoff := now.Add(-wait).Unix()
	rows, err := r.db.Query(`SELECT uuid, id_db FROM accounts WHERE state = ? AND deletion_requested_unixtime <= ?`,
		int32(cmn.AccountPendingDeletion), cutoff)
	if err != nil {
		return nil, cmn.ErrInternal("query pending deletion", err)
	}
	defer rows.Close()
	var out []cmn.AccountIdInternal
	for rows.Next() {
		var uuid string
		var dbID int64
		if err := rows.Scan(&uuid, &dbID); err != nil {
			return nil, err
		}
		out = append(out, cmn.NewAccountIdInternal(cmn.AccountId(uuid), cmn.AccountIdDb(dbID)))
	}
	return out, rows.Err()
}
