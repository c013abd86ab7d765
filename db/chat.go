package db

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
)

// --- interactions ---

func (r ReadCommands) InteractionState(a, b cmn.AccountIdDb) (cmn.InteractionState, error) {
	row := r.db.QueryRow(`SELECT state FROM interactions WHERE account_a = ? AND account_b = ?`, int64(a), int64(b))
	var state int32
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cmn.InteractionEmpty, nil
		}
		return 0, cmn.ErrInternal("scan interaction", err)
	}
	return cmn.InteractionState(state), nil
}

// SetLike records a→b LikeSent / b→a LikeReceived atomically (invariant 2
// requires the reverse edge too); if b already liked a, both become Match.
func (w WriteCommands) SetLike(a, b cmn.AccountIdDb, now time.Time) (becameMatch bool, err error) {
	err = w.withTx(func(tx *sql.Tx) error {
		reverse, e := queryState(tx, b, a)
		if e != nil {
			return e
		}
		forward := cmn.InteractionLikeSent
		backward := cmn.InteractionLikeReceived
		if reverse == cmn.InteractionLikeSent {
			forward = cmn.InteractionMatch
			backward = cmn.InteractionMatch
			becameMatch = true
		}
		if e := upsertInteraction(tx, a, b, forward, now); e != nil {
			return e
		}
		return upsertInteraction(tx, b, a, backward, now)
	})
	return
}

func (w WriteCommands) SetBlock(a, b cmn.AccountIdDb, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		return upsertInteraction(tx, a, b, cmn.InteractionBlockSent, now)
	})
}

func queryState(tx *sql.Tx, a, b cmn.AccountIdDb) (cmn.InteractionState, error) {
	row := tx.QueryRow(`SELECT state FROM interactions WHERE account_a = ? AND account_b = ?`, int64(a), int64(b))
	var state int32
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cmn.InteractionEmpty, nil
		}
		return 0, err
	}
	return cmn.InteractionState(state), nil
}

func upsertInteraction(tx *sql.Tx, a, b cmn.AccountIdDb, state cmn.InteractionState, now time.Time) error {
	_, err := tx.Exec(`INSERT INTO interactions(account_a, account_b, state, updated_unixtime) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_a, account_b) DO UPDATE SET state = excluded.state, updated_unixtime = excluded.updated_unixtime`,
		int64(a), int64(b), int32(state), now.Unix())
	return err
}

// --- pending messages ---

type PendingMessageRow struct {
	Receiver      cmn.AccountIdDb
	MessageNumber uint64
	Sender        cmn.AccountIdDb
	UnixTime      time.Time
	Ciphertext    []byte
	SenderAcked   bool
	ReceiverAcked bool
}

// nextMessageNumber allocates the next receiver-scoped monotonic number
// (spec §4.9: MessageNumber is monotone per receiver, not per pair).
func (w WriteCommands) nextMessageNumber(tx *sql.Tx, receiver cmn.AccountIdDb) (uint64, error) {
	_, err := tx.Exec(`INSERT INTO message_number_counters(receiver_id_db, next_number) VALUES (?, 2)
		ON CONFLICT(receiver_id_db) DO UPDATE SET next_number = next_number + 1`, int64(receiver))
	if err != nil {
		return 0, err
	}
	row := tx.QueryRow(`SELECT next_number - 1 FROM message_number_counters WHERE receiver_id_db = ?`, int64(receiver))
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// InsertPendingMessage allocates a message number and stores the envelope.
func (w WriteCommands) InsertPendingMessage(sender, receiver cmn.AccountIdDb, ciphertext []byte, now time.Time) (uint64, error) {
	var mn uint64
	err := w.withTx(func(tx *sql.Tx) error {
		n, err := w.nextMessageNumber(tx, receiver)
		if err != nil {
			return err
		}
		mn = n
		_, err = tx.Exec(`INSERT INTO pending_messages(receiver_id_db, message_number, sender_id_db, unixtime, ciphertext)
			VALUES (?, ?, ?, ?, ?)`, int64(receiver), int64(mn), int64(sender), now.Unix(), ciphertext)
		return err
	})
	return mn, err
}

func (r ReadCommands) CountUnackedFromSender(sender, receiver cmn.AccountIdDb) (int, error) {
	row := r.db.QueryRow(`SELECT COUNT(*) FROM pending_messages WHERE sender_id_db = ? AND receiver_id_db = ? AND sender_acked = 0`,
		int64(sender), int64(receiver))
	var n int
	return n, row.Scan(&n)
}

func (r ReadCommands) CountUnackedToReceiver(receiver cmn.AccountIdDb) (int, error) {
	row := r.db.QueryRow(`SELECT COUNT(*) FROM pending_messages WHERE receiver_id_db = ? AND receiver_acked = 0`, int64(receiver))
	var n int
	return n, row.Scan(&n)
}

// AckSender/AckReceiver set the respective ack bit; the row is deleted once
// both bits are set (spec §4.9).
func (w WriteCommands) AckSender(sender, receiver cmn.AccountIdDb, mn uint64) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE pending_messages SET sender_acked = 1
			WHERE sender_id_db = ? AND receiver_id_db = ? AND message_number = ?`, int64(sender), int64(receiver), int64(mn))
		if err != nil {
			return err
		}
		return deleteIfFullyAcked(tx, receiver, mn)
	})
}

func (w WriteCommands) AckReceiver(receiver cmn.AccountIdDb, mn uint64) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE pending_messages SET receiver_acked = 1
			WHERE receiver_id_db = ? AND message_number = ?`, int64(receiver), int64(mn))
		if err != nil {
			return err
		}
		return deleteIfFullyAcked(tx, receiver, mn)
	})
}

func deleteIfFullyAcked(tx *sql.Tx, receiver cmn.AccountIdDb, mn uint64) error {
	_, err := tx.Exec(`DELETE FROM pending_messages WHERE receiver_id_db = ? AND message_number = ? AND sender_acked = 1 AND receiver_acked = 1`,
		int64(receiver), int64(mn))
	return err
}

func (r ReadCommands) PendingMessagesForReceiver(receiver cmn.AccountIdDb) ([]PendingMessageRow, error) {
	rows, err := r.db.Query(`SELECT receiver_id_db, message_number, sender_id_db, unixtime, ciphertext, sender_acked, receiver_acked
		FROM pending_messages WHERE receiver_id_db = ? ORDER BY message_number ASC`, int64(receiver))
	if err != nil {
		return nil, cmn.ErrInternal("query pending messages", err)
	}
	defer rows.Close()
	var out []PendingMessageRow
	for rows.Next() {
		var recv, sender, mn, t int64
		var ct []byte
		var sAck, rAck int
		if err := rows.Scan(&recv, &mn, &sender, &t, &ct, &sAck, &rAck); err != nil {
			return nil, err
		}
		out = append(out, PendingMessageRow{
			Receiver: cmn.AccountIdDb(recv), MessageNumber: uint64(mn), Sender: cmn.AccountIdDb(sender),
			UnixTime: time.Unix(t, 0), Ciphertext: ct, SenderAcked: sAck != 0, ReceiverAcked: rAck != 0,
		})
	}
	return out, rows.Err()
}

// --- public keys ---

func (w WriteCommands) AddPublicKey(account cmn.AccountIdDb, version int64, data string, maxKeys int, now time.Time) (keyID int64, err error) {
	err = w.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT COUNT(*) FROM public_keys WHERE account_id_db = ?`, int64(account))
		var count int
		if err := row.Scan(&count); err != nil {
			return err
		}
		if count >= maxKeys {
			return cmn.ErrLimitReached("too many public keys")
		}
		_, err := tx.Exec(`INSERT INTO public_key_counters(account_id_db, next_key_id) VALUES (?, 2)
			ON CONFLICT(account_id_db) DO UPDATE SET next_key_id = next_key_id + 1`, int64(account))
		if err != nil {
			return err
		}
		row = tx.QueryRow(`SELECT next_key_id - 1 FROM public_key_counters WHERE account_id_db = ?`, int64(account))
		if err := row.Scan(&keyID); err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO public_keys(account_id_db, key_id, key_version, data, created_unixtime)
			VALUES (?, ?, ?, ?, ?)`, int64(account), keyID, version, data, now.Unix())
		return err
	})
	return
}

func (r ReadCommands) LatestPublicKeyId(account cmn.AccountIdDb) (int64, error) {
	row := r.db.QueryRow(`SELECT MAX(key_id) FROM public_keys WHERE account_id_db = ?`, int64(account))
	var id sql.NullInt64
	if err := row.Scan(&id); err != nil {
		return 0, cmn.ErrInternal("scan latest key id", err)
	}
	return id.Int64, nil
}

func (r ReadCommands) PublicKeyData(account cmn.AccountIdDb, keyID int64) (string, error) {
	row := r.db.QueryRow(`SELECT data FROM public_keys WHERE account_id_db = ? AND key_id = ?`, int64(account), keyID)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", cmn.ErrNotFound("public key not found")
		}
		return "", cmn.ErrInternal("scan public key", err)
	}
	return data, nil
}
