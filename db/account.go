package db

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/duskline/backend/cmn"
)

// AccountRow is the subset of the accounts table callers need after a read.
type AccountRow struct {
	IdInternal  cmn.AccountIdInternal
	State       cmn.AccountState
	Visibility  cmn.ProfileVisibility
	Permissions int64
	CreatedAt   time.Time
}

// --- ReadCommands: account domain ---

func (r ReadCommands) AccountByInternalId(dbID cmn.AccountIdDb) (*AccountRow, error) {
	row := r.db.QueryRow(`SELECT uuid, state, visibility, permissions, created_unixtime
		FROM accounts WHERE id_db = ?`, int64(dbID))
	return scanAccountRow(row, dbID)
}

func (r ReadCommands) AccountByUUID(id cmn.AccountId) (*AccountRow, error) {
	row := r.db.QueryRow(`SELECT id_db, state, visibility, permissions, created_unixtime
		FROM accounts WHERE uuid = ?`, string(id))
	var dbID int64
	var state, vis int32
	var perms int64
	var created int64
	if err := row.Scan(&dbID, &state, &vis, &perms, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cmn.ErrNotFound("account not found: " + string(id))
		}
		return nil, cmn.ErrInternal("scan account by uuid", err)
	}
	return &AccountRow{
		IdInternal:  cmn.NewAccountIdInternal(id, cmn.AccountIdDb(dbID)),
		State:       cmn.AccountState(state),
		Visibility:  cmn.ProfileVisibility(vis),
		Permissions: perms,
		CreatedAt:   time.Unix(created, 0),
	}, nil
}

func scanAccountRow(row *sql.Row, dbID cmn.AccountIdDb) (*AccountRow, error) {
	var uuid string
	var state, vis int32
	var perms int64
	var created int64
	if err := row.Scan(&uuid, &state, &vis, &perms, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cmn.ErrNotFound("account not found")
		}
		return nil, cmn.ErrInternal("scan account", err)
	}
	return &AccountRow{
		IdInternal:  cmn.NewAccountIdInternal(cmn.AccountId(uuid), dbID),
		State:       cmn.AccountState(state),
		Visibility:  cmn.ProfileVisibility(vis),
		Permissions: perms,
		CreatedAt:   time.Unix(created, 0),
	}, nil
}

// AccountIdByAccessToken resolves a bearer token to an internal id; used to
// prime the cache (C3) on startup and to recover from a cache miss.
func (r ReadCommands) AccountIdByAccessToken(tok cmn.AccessToken) (cmn.AccountIdInternal, error) {
	row := r.db.QueryRow(`SELECT a.uuid, a.id_db FROM accounts a
		JOIN access_tokens t ON t.account_id_db = a.id_db WHERE t.access_token = ?`, string(tok))
	var uuid string
	var dbID int64
	if err := row.Scan(&uuid, &dbID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cmn.AccountIdInternal{}, cmn.ErrUnauthorized("unknown access token")
		}
		return cmn.AccountIdInternal{}, cmn.ErrInternal("scan token", err)
	}
	return cmn.NewAccountIdInternal(cmn.AccountId(uuid), cmn.AccountIdDb(dbID)), nil
}

// AllAccountIds is used by the cache/location-index warm-up at startup.
func (r ReadCommands) AllAccountIds() ([]cmn.AccountIdInternal, error) {
	rows, err := r.db.Query(`SELECT uuid, id_db FROM accounts`)
	if err != nil {
		return nil, cmn.ErrInternal("query all accounts", err)
	}
	defer rows.Close()
	var out []cmn.AccountIdInternal
	for rows.Next() {
		var uuid string
		var dbID int64
		if err := rows.Scan(&uuid, &dbID); err != nil {
			return nil, cmn.ErrInternal("scan account id", err)
		}
		out = append(out, cmn.NewAccountIdInternal(cmn.AccountId(uuid), cmn.AccountIdDb(dbID)))
	}
	return out, rows.Err()
}

// --- WriteCommands: account domain ---

// RegisterAccount inserts a fresh account in InitialSetup state and
// its empty profile row, inside one transaction.
func (w WriteCommands) RegisterAccount(now time.Time) (cmn.AccountIdInternal, error) {
	id := cmn.NewAccountId()
	var dbID int64
	err := w.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO accounts(uuid, state, visibility, permissions, created_unixtime)
			VALUES (?, ?, ?, 0, ?)`, string(id), int32(cmn.AccountInitialSetup), int32(cmn.VisibilityPrivate), now.Unix())
		if err != nil {
			return errors.Wrap(err, "insert account")
		}
		dbID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO profiles(account_id_db) VALUES (?)`, dbID)
		return errors.Wrap(err, "insert profile")
	})
	if err != nil {
		return cmn.AccountIdInternal{}, cmn.ErrInternal("register account", err)
	}
	return cmn.NewAccountIdInternal(id, cmn.AccountIdDb(dbID)), nil
}

// SetAccountState transitions the account's lifecycle state (e.g. InitialSetup
// -> Normal on moderation acceptance).
func (w WriteCommands) SetAccountState(id cmn.AccountIdInternal, state cmn.AccountState) error {
	if !state.Valid() {
		return cmn.ErrNotAllowed("invalid account state ordinal")
	}
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE accounts SET state = ? WHERE id_db = ?`, int32(state), int64(id.Row()))
		return err
	})
}

func (w WriteCommands) SetAccountVisibility(id cmn.AccountIdInternal, v cmn.ProfileVisibility) error {
	if !v.Valid() {
		return cmn.ErrNotAllowed("invalid visibility ordinal")
	}
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE accounts SET visibility = ? WHERE id_db = ?`, int32(v), int64(id.Row()))
		return err
	})
}

// Login mints and stores a fresh access+refresh token pair.
func (w WriteCommands) Login(id cmn.AccountIdInternal, access cmn.AccessToken, refresh cmn.RefreshToken, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO access_tokens(account_id_db, access_token, refresh_token, created_unixtime)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(account_id_db) DO UPDATE SET access_token = excluded.access_token,
				refresh_token = excluded.refresh_token, created_unixtime = excluded.created_unixtime`,
			int64(id.Row()), string(access), string(refresh), now.Unix())
		return err
	})
}

// Logout erases both tokens (invariant 1).
func (w WriteCommands) Logout(id cmn.AccountIdInternal) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM access_tokens WHERE account_id_db = ?`, int64(id.Row()))
		return err
	})
}

// SetPassword hashes and stores the account's password credential (one of
// the two forms of credential state, alongside an external identity
// binding). Uses bcrypt rather than a hand-rolled KDF.
func (w WriteCommands) SetPassword(id cmn.AccountIdInternal, plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return cmn.ErrInternal("hash password", err)
	}
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE accounts SET password_hash = ? WHERE id_db = ?`, string(hash), int64(id.Row()))
		return err
	})
}

// VerifyPassword reports whether plaintext matches the account's stored
// password hash. An account with no password set (external-binding only)
// never matches.
func (r ReadCommands) VerifyPassword(id cmn.AccountIdInternal, plaintext string) (bool, error) {
	row := r.db.QueryRow(`SELECT password_hash FROM accounts WHERE id_db = ?`, int64(id.Row()))
	var hash sql.NullString
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, cmn.ErrNotFound("account not found")
		}
		return false, cmn.ErrInternal("scan password hash", err)
	}
	if !hash.Valid || hash.String == "" {
		return false, nil
	}
	switch err := bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(plaintext)); {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, cmn.ErrInternal("compare password hash", err)
	}
}
