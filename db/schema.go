package db

const currentSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id_db INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	state INTEGER NOT NULL DEFAULT 0,
	visibility INTEGER NOT NULL DEFAULT 1,
	permissions INTEGER NOT NULL DEFAULT 0,
	password_hash TEXT,
	external_binding TEXT,
	created_unixtime INTEGER NOT NULL,
	deletion_requested_unixtime INTEGER
);

CREATE TABLE IF NOT EXISTS access_tokens (
	account_id_db INTEGER NOT NULL REFERENCES accounts(id_db),
	access_token TEXT NOT NULL UNIQUE,
	refresh_token TEXT NOT NULL,
	created_unixtime INTEGER NOT NULL,
	PRIMARY KEY (account_id_db)
);
CREATE INDEX IF NOT EXISTS idx_access_tokens_token ON access_tokens(access_token);

CREATE TABLE IF NOT EXISTS profiles (
	account_id_db INTEGER PRIMARY KEY REFERENCES accounts(id_db),
	age INTEGER NOT NULL DEFAULT 18,
	name TEXT NOT NULL DEFAULT '',
	name_moderation_state INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL DEFAULT '',
	text_moderation_state INTEGER NOT NULL DEFAULT 0,
	attributes TEXT NOT NULL DEFAULT '{}',
	lat REAL NOT NULL DEFAULT 0,
	lon REAL NOT NULL DEFAULT 0,
	profile_version TEXT NOT NULL DEFAULT '',
	profile_edited_unixtime INTEGER NOT NULL DEFAULT 0,
	profile_content_edited_unixtime INTEGER NOT NULL DEFAULT 0,
	sync_version INTEGER NOT NULL DEFAULT 0,
	last_seen_unixtime INTEGER NOT NULL DEFAULT 0,
	unlimited_likes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_items (
	id_db INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	account_id_db INTEGER NOT NULL REFERENCES accounts(id_db),
	slot INTEGER NOT NULL,
	content_type INTEGER NOT NULL DEFAULT 0,
	moderation_state INTEGER NOT NULL DEFAULT 0,
	face_detected INTEGER NOT NULL DEFAULT 0,
	secure_capture INTEGER NOT NULL DEFAULT 0,
	is_current_profile_content INTEGER NOT NULL DEFAULT 0,
	is_security_content INTEGER NOT NULL DEFAULT 0,
	rejected_category TEXT,
	rejected_details TEXT,
	created_unixtime INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_account ON content_items(account_id_db);

CREATE TABLE IF NOT EXISTS interactions (
	account_a INTEGER NOT NULL,
	account_b INTEGER NOT NULL,
	state INTEGER NOT NULL DEFAULT 0,
	updated_unixtime INTEGER NOT NULL,
	PRIMARY KEY (account_a, account_b)
);
CREATE INDEX IF NOT EXISTS idx_interactions_b ON interactions(account_b, state);

CREATE TABLE IF NOT EXISTS pending_messages (
	receiver_id_db INTEGER NOT NULL,
	message_number INTEGER NOT NULL,
	sender_id_db INTEGER NOT NULL,
	unixtime INTEGER NOT NULL,
	ciphertext BLOB NOT NULL,
	sender_acked INTEGER NOT NULL DEFAULT 0,
	receiver_acked INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (receiver_id_db, message_number)
);
CREATE INDEX IF NOT EXISTS idx_pending_sender ON pending_messages(sender_id_db);

CREATE TABLE IF NOT EXISTS message_number_counters (
	receiver_id_db INTEGER PRIMARY KEY,
	next_number INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS public_keys (
	account_id_db INTEGER NOT NULL,
	key_id INTEGER NOT NULL,
	key_version INTEGER NOT NULL,
	data TEXT NOT NULL,
	created_unixtime INTEGER NOT NULL,
	PRIMARY KEY (account_id_db, key_id)
);
CREATE TABLE IF NOT EXISTS public_key_counters (
	account_id_db INTEGER PRIMARY KEY,
	next_key_id INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS reports (
	id_db INTEGER PRIMARY KEY AUTOINCREMENT,
	creator_id_db INTEGER NOT NULL,
	target_id_db INTEGER NOT NULL,
	content_type TEXT NOT NULL,
	state INTEGER NOT NULL DEFAULT 0,
	created_unixtime INTEGER NOT NULL,
	closed_unixtime INTEGER,
	moderator_id_db INTEGER,
	UNIQUE (creator_id_db, target_id_db, content_type)
);
`

const historySchema = `
CREATE TABLE IF NOT EXISTS metric_values (
	save_time_id INTEGER NOT NULL,
	metric_id TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (save_time_id, metric_id)
);

CREATE TABLE IF NOT EXISTS ip_country_rollup (
	save_time_id INTEGER NOT NULL,
	country TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (save_time_id, country)
);

CREATE TABLE IF NOT EXISTS client_version_rollup (
	save_time_id INTEGER NOT NULL,
	client_type INTEGER NOT NULL,
	version TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (save_time_id, client_type, version)
);
`

func (d *Databases) migrate() error {
	if _, err := d.currentRW.Exec(currentSchema); err != nil {
		return err
	}
	if _, err := d.history.Exec(historySchema); err != nil {
		return err
	}
	return nil
}
