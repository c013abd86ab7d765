// Package db is the relational store (spec §4.1): two physical SQLite
// databases, "current" (mutable state) and "history" (append-only stats and
// retired data), exposed as ReadCommands (pooled, issues only reads) and
// WriteCommands (single serialized connection, transaction-scoped). Access is
// namespaced per domain -- account, profile, media, chat, common -- with a
// parallel "_admin" namespace per domain for admin-only queries, mirroring
// the teacher's separation of cluster-facing vs admin-facing command sets.
package db

import (
	"database/sql"
	"path/filepath"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Databases owns the current and history *sql.DB pools plus the single
// writer connection. The writer pool is capped at one open connection, so
// concurrent Write calls wait for it inside database/sql. The domain services
// call WriteCommands directly; their writes do not pass through the write
// runner (C4).
type Databases struct {
	CurrentPath string
	HistoryPath string

	currentRO *sql.DB // pooled, used only for reads by ReadCommands (opened mode=rwc)
	currentRW *sql.DB // single-conn pool, used by WriteCommands
	history   *sql.DB // history db: both read and append go through this pool

	Read  ReadCommands
	Write WriteCommands
}

func Open(dataDir string) (*Databases, error) {
	currentPath := filepath.Join(dataDir, "current.sqlite")
	historyPath := filepath.Join(dataDir, "history.sqlite")

	currentRO, err := sql.Open(driverName, "file:"+currentPath+"?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open current db (ro pool)")
	}
	currentRO.SetMaxOpenConns(16)

	currentRW, err := sql.Open(driverName, "file:"+currentPath+"?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open current db (rw conn)")
	}
	currentRW.SetMaxOpenConns(1)

	history, err := sql.Open(driverName, "file:"+historyPath+"?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}
	history.SetMaxOpenConns(4)

	d := &Databases{
		CurrentPath: currentPath,
		HistoryPath: historyPath,
		currentRO:   currentRO,
		currentRW:   currentRW,
		history:     history,
	}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	d.Read = ReadCommands{db: currentRO, history: history}
	d.Write = WriteCommands{db: currentRW, history: history}
	return d, nil
}

func (d *Databases) Close() error {
	var firstErr error
	for _, db := range []*sql.DB{d.currentRO, d.currentRW, d.history} {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BackupHistoryDatabase snapshots the history DB via SQLite's online backup
// facility (VACUUM INTO); current DB backup is external per spec §4.1.
func (d *Databases) BackupHistoryDatabase(destPath string) error {
	_, err := d.history.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return errors.Wrap(err, "backup history database")
	}
	return nil
}

// ReadCommands is the read-only namespace: pooled connections, WAL-consistent
// snapshots, never blocked by the writer.
type ReadCommands struct {
	db      *sql.DB
	history *sql.DB
}

// WriteCommands is the single-writer namespace. Every exported method opens
// a transaction at entry and commits at exit (or rolls back on error); no
// cache mutation happens until the transaction that produced it commits.
type WriteCommands struct {
	db      *sql.DB
	history *sql.DB
}

// withTx runs fn inside a transaction against the current DB's single write
// connection. Only the write runner (C4) is expected to call this.
func (w WriteCommands) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := w.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback also failed: %v", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// withHistoryTx is the equivalent helper for the append-only history DB.
func (w WriteCommands) withHistoryTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := w.history.Begin()
	if err != nil {
		return errors.Wrap(err, "begin history tx")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
