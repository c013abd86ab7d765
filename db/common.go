package db

import (
	"database/sql"
	"time"

	"github.com/duskline/backend/cmn"
)

type ReportRow struct {
	IdDb        int64
	Creator     cmn.AccountIdDb
	Target      cmn.AccountIdDb
	ContentType string
	State       cmn.ReportState
	CreatedAt   time.Time
}

// CreateReport enforces uniqueness on (creator, target, type) per spec §3;
// a duplicate is a Conflict, not an Internal error.
func (w WriteCommands) CreateReport(creator, target cmn.AccountIdDb, contentType string, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO reports(creator_id_db, target_id_db, content_type, state, created_unixtime)
			VALUES (?, ?, ?, ?, ?)`, int64(creator), int64(target), contentType, int32(cmn.ReportWaiting), now.Unix())
		if err != nil {
			return cmn.ErrConflict("report already exists")
		}
		return nil
	})
}

func (r ReadCommands) WaitingReports(limit int) ([]ReportRow, error) {
	rows, err := r.db.Query(`SELECT id_db, creator_id_db, target_id_db, content_type, state, created_unixtime
		FROM reports WHERE state = ? ORDER BY created_unixtime ASC, id_db ASC LIMIT ?`, int32(cmn.ReportWaiting), limit)
	if err != nil {
		return nil, cmn.ErrInternal("query waiting reports", err)
	}
	defer rows.Close()
	var out []ReportRow
	for rows.Next() {
		var idDb, creator, target, created int64
		var ctype string
		var state int32
		if err := rows.Scan(&idDb, &creator, &target, &ctype, &state, &created); err != nil {
			return nil, err
		}
		out = append(out, ReportRow{idDb, cmn.AccountIdDb(creator), cmn.AccountIdDb(target), ctype, cmn.ReportState(state), time.Unix(created, 0)})
	}
	return out, rows.Err()
}

// CloseReport records a moderator decision; fails with Conflict if the report
// was already closed by a racing request (mirrors the moderation race S5).
func (w WriteCommands) CloseReport(idDb int64, moderator cmn.AccountIdDb, now time.Time) error {
	return w.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE reports SET state = ?, closed_unixtime = ?, moderator_id_db = ?
			WHERE id_db = ? AND state = ?`, int32(cmn.ReportDone), now.Unix(), int64(moderator), idDb, int32(cmn.ReportWaiting))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cmn.ErrConflict("report already changed")
		}
		return nil
	})
}
