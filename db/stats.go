package db

import (
	"database/sql"
)

// FlushMetrics upserts a batch of (metric_id, value) pairs for one
// save_time_id into the history DB (C13's periodic flush target).
func (w WriteCommands) FlushMetrics(saveTimeID int64, values map[string]int64) error {
	return w.withHistoryTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO metric_values(save_time_id, metric_id, value) VALUES (?, ?, ?)
			ON CONFLICT(save_time_id, metric_id) DO UPDATE SET value = value + excluded.value`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for k, v := range values {
			if _, err := stmt.Exec(saveTimeID, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// FlushIPCountryRollup upserts per-country connection counts; LOCALHOST/
// UNKNOWN are used verbatim as country keys when lookup fails (spec §4.13).
func (w WriteCommands) FlushIPCountryRollup(saveTimeID int64, counts map[string]int64) error {
	return w.withHistoryTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO ip_country_rollup(save_time_id, country, count) VALUES (?, ?, ?)
			ON CONFLICT(save_time_id, country) DO UPDATE SET count = count + excluded.count`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for country, c := range counts {
			if _, err := stmt.Exec(saveTimeID, country, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// FlushClientVersionRollup upserts per (client_type, version) counts.
func (w WriteCommands) FlushClientVersionRollup(saveTimeID int64, clientType int32, versionCounts map[string]int64) error {
	return w.withHistoryTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO client_version_rollup(save_time_id, client_type, version, count) VALUES (?, ?, ?, ?)
			ON CONFLICT(save_time_id, client_type, version) DO UPDATE SET count = count + excluded.count`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for v, c := range versionCounts {
			if _, err := stmt.Exec(saveTimeID, clientType, v, c); err != nil {
				return err
			}
		}
		return nil
	})
}
