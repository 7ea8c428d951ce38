package database

import "database/sql"

// ScheduleScan registers a deferred scan for a connection. Any existing
// pending scan for the same connection is failed first: at most one
// pending deferred scan per connection is meaningful at a time.
func (db *DB) ScheduleScan(userID, connectionID int64, scheduledFor string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE scheduled_scans SET status = 'failed'
		WHERE connection_id = ? AND status = 'pending'`,
		connectionID,
	); err != nil {
		return 0, err
	}

	result, err := tx.Exec(
		`INSERT INTO scheduled_scans (user_id, connection_id, scheduled_for)
		VALUES (?, ?, ?)`,
		userID, connectionID, scheduledFor,
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetDueScans returns pending scans whose due time has passed, oldest first.
func (db *DB) GetDueScans(now string) ([]ScheduledScan, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, connection_id, scheduled_for, status, created_at
		FROM scheduled_scans
		WHERE status = 'pending' AND scheduled_for <= ?
		ORDER BY scheduled_for`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScans(rows)
}

// GetPendingScan returns the pending scan for a connection, or nil.
func (db *DB) GetPendingScan(connectionID int64) (*ScheduledScan, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, connection_id, scheduled_for, status, created_at
		FROM scheduled_scans WHERE connection_id = ? AND status = 'pending'`,
		connectionID,
	)

	var s ScheduledScan
	if err := row.Scan(&s.ID, &s.UserID, &s.ConnectionID, &s.ScheduledFor,
		&s.Status, &s.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpdateScanStatus marks a scheduled scan completed or failed. A scan
// transitions exactly once and is never reopened.
func (db *DB) UpdateScanStatus(scanID int64, status string) error {
	_, err := db.conn.Exec(
		`UPDATE scheduled_scans SET status = ? WHERE id = ? AND status = 'pending'`,
		status, scanID,
	)
	return err
}

func collectScans(rows *sql.Rows) ([]ScheduledScan, error) {
	var scans []ScheduledScan
	for rows.Next() {
		var s ScheduledScan
		if err := rows.Scan(&s.ID, &s.UserID, &s.ConnectionID, &s.ScheduledFor,
			&s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}
