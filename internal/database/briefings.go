package database

import "database/sql"

// UpsertBriefing creates or updates the briefing row for (user, date).
// The summary is replaced wholesale while the count accumulates: a later
// scan's summary covers only that scan's actions, but action_count keeps
// the day's running total. This mirrors the recorded behavior even
// though the stored summary can under-represent earlier scans.
// The single statement keeps concurrent per-user updates atomic.
func (db *DB) UpsertBriefing(userID int64, briefingDate, summary string, newActions int) error {
	_, err := db.conn.Exec(
		`INSERT INTO daily_briefings (user_id, briefing_date, summary, action_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, briefing_date) DO UPDATE SET
			summary = excluded.summary,
			action_count = daily_briefings.action_count + excluded.action_count,
			generated_at = datetime('now')`,
		userID, briefingDate, summary, newActions,
	)
	return err
}

// GetBriefing returns the briefing for a user and date, or nil.
func (db *DB) GetBriefing(userID int64, briefingDate string) (*DailyBriefing, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, briefing_date, summary, action_count, generated_at
		FROM daily_briefings WHERE user_id = ? AND briefing_date = ?`,
		userID, briefingDate,
	)

	var b DailyBriefing
	if err := row.Scan(&b.ID, &b.UserID, &b.BriefingDate, &b.Summary,
		&b.ActionCount, &b.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// GetBriefings returns a user's briefings, newest date first.
func (db *DB) GetBriefings(userID int64) ([]DailyBriefing, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, briefing_date, summary, action_count, generated_at
		FROM daily_briefings WHERE user_id = ? ORDER BY briefing_date DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var briefings []DailyBriefing
	for rows.Next() {
		var b DailyBriefing
		if err := rows.Scan(&b.ID, &b.UserID, &b.BriefingDate, &b.Summary,
			&b.ActionCount, &b.GeneratedAt); err != nil {
			return nil, err
		}
		briefings = append(briefings, b)
	}
	return briefings, rows.Err()
}
