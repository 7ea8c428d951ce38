package database

import (
	"database/sql"
	"strings"
)

// isUniqueViolation reports whether an insert failed on a UNIQUE
// constraint, as opposed to a busy database, FK violation, or I/O
// error. Only the former may be swallowed as "row already exists".
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertProcessedEmail records a message as seen. Returns the ID on
// success, 0 if the (connection, external id) pair was already recorded.
// The unique constraint is the scan pipeline's idempotence boundary;
// any other failure is returned so callers can log and skip the record.
func (db *DB) InsertProcessedEmail(userID, connectionID int64, externalID, subject, sender, receivedAt string, isActionable bool, rawContent *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO processed_emails
		(user_id, connection_id, external_id, subject, sender, received_at, is_actionable, raw_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, connectionID, externalID, subject, sender, receivedAt, boolToInt(isActionable), rawContent,
	)
	if isUniqueViolation(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// HasProcessedEmail reports whether a message was already recorded for a
// connection.
func (db *DB) HasProcessedEmail(connectionID int64, externalID string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM processed_emails WHERE connection_id = ? AND external_id = ?`,
		connectionID, externalID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkEmailActionable upgrades the actionable flag after extraction
// produced at least one action. The flag only ever moves false -> true.
func (db *DB) MarkEmailActionable(emailID int64) error {
	_, err := db.conn.Exec(
		`UPDATE processed_emails SET is_actionable = 1 WHERE id = ?`, emailID,
	)
	return err
}

// GetProcessedEmail returns a processed email by ID, or nil if not found.
func (db *DB) GetProcessedEmail(emailID int64) (*ProcessedEmail, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, connection_id, external_id, subject, sender, received_at, processed_at, is_actionable, raw_content
		FROM processed_emails WHERE id = ?`, emailID,
	)

	var e ProcessedEmail
	var actionable int
	if err := row.Scan(&e.ID, &e.UserID, &e.ConnectionID, &e.ExternalID, &e.Subject,
		&e.Sender, &e.ReceivedAt, &e.ProcessedAt, &actionable, &e.RawContent); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.IsActionable = actionable != 0
	return &e, nil
}

// GetProcessedEmailsForConnection returns a connection's records, newest first.
func (db *DB) GetProcessedEmailsForConnection(connectionID int64) ([]ProcessedEmail, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, connection_id, external_id, subject, sender, received_at, processed_at, is_actionable, raw_content
		FROM processed_emails WHERE connection_id = ? ORDER BY received_at DESC`, connectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []ProcessedEmail
	for rows.Next() {
		var e ProcessedEmail
		var actionable int
		if err := rows.Scan(&e.ID, &e.UserID, &e.ConnectionID, &e.ExternalID, &e.Subject,
			&e.Sender, &e.ReceivedAt, &e.ProcessedAt, &actionable, &e.RawContent); err != nil {
			return nil, err
		}
		e.IsActionable = actionable != 0
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
