package database

import "database/sql"

const actionCols = `id, user_id, email_id, title, description, sender_name, sender_email,
	deadline, deadline_source, priority, status, snoozed_until, created_at`

// InsertActionItem stores one extracted task.
func (db *DB) InsertActionItem(a *ActionItem) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO action_items
		(user_id, email_id, title, description, sender_name, sender_email,
		 deadline, deadline_source, priority, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.EmailID, a.Title, a.Description, a.SenderName, a.SenderEmail,
		a.Deadline, a.DeadlineSource, a.Priority, a.Status,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetActionItem returns an action by ID, or nil if not found.
func (db *DB) GetActionItem(actionID int64) (*ActionItem, error) {
	row := db.conn.QueryRow(
		"SELECT "+actionCols+" FROM action_items WHERE id = ?", actionID,
	)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListActionItems returns a user's actions ordered by priority
// (high first) then deadline ascending with null deadlines last.
// An optional status narrows the list.
func (db *DB) ListActionItems(userID int64, status *string) ([]ActionItem, error) {
	query := "SELECT " + actionCols + " FROM action_items WHERE user_id = ?"
	args := []any{userID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}
	query += ` ORDER BY
		CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		deadline IS NULL, deadline ASC, id ASC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []ActionItem
	for rows.Next() {
		var a ActionItem
		if err := rows.Scan(&a.ID, &a.UserID, &a.EmailID, &a.Title, &a.Description,
			&a.SenderName, &a.SenderEmail, &a.Deadline, &a.DeadlineSource,
			&a.Priority, &a.Status, &a.SnoozedUntil, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// GetActionsForEmail returns the actions extracted from one message.
func (db *DB) GetActionsForEmail(emailID int64) ([]ActionItem, error) {
	rows, err := db.conn.Query(
		"SELECT "+actionCols+" FROM action_items WHERE email_id = ? ORDER BY id", emailID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []ActionItem
	for rows.Next() {
		var a ActionItem
		if err := rows.Scan(&a.ID, &a.UserID, &a.EmailID, &a.Title, &a.Description,
			&a.SenderName, &a.SenderEmail, &a.Deadline, &a.DeadlineSource,
			&a.Priority, &a.Status, &a.SnoozedUntil, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// UpdateActionStatus transitions an action's status. snoozedUntil is
// only meaningful for the "snoozed" status and cleared otherwise.
func (db *DB) UpdateActionStatus(actionID int64, status string, snoozedUntil *string) error {
	if status != "snoozed" {
		snoozedUntil = nil
	}
	_, err := db.conn.Exec(
		`UPDATE action_items SET status = ?, snoozed_until = ? WHERE id = ?`,
		status, snoozedUntil, actionID,
	)
	return err
}

func scanAction(row *sql.Row) (*ActionItem, error) {
	var a ActionItem
	if err := row.Scan(&a.ID, &a.UserID, &a.EmailID, &a.Title, &a.Description,
		&a.SenderName, &a.SenderEmail, &a.Deadline, &a.DeadlineSource,
		&a.Priority, &a.Status, &a.SnoozedUntil, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
