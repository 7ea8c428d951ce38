package database

import (
	"database/sql"
	"fmt"
)

const connectionCols = `id, user_id, provider, email_address, access_token, refresh_token, is_active, last_sync_at, created_at`

// InsertConnection links a mailbox to a user. Returns the ID on success,
// 0 if the (user, address) pair already exists.
func (db *DB) InsertConnection(userID int64, provider, emailAddress, accessToken, refreshToken string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO connections (user_id, provider, email_address, access_token, refresh_token)
		VALUES (?, ?, ?, ?, ?)`,
		userID, provider, emailAddress, accessToken, refreshToken,
	)
	if isUniqueViolation(err) {
		// Duplicate (user_id, email_address) pair
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetConnection returns a connection by ID, or nil if not found.
func (db *DB) GetConnection(connectionID int64) (*Connection, error) {
	row := db.conn.QueryRow(
		"SELECT "+connectionCols+" FROM connections WHERE id = ?", connectionID,
	)
	c, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConnectionByAddress returns a user's connection for a mailbox
// address regardless of active state, or nil if none exists.
func (db *DB) GetConnectionByAddress(userID int64, emailAddress string) (*Connection, error) {
	row := db.conn.QueryRow(
		"SELECT "+connectionCols+" FROM connections WHERE user_id = ? AND email_address = ?",
		userID, emailAddress,
	)
	c, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetActiveConnections returns a user's active connections.
func (db *DB) GetActiveConnections(userID int64) ([]Connection, error) {
	return db.queryConnections(
		"SELECT "+connectionCols+" FROM connections WHERE user_id = ? AND is_active = 1 ORDER BY id",
		userID,
	)
}

// GetActiveConnectionsForUsers returns active connections for a set of users.
func (db *DB) GetActiveConnectionsForUsers(userIDs []int64) ([]Connection, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := "SELECT " + connectionCols + " FROM connections WHERE is_active = 1 AND user_id IN ("
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ") ORDER BY id"
	return db.queryConnections(query, args...)
}

// UpdateConnectionTokens persists a refreshed credential pair.
func (db *DB) UpdateConnectionTokens(connectionID int64, accessToken, refreshToken string) error {
	_, err := db.conn.Exec(
		`UPDATE connections SET access_token = ?, refresh_token = ? WHERE id = ?`,
		accessToken, refreshToken, connectionID,
	)
	return err
}

// ReactivateConnection updates the credential pair and flips the
// connection back to active. Used when a user reconnects a mailbox.
func (db *DB) ReactivateConnection(connectionID int64, accessToken, refreshToken string) error {
	_, err := db.conn.Exec(
		`UPDATE connections SET access_token = ?, refresh_token = ?, is_active = 1 WHERE id = ?`,
		accessToken, refreshToken, connectionID,
	)
	return err
}

// UpdateConnectionSyncTime advances the sync watermark.
func (db *DB) UpdateConnectionSyncTime(connectionID int64, syncedAt string) error {
	_, err := db.conn.Exec(
		`UPDATE connections SET last_sync_at = ? WHERE id = ?`,
		syncedAt, connectionID,
	)
	return err
}

// DeactivateConnection marks a connection inactive without removing its
// history. Used on credential revocation.
func (db *DB) DeactivateConnection(connectionID int64) error {
	_, err := db.conn.Exec(
		`UPDATE connections SET is_active = 0 WHERE id = ?`, connectionID,
	)
	return err
}

// DeleteConnection removes a connection and everything derived from it:
// action items, processed emails, and scheduled scans.
func (db *DB) DeleteConnection(connectionID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM action_items WHERE email_id IN
			(SELECT id FROM processed_emails WHERE connection_id = ?)`,
		`DELETE FROM processed_emails WHERE connection_id = ?`,
		`DELETE FROM scheduled_scans WHERE connection_id = ?`,
		`DELETE FROM connections WHERE id = ?`,
	}
	for _, q := range steps {
		if _, err := tx.Exec(q, connectionID); err != nil {
			return fmt.Errorf("purging connection %d: %w", connectionID, err)
		}
	}

	return tx.Commit()
}

func (db *DB) queryConnections(query string, args ...any) ([]Connection, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []Connection
	for rows.Next() {
		var c Connection
		var active int
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.EmailAddress,
			&c.AccessToken, &c.RefreshToken, &active, &c.LastSyncAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.IsActive = active != 0
		connections = append(connections, c)
	}
	return connections, rows.Err()
}

func scanConnection(row *sql.Row) (*Connection, error) {
	var c Connection
	var active int
	if err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.EmailAddress,
		&c.AccessToken, &c.RefreshToken, &active, &c.LastSyncAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	return &c, nil
}
