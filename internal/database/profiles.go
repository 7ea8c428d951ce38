package database

import "database/sql"

// InsertProfile creates a profile. Returns the ID on success, 0 if the
// email is already registered.
func (db *DB) InsertProfile(email string, displayName *string, timezone string, scanHour int) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO profiles (email, display_name, timezone, scan_hour) VALUES (?, ?, ?, ?)`,
		email, displayName, timezone, scanHour,
	)
	if isUniqueViolation(err) {
		// Duplicate email
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetProfile returns a profile by ID, or nil if not found.
func (db *DB) GetProfile(profileID int64) (*Profile, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, display_name, timezone, scan_hour, created_at
		FROM profiles WHERE id = ?`, profileID,
	)
	return scanProfile(row)
}

// GetProfileByEmail returns a profile by email address, or nil if not found.
func (db *DB) GetProfileByEmail(email string) (*Profile, error) {
	row := db.conn.QueryRow(
		`SELECT id, email, display_name, timezone, scan_hour, created_at
		FROM profiles WHERE email = ?`, email,
	)
	return scanProfile(row)
}

// GetAllProfiles returns every profile, ordered by creation.
func (db *DB) GetAllProfiles() ([]Profile, error) {
	rows, err := db.conn.Query(
		`SELECT id, email, display_name, timezone, scan_hour, created_at
		FROM profiles ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Timezone, &p.ScanHour, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfileSchedule changes the preferred scan hour and timezone.
func (db *DB) UpdateProfileSchedule(profileID int64, timezone string, scanHour int) error {
	_, err := db.conn.Exec(
		`UPDATE profiles SET timezone = ?, scan_hour = ? WHERE id = ?`,
		timezone, scanHour, profileID,
	)
	return err
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Timezone, &p.ScanHour, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
