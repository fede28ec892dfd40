package store

import "database/sql"

// UpsertUser caches a directory user.
func (db *DB) UpsertUser(u *User) error {
	_, err := db.Exec(`
		INSERT INTO users (user_id, identity_number, full_name, avatar_url, app_id, relationship)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			identity_number = excluded.identity_number,
			full_name = excluded.full_name,
			avatar_url = excluded.avatar_url,
			app_id = excluded.app_id,
			relationship = excluded.relationship`,
		u.UserID, u.IdentityNumber, u.FullName, u.AvatarURL, u.AppID, u.Relationship)
	return err
}

// UpsertUsers caches a batch of directory users in one transaction.
func (db *DB) UpsertUsers(users []User) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, u := range users {
		if _, err := tx.Exec(`
			INSERT INTO users (user_id, identity_number, full_name, avatar_url, app_id, relationship)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				identity_number = excluded.identity_number,
				full_name = excluded.full_name,
				avatar_url = excluded.avatar_url,
				app_id = excluded.app_id,
				relationship = excluded.relationship`,
			u.UserID, u.IdentityNumber, u.FullName, u.AvatarURL, u.AppID, u.Relationship); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetUser returns a cached user, nil when unknown.
func (db *DB) GetUser(userID string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT user_id, identity_number, full_name, avatar_url, app_id, relationship
		FROM users WHERE user_id = ?`, userID).
		Scan(&u.UserID, &u.IdentityNumber, &u.FullName, &u.AvatarURL, &u.AppID, &u.Relationship)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether a user id is locally cached.
func (db *DB) UserExists(userID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM users WHERE user_id = ?`, userID).Scan(&n)
	return n > 0, err
}

// MissingUsers filters ids down to those not locally cached.
func (db *DB) MissingUsers(ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		ok, err := db.UserExists(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
