package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/daylitd/internal/models"
)

// GetPreferences returns the stored preferences with defaults applied. A user
// without any stored preferences gets the defaults.
func (s *Store) GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	data := map[string]string{}
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.rebind("SELECT key, value FROM user_preferences WHERE user_id = ?"), userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return err
			}
			data[key] = value
		}
		return rows.Err()
	})
	if err != nil {
		return models.UserPreferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}

	prefs := models.MapToPreferences(userID, data)
	models.ApplyDefaultPreferences(&prefs)
	return prefs, nil
}

func (s *Store) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	if prefs.UserID == "" {
		return fmt.Errorf("preferences user id cannot be empty")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO user_preferences (user_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, value := range models.PreferencesToMap(prefs) {
			if _, err := stmt.ExecContext(ctx, prefs.UserID, key, value); err != nil {
				return fmt.Errorf("failed to save preference %s: %w", key, err)
			}
		}
		return nil
	})
}
