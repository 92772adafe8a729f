package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GudMeong/Anjani/internal/db"
)

func (s *sqliteClient) GetShieldSetting(ctx context.Context, chatID int64) (*db.ShieldSetting, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	setting := &db.ShieldSetting{}
	err := s.db.GetContext(ctx, setting, `SELECT chat_id, enabled FROM shield_settings WHERE chat_id = ?`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shield setting for chat %d: %w", chatID, err)
	}
	return setting, nil
}

func (s *sqliteClient) SetShieldSetting(ctx context.Context, setting *db.ShieldSetting) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO shield_settings (chat_id, enabled)
		VALUES (:chat_id, :enabled)
		ON CONFLICT(chat_id) DO UPDATE SET
		enabled = excluded.enabled
	`
	if _, err := s.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("failed to set shield setting for chat %d: %w", setting.ChatID, err)
	}
	return nil
}

func (s *sqliteClient) MigrateShieldSetting(ctx context.Context, oldChatID int64, newChatID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE shield_settings SET chat_id = ? WHERE chat_id = ?`, newChatID, oldChatID)
	if err != nil {
		return fmt.Errorf("failed to migrate shield setting %d -> %d: %w", oldChatID, newChatID, err)
	}
	return nil
}

func (s *sqliteClient) DeleteShieldSetting(ctx context.Context, chatID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM shield_settings WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete shield setting for chat %d: %w", chatID, err)
	}
	return nil
}
