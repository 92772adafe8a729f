package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GudMeong/Anjani/internal/db"
)

func (s *sqliteClient) GetSpamSample(ctx context.Context, contentHash string) (*db.SpamSample, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sample := &db.SpamSample{}
	err := s.db.GetContext(ctx, sample, `
		SELECT content_hash, text, spam_votes, ham_votes, chat_id, submitter_id
		FROM spam_samples
		WHERE content_hash = ?
	`, contentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get spam sample: %w", err)
	}
	return sample, nil
}

func (s *sqliteClient) UpsertSpamSample(ctx context.Context, sample *db.SpamSample) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO spam_samples (content_hash, text, spam_votes, ham_votes, chat_id, submitter_id)
		VALUES (:content_hash, :text, :spam_votes, :ham_votes, :chat_id, :submitter_id)
		ON CONFLICT(content_hash) DO UPDATE SET
		text = excluded.text,
		spam_votes = excluded.spam_votes,
		ham_votes = excluded.ham_votes,
		chat_id = excluded.chat_id,
		submitter_id = excluded.submitter_id
	`
	if _, err := s.db.NamedExecContext(ctx, query, sample); err != nil {
		return fmt.Errorf("failed to upsert spam sample: %w", err)
	}
	return nil
}

// UpdateSpamVotes overwrites both tallies, leaving the rest of the sample untouched.
func (s *sqliteClient) UpdateSpamVotes(ctx context.Context, contentHash string, spamVotes int, hamVotes int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE spam_samples SET spam_votes = ?, ham_votes = ?
		WHERE content_hash = ?
	`, spamVotes, hamVotes, contentHash)
	if err != nil {
		return fmt.Errorf("failed to update spam votes: %w", err)
	}
	return nil
}

func (s *sqliteClient) UpsertFederationBan(ctx context.Context, ban *db.FederationBan) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO federation_bans (federation_id, user_id, name, reason, banned_at)
		VALUES (:federation_id, :user_id, :name, :reason, :banned_at)
		ON CONFLICT(federation_id, user_id) DO UPDATE SET
		name = excluded.name,
		reason = excluded.reason,
		banned_at = excluded.banned_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, ban); err != nil {
		return fmt.Errorf("failed to upsert federation ban: %w", err)
	}
	return nil
}

func (s *sqliteClient) GetFederationBan(ctx context.Context, federationID string, userID int64) (*db.FederationBan, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ban := &db.FederationBan{}
	err := s.db.GetContext(ctx, ban, `
		SELECT federation_id, user_id, name, reason, banned_at
		FROM federation_bans
		WHERE federation_id = ? AND user_id = ?
	`, federationID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get federation ban: %w", err)
	}
	return ban, nil
}
