package db

type (
	// ShieldSetting is the per-chat gate for automated ban checking.
	// Absence of a row reads as enabled.
	ShieldSetting struct {
		ChatID  int64 `db:"chat_id"`
		Enabled bool  `db:"enabled"`
	}

	// SpamSample is a content-addressed record of reviewable spam text.
	// Identical stripped text from different chats merges into one row.
	SpamSample struct {
		ContentHash string `db:"content_hash"`
		Text        string `db:"text"`
		SpamVotes   int    `db:"spam_votes"`
		HamVotes    int    `db:"ham_votes"`
		ChatID      *int64 `db:"chat_id"`
		SubmitterID *int64 `db:"submitter_id"`
	}

	// FederationBan is an entry on a shared ban list keyed by federation name,
	// written when a community-list verdict leads to enforcement.
	FederationBan struct {
		FederationID string  `db:"federation_id"`
		UserID       int64   `db:"user_id"`
		Name         string  `db:"name"`
		Reason       string  `db:"reason"`
		BannedAt     float64 `db:"banned_at"`
	}
)
