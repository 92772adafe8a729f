package db

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Client interface {
	Close() error

	GetShieldSetting(ctx context.Context, chatID int64) (*ShieldSetting, error)
	SetShieldSetting(ctx context.Context, setting *ShieldSetting) error
	MigrateShieldSetting(ctx context.Context, oldChatID int64, newChatID int64) error
	DeleteShieldSetting(ctx context.Context, chatID int64) error

	GetSpamSample(ctx context.Context, contentHash string) (*SpamSample, error)
	UpsertSpamSample(ctx context.Context, sample *SpamSample) error
	UpdateSpamVotes(ctx context.Context, contentHash string, spamVotes int, hamVotes int) error

	UpsertFederationBan(ctx context.Context, ban *FederationBan) error
	GetFederationBan(ctx context.Context, federationID string, userID int64) (*FederationBan, error)
}
