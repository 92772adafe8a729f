package shield

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/GudMeong/Anjani/internal/db"
)

// PolicyStore serializes access to the per-chat shield switch. The
// switch fails open: a chat with no stored row is treated as shielded.
type PolicyStore struct {
	db    db.Client
	mutex sync.RWMutex
}

func NewPolicyStore(dbClient db.Client) *PolicyStore {
	return &PolicyStore{db: dbClient}
}

func (p *PolicyStore) IsEnabled(ctx context.Context, chatID int64) (bool, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	setting, err := p.db.GetShieldSetting(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errors.WithMessage(err, "cant get shield setting")
	}
	return setting.Enabled, nil
}

func (p *PolicyStore) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.db.SetShieldSetting(ctx, &db.ShieldSetting{ChatID: chatID, Enabled: enabled}); err != nil {
		return errors.WithMessage(err, "cant set shield setting")
	}
	return nil
}

// Migrate moves a chat's stored switch to its new identifier, for
// example after a group upgrades to a supergroup.
func (p *PolicyStore) Migrate(ctx context.Context, oldChatID, newChatID int64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.db.MigrateShieldSetting(ctx, oldChatID, newChatID); err != nil {
		return errors.WithMessage(err, "cant migrate shield setting")
	}
	return nil
}

// ExportBackup returns the chat's switch for inclusion in a settings
// backup, or nil when nothing was stored for the chat.
func (p *PolicyStore) ExportBackup(ctx context.Context, chatID int64) (*db.ShieldSetting, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	setting, err := p.db.GetShieldSetting(ctx, chatID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "cant export shield setting")
	}
	return setting, nil
}

// ImportBackup restores a previously exported switch under the given
// chat, overwriting whatever is currently stored.
func (p *PolicyStore) ImportBackup(ctx context.Context, chatID int64, setting *db.ShieldSetting) error {
	if setting == nil {
		return nil
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.db.SetShieldSetting(ctx, &db.ShieldSetting{ChatID: chatID, Enabled: setting.Enabled}); err != nil {
		return errors.WithMessage(err, "cant import shield setting")
	}
	return nil
}
