package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"

	"github.com/GudMeong/Anjani/internal/config"
	"github.com/GudMeong/Anjani/internal/db"
	"github.com/GudMeong/Anjani/internal/i18n"
)

type service struct {
	bot *api.BotAPI
	db  db.Client
	cfg config.Config
}

func NewService(bot *api.BotAPI, db db.Client, cfg config.Config) *service {
	return &service{
		bot: bot,
		db:  db,
		cfg: cfg,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetLanguage resolves the language for replies. Per-chat language
// storage is not part of the shield schema, so the user's client
// language wins over the process default when we can answer in it.
func (s *service) GetLanguage(_ context.Context, _ int64, user *api.User) string {
	if user != nil && tool.In(user.LanguageCode, i18n.GetLanguagesList()...) {
		return user.LanguageCode
	}
	return s.cfg.DefaultLanguage
}
