package shield

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/GudMeong/Anjani/internal/bot"
	"github.com/GudMeong/Anjani/internal/db"
	"github.com/GudMeong/Anjani/internal/i18n"
	"github.com/GudMeong/Anjani/internal/observability"
)

// banner is the provider attribution shown in notices and audit logs.
func banner(source VerdictSource) string {
	switch source {
	case SourceCAS:
		return "[Combot Anti Spam](t.me/combot)"
	case SourceSpamWatch:
		return "[Spam Watch](t.me/SpamWatch)"
	}
	return string(source)
}

// reasonText is the reason shown to humans. Community-list verdicts
// link to the public lookup page instead of repeating a canned string.
func reasonText(verdict *Verdict) string {
	if verdict.Source == SourceCAS {
		return fmt.Sprintf("[link](%s)", verdict.Reference)
	}
	return verdict.Reason
}

// Enforcer carries out the consequences of a positive verdict. The
// individual actions are independent and run concurrently; a failing
// notice does not undo the kick.
type Enforcer struct {
	s            bot.Service
	federationID string
	logChannelID int64
}

func NewEnforcer(s bot.Service, federationID string, logChannelID int64) *Enforcer {
	return &Enforcer{
		s:            s,
		federationID: federationID,
		logChannelID: logChannelID,
	}
}

func (e *Enforcer) Enforce(ctx context.Context, chat *api.Chat, user *api.User, verdict *Verdict) error {
	correlationID := uuid.NewRandom().String()
	entry := log.WithFields(log.Fields{
		"user_id":        user.ID,
		"chat_id":        chat.ID,
		"source":         verdict.Source,
		"correlation_id": correlationID,
	})
	b := e.s.GetBot()
	lang := e.s.GetLanguage(ctx, chat.ID, user)

	var g errgroup.Group
	g.Go(func() error {
		return bot.KickUserFromChat(ctx, b, user.ID, chat.ID)
	})
	g.Go(func() error {
		text := fmt.Sprintf(
			i18n.Get("Banned %s (%d) — flagged by %s\nReason: %s", lang),
			bot.GetFullName(user), user.ID, banner(verdict.Source), reasonText(verdict),
		)
		msg := api.NewMessage(chat.ID, text)
		msg.ParseMode = api.ModeMarkdown
		if _, err := b.Send(msg); err != nil {
			return errors.WithMessage(err, "cant send ban notice")
		}
		return nil
	})
	if verdict.Source == SourceCAS {
		g.Go(func() error {
			ban := &db.FederationBan{
				FederationID: e.federationID,
				UserID:       user.ID,
				Name:         bot.GetFullName(user),
				Reason:       reasonText(verdict),
				BannedAt:     float64(time.Now().UnixMicro()) / 1e6,
			}
			if err := e.s.GetDB().UpsertFederationBan(ctx, ban); err != nil {
				return errors.WithMessage(err, "cant upsert federation ban")
			}
			return nil
		})
	}
	if e.logChannelID != 0 {
		g.Go(func() error {
			text := fmt.Sprintf(
				"#SPAM_SHIELD LOG\nUser: %s\nID: `%d`\nSource: %s\nReason: %s\nEvent: `%s`",
				bot.GetFullName(user), user.ID, banner(verdict.Source), reasonText(verdict), correlationID,
			)
			msg := api.NewMessage(e.logChannelID, text)
			msg.ParseMode = api.ModeMarkdown
			if _, err := b.Send(msg); err != nil {
				return errors.WithMessage(err, "cant send audit log")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	observability.RecordEnforcement(string(verdict.Source))
	entry.Info(tool.ExecTemplate(`Banned user: {{ .user_name }} ({{ .user_id }})`, map[string]any{
		"user_name": bot.GetFullName(user),
		"user_id":   user.ID,
	}))
	return nil
}
