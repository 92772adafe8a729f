package shield

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/GudMeong/Anjani/internal/bot"
	"github.com/GudMeong/Anjani/internal/db"
	"github.com/GudMeong/Anjani/internal/i18n"
)

// handleSetting serves the /spamshield command. Admins flip or inspect
// the per-chat switch; everyone else is ignored.
func (sh *Shield) handleSetting(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	if chat.IsPrivate() {
		return true, nil
	}
	isAdmin, err := sh.isChatAdmin(chat.ID, user.ID)
	if err != nil {
		return false, err
	}
	if !isAdmin {
		return false, nil
	}

	lang := sh.s.GetLanguage(ctx, chat.ID, user)
	argument := strings.ToLower(strings.TrimSpace(msg.CommandArguments()))
	switch argument {
	case "":
		enabled, err := sh.policy.IsEnabled(ctx, chat.ID)
		if err != nil {
			return false, err
		}
		return false, sh.reply(msg, i18n.Get("SpamShield is %s in this chat", lang), stateWord(enabled, lang))
	case "on", "true", "enable":
		if err := sh.policy.SetEnabled(ctx, chat.ID, true); err != nil {
			return false, err
		}
		return false, sh.reply(msg, i18n.Get("SpamShield is now %s", lang), stateWord(true, lang))
	case "off", "false", "disable":
		if err := sh.policy.SetEnabled(ctx, chat.ID, false); err != nil {
			return false, err
		}
		return false, sh.reply(msg, i18n.Get("SpamShield is now %s", lang), stateWord(false, lang))
	default:
		return false, sh.reply(msg, i18n.Get("Invalid option, use one of: on, off", lang))
	}
}

// handleManualReport serves the /spam command. Staff feed confirmed
// spam into the sample store from private chat, either by replying to
// a forwarded message or by pasting the text inline.
func (sh *Shield) handleManualReport(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	if !sh.cfg.IsStaff(user.ID) {
		return true, nil
	}
	lang := sh.s.GetLanguage(ctx, chat.ID, user)
	if !chat.IsPrivate() {
		return false, sh.reply(msg, i18n.Get("This command is only available in private messages", lang))
	}

	var content string
	submitterID := user.ID
	if reply := msg.ReplyToMessage; reply != nil {
		content = bot.ExtractText(reply)
		if reply.From != nil {
			submitterID = reply.From.ID
		}
		if reply.ForwardOrigin != nil && reply.ForwardOrigin.SenderUser != nil {
			submitterID = reply.ForwardOrigin.SenderUser.ID
		}
	} else {
		content = msg.CommandArguments()
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return false, sh.reply(msg, i18n.Get("Give me a text or reply to a message", lang))
	}

	contentHash := BuildHash(content)
	sample := &db.SpamSample{
		ContentHash: contentHash,
		Text:        content,
		SpamVotes:   1,
		HamVotes:    0,
		SubmitterID: &submitterID,
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := sh.s.GetDB().UpsertSpamSample(ctx, sample); err != nil {
			return errors.WithMessage(err, "cant store reported sample")
		}
		return nil
	})
	g.Go(func() error {
		if sh.cfg.LogChannelID == 0 {
			return nil
		}
		alert := "#SPAM\n\n" +
			"**Message Hash**: `" + contentHash + "`\n" +
			"\n**====== CONTENT =======**\n\n" + content
		channelMsg := api.NewMessage(sh.cfg.LogChannelID, alert)
		channelMsg.ParseMode = api.ModeMarkdown
		if _, err := sh.s.GetBot().Send(channelMsg); err != nil {
			return errors.WithMessage(err, "cant send report alert")
		}
		return nil
	})
	return false, g.Wait()
}

func (sh *Shield) isChatAdmin(chatID, userID int64) (bool, error) {
	member, err := sh.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
	})
	if err != nil {
		return false, errors.WithMessage(err, "cant get chat member")
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}

// reply answers in-thread with an optional printf argument.
func (sh *Shield) reply(msg *api.Message, format string, args ...any) error {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	response := api.NewMessage(msg.Chat.ID, text)
	response.ReplyParameters.MessageID = msg.MessageID
	response.ReplyParameters.AllowSendingWithoutReply = true
	if _, err := sh.s.GetBot().Send(response); err != nil {
		return errors.WithMessage(err, "cant reply")
	}
	return nil
}

func stateWord(enabled bool, lang string) string {
	if enabled {
		return i18n.Get("on", lang)
	}
	return i18n.Get("off", lang)
}
