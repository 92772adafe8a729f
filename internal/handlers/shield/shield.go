package shield

import (
	"context"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/GudMeong/Anjani/internal/adapters/classifier"
	"github.com/GudMeong/Anjani/internal/bot"
	"github.com/GudMeong/Anjani/internal/config"
	"github.com/GudMeong/Anjani/internal/db"
	"github.com/GudMeong/Anjani/internal/event"
	"github.com/GudMeong/Anjani/internal/observability"
)

// predictThreshold is the minimum classifier probability that produces
// a review alert.
const predictThreshold = 0.6

// enforcementExecutor carries out the consequences of a verdict.
type enforcementExecutor interface {
	Enforce(ctx context.Context, chat *api.Chat, user *api.User, verdict *Verdict) error
}

// Shield bans known spammers on sight and routes everything else
// through the probabilistic classifier for human review.
type Shield struct {
	s         bot.Service
	cfg       config.Shield
	policy    *PolicyStore
	cas       verdictProvider
	spamwatch verdictProvider
	enforcer  enforcementExecutor
	votes     *VoteLedger
	scorer    classifier.Scorer
	queue     *event.Queue
	tracer    trace.Tracer

	canRestrict func(chatID int64) (bool, error)
}

func NewShield(s bot.Service, queue *event.Queue, scorer classifier.Scorer, cfg config.Shield) *Shield {
	sh := &Shield{
		s:         s,
		cfg:       cfg,
		policy:    NewPolicyStore(s.GetDB()),
		cas:       NewCASClient(cfg.CASBaseURL),
		spamwatch: NewSpamWatchClient(cfg.SpamWatchBaseURL, cfg.SpamWatchToken),
		enforcer:  NewEnforcer(s, cfg.FederationID, cfg.LogChannelID),
		votes:     NewVoteLedger(s),
		scorer:    scorer,
		queue:     queue,
		tracer:    otel.Tracer("shield"),
	}
	sh.canRestrict = func(chatID int64) (bool, error) {
		return bot.CanRestrictMembers(s.GetBot(), chatID)
	}
	return sh
}

func (sh *Shield) getLogEntry() *log.Entry {
	return log.WithField("object", "Shield")
}

func (sh *Shield) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil {
		return sh.votes.HandleCallback(ctx, u.CallbackQuery)
	}
	msg := u.Message
	if msg == nil || chat == nil || user == nil {
		return true, nil
	}

	if msg.MigrateToChatID != 0 {
		if err := sh.policy.Migrate(ctx, chat.ID, msg.MigrateToChatID); err != nil {
			return false, err
		}
		return true, nil
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "spamshield":
			return sh.handleSetting(ctx, msg, chat, user)
		case "spam":
			return sh.handleManualReport(ctx, msg, chat, user)
		}
	}

	if chat.IsPrivate() {
		return true, nil
	}

	enforced, err := sh.shieldChat(ctx, msg, chat, user)
	if err != nil {
		return false, err
	}
	if enforced {
		return false, nil
	}

	sh.schedulePrediction(msg, chat, user)
	return true, nil
}

// shieldChat scans the relevant users of a group message and enforces
// any verdict. Joining members are each scanned; an ordinary message
// scans its sender.
func (sh *Shield) shieldChat(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	enabled, err := sh.policy.IsEnabled(ctx, chat.ID)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}

	can, err := sh.canRestrict(chat.ID)
	if err != nil {
		sh.getLogEntry().WithFields(log.Fields{
			"chat_id": chat.ID,
			"error":   err.Error(),
		}).Debug("cant verify own permissions, skipping scan")
		return false, nil
	}
	if !can {
		return false, nil
	}

	targets := []*api.User{user}
	if msg.NewChatMembers != nil {
		targets = targets[:0]
		for i := range msg.NewChatMembers {
			targets = append(targets, &msg.NewChatMembers[i])
		}
	}

	enforced := false
	for _, target := range targets {
		if sh.isProtected(target) {
			continue
		}
		verdict, err := sh.scanUser(ctx, target.ID)
		if err != nil {
			return enforced, err
		}
		if verdict == nil {
			continue
		}
		if err := sh.enforcer.Enforce(ctx, chat, target, verdict); err != nil {
			return enforced, err
		}
		enforced = true
	}
	return enforced, nil
}

// isProtected reports whether the user is exempt from scanning.
func (sh *Shield) isProtected(user *api.User) bool {
	if user == nil {
		return true
	}
	if b := sh.s.GetBot(); b != nil && user.ID == b.Self.ID {
		return true
	}
	return sh.cfg.IsStaff(user.ID)
}

// scanUser consults both registries concurrently. A community-list
// verdict wins the attribution regardless of which check finished
// first.
func (sh *Shield) scanUser(ctx context.Context, userID int64) (*Verdict, error) {
	ctx, span := sh.tracer.Start(ctx, "scan_user")
	defer span.End()
	done := observability.StartScan()

	var casVerdict, swVerdict *Verdict
	var g errgroup.Group
	g.Go(func() error {
		v, err := sh.cas.Check(ctx, userID)
		casVerdict = v
		return err
	})
	g.Go(func() error {
		v, err := sh.spamwatch.Check(ctx, userID)
		swVerdict = v
		return err
	})
	err := g.Wait()

	switch {
	case casVerdict != nil:
		done("verdict")
		observability.RecordVerdict(string(SourceCAS))
		return casVerdict, nil
	case swVerdict != nil:
		done("verdict")
		observability.RecordVerdict(string(SourceSpamWatch))
		return swVerdict, nil
	case err != nil:
		done("failed")
		return nil, err
	default:
		done("clear")
		return nil, nil
	}
}

// schedulePrediction hands the message text to the background queue.
// Classification latency must never hold up update handling. Staff
// messages are not scored.
func (sh *Shield) schedulePrediction(msg *api.Message, chat *api.Chat, user *api.User) {
	if sh.scorer == nil || sh.queue == nil {
		return
	}
	if sh.cfg.IsStaff(user.ID) {
		return
	}
	text := strings.TrimSpace(bot.ExtractText(msg))
	if text == "" {
		return
	}
	chatID, userID := chat.ID, user.ID
	sh.queue.Enqueue(func(ctx context.Context) {
		sh.runPrediction(ctx, text, chatID, userID)
	})
}

func (sh *Shield) runPrediction(ctx context.Context, text string, chatID, userID int64) {
	entry := sh.getLogEntry().WithField("method", "runPrediction")

	prob, err := sh.scorer.Score(ctx, text)
	if err != nil {
		observability.RecordPrediction("failed")
		entry.WithField("error", err.Error()).Warn("cant score message")
		return
	}
	if prob < predictThreshold {
		observability.RecordPrediction("below_threshold")
		return
	}

	contentHash := BuildHash(text)
	if _, err := sh.s.GetDB().GetSpamSample(ctx, contentHash); err == nil {
		observability.RecordPrediction("suppressed")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		entry.WithField("error", err.Error()).Warn("cant check for existing sample")
		return
	}

	sample := &db.SpamSample{
		ContentHash: contentHash,
		Text:        text,
		SpamVotes:   0,
		HamVotes:    0,
		ChatID:      &chatID,
		SubmitterID: &userID,
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := sh.s.GetDB().UpsertSpamSample(ctx, sample); err != nil {
			return errors.WithMessage(err, "cant store spam sample")
		}
		return nil
	})
	g.Go(func() error {
		return sh.sendPredictionAlert(prob, contentHash, text)
	})
	if err := g.Wait(); err != nil {
		observability.RecordPrediction("failed")
		entry.WithField("error", err.Error()).Warn("cant publish prediction")
		return
	}
	observability.RecordPrediction("alerted")
}

func (sh *Shield) sendPredictionAlert(prob float64, contentHash, text string) error {
	if sh.cfg.LogChannelID == 0 {
		sh.getLogEntry().Debug("no log channel configured, skipping prediction alert")
		return nil
	}
	alert := "#SPAM_PREDICTION\n\n" +
		"**Prediction Result**: " + formatProbability(prob) + "\n" +
		"**Message Hash**: `" + contentHash + "`\n" +
		"\n**====== CONTENT =======**\n\n" + text
	msg := api.NewMessage(sh.cfg.LogChannelID, alert)
	msg.ParseMode = api.ModeMarkdown
	markup := voteMarkup(nil, nil)
	msg.ReplyMarkup = &markup
	if _, err := sh.s.GetBot().Send(msg); err != nil {
		return errors.WithMessage(err, "cant send prediction alert")
	}
	return nil
}

// formatProbability renders the percentage truncated to at most seven
// characters, never rounded up.
func formatProbability(prob float64) string {
	s := strconv.FormatFloat(prob*100, 'f', -1, 64)
	if len(s) > 7 {
		s = s[:7]
	}
	return s
}
