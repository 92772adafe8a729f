package shield

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/GudMeong/Anjani/internal/bot"
)

const (
	callbackVotePrefix = "spam_check_"
	callbackVoteSpam   = callbackVotePrefix + "t"
	callbackVoteHam    = callbackVotePrefix + "f"
)

var (
	voterIDPattern     = regexp.MustCompile(`[0-9]+`)
	contentHashPattern = regexp.MustCompile(`([A-Fa-f0-9]{64})`)
)

// VoteLedger applies reviewer votes from prediction alert buttons. The
// voter rosters live in the buttons' callback data, so the message
// itself is the source of truth and the database rows only mirror the
// resulting tallies.
type VoteLedger struct {
	s bot.Service
}

func NewVoteLedger(s bot.Service) *VoteLedger {
	return &VoteLedger{s: s}
}

// parseVoters recovers the voter roster embedded in a button's
// callback data. The payload prefix carries no digits, so every number
// in the data is a voter id.
func parseVoters(data string) []int64 {
	var voters []int64
	for _, raw := range voterIDPattern.FindAllString(data, -1) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		voters = append(voters, id)
	}
	return voters
}

func containsVoter(voters []int64, id int64) bool {
	for _, v := range voters {
		if v == id {
			return true
		}
	}
	return false
}

func removeVoter(voters []int64, id int64) []int64 {
	out := voters[:0]
	for _, v := range voters {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// applyVote toggles one voter's position. A vote always clears the
// voter from the opposite roster; pressing the same button twice
// withdraws the vote entirely.
func applyVote(correct, incorrect []int64, voterID int64, voteSpam bool) ([]int64, []int64) {
	if voteSpam {
		incorrect = removeVoter(incorrect, voterID)
		if containsVoter(correct, voterID) {
			correct = removeVoter(correct, voterID)
		} else {
			correct = append(correct, voterID)
		}
		return correct, incorrect
	}
	correct = removeVoter(correct, voterID)
	if containsVoter(incorrect, voterID) {
		incorrect = removeVoter(incorrect, voterID)
	} else {
		incorrect = append(incorrect, voterID)
	}
	return correct, incorrect
}

func formatVoters(voters []int64) string {
	parts := make([]string, 0, len(voters))
	for _, v := range voters {
		parts = append(parts, strconv.FormatInt(v, 10))
	}
	return strings.Join(parts, ", ")
}

// voteMarkup renders the two-button keyboard with live tallies and the
// rosters embedded back into the callback data.
func voteMarkup(correct, incorrect []int64) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ Correct (%d)", len(correct)),
				fmt.Sprintf("%s[%s]", callbackVoteSpam, formatVoters(correct)),
			),
			api.NewInlineKeyboardButtonData(
				fmt.Sprintf("❌ Incorrect (%d)", len(incorrect)),
				fmt.Sprintf("%s[%s]", callbackVoteHam, formatVoters(incorrect)),
			),
		),
	)
}

// HandleCallback processes a vote button press. Unrelated callbacks
// pass through untouched.
func (v *VoteLedger) HandleCallback(ctx context.Context, cq *api.CallbackQuery) (bool, error) {
	if cq == nil || !strings.HasPrefix(cq.Data, callbackVotePrefix) {
		return true, nil
	}
	b := v.s.GetBot()
	entry := log.WithField("object", "VoteLedger")

	msg := cq.Message
	if msg == nil || msg.ReplyMarkup == nil {
		entry.Warn("vote callback without a live keyboard, ignoring")
		_, _ = b.Request(api.NewCallback(cq.ID, ""))
		return false, nil
	}

	contentHash := contentHashPattern.FindString(bot.ExtractText(msg))
	if contentHash == "" {
		entry.WithField("message_id", msg.MessageID).Warn("no content hash in alert text, ignoring vote")
		_, _ = b.Request(api.NewCallback(cq.ID, ""))
		return false, nil
	}

	var correct, incorrect []int64
	for _, row := range msg.ReplyMarkup.InlineKeyboard {
		for _, button := range row {
			if button.CallbackData == nil {
				continue
			}
			switch {
			case strings.HasPrefix(*button.CallbackData, callbackVoteSpam):
				correct = parseVoters(*button.CallbackData)
			case strings.HasPrefix(*button.CallbackData, callbackVoteHam):
				incorrect = parseVoters(*button.CallbackData)
			}
		}
	}

	voteSpam := strings.HasPrefix(cq.Data, callbackVoteSpam)
	correct, incorrect = applyVote(correct, incorrect, cq.From.ID, voteSpam)

	var g errgroup.Group
	g.Go(func() error {
		if err := v.s.GetDB().UpdateSpamVotes(ctx, contentHash, len(correct), len(incorrect)); err != nil {
			return errors.WithMessage(err, "cant update vote tallies")
		}
		return nil
	})
	g.Go(func() error {
		edit := api.NewEditMessageReplyMarkup(msg.Chat.ID, msg.MessageID, voteMarkup(correct, incorrect))
		if _, err := b.Request(edit); err != nil {
			return errors.WithMessage(err, "cant update vote keyboard")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	if _, err := b.Request(api.NewCallback(cq.ID, "")); err != nil {
		entry.WithField("error", err.Error()).Warn("cant answer vote callback")
	}
	return false, nil
}
