package shield

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"go.opentelemetry.io/otel"

	"github.com/GudMeong/Anjani/internal/event"
)

func newTestShield(store *stubDB, cas, spamwatch verdictProvider, enforcer enforcementExecutor) *Shield {
	svc := &stubService{db: store}
	return &Shield{
		s:         svc,
		policy:    NewPolicyStore(store),
		cas:       cas,
		spamwatch: spamwatch,
		enforcer:  enforcer,
		votes:     NewVoteLedger(svc),
		tracer:    otel.Tracer("test"),
		canRestrict: func(int64) (bool, error) {
			return true, nil
		},
	}
}

func TestScanUserPrefersCommunityListVerdict(t *testing.T) {
	t.Parallel()

	sh := newTestShield(newStubDB(),
		&stubProvider{verdict: &Verdict{Source: SourceCAS, Reference: "https://cas.chat/query?u=5"}},
		&stubProvider{verdict: &Verdict{Source: SourceSpamWatch, Reason: "other"}},
		&stubEnforcer{},
	)

	verdict, err := sh.scanUser(context.Background(), 5)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if verdict == nil || verdict.Source != SourceCAS {
		t.Fatalf("community list must win the attribution, got %#v", verdict)
	}
}

func TestScanUserVerdictSurvivesSiblingError(t *testing.T) {
	t.Parallel()

	sh := newTestShield(newStubDB(),
		&stubProvider{verdict: &Verdict{Source: SourceCAS}},
		&stubProvider{err: errors.New("malformed response")},
		&stubEnforcer{},
	)

	verdict, err := sh.scanUser(context.Background(), 5)
	if err != nil {
		t.Fatalf("a positive verdict must not be discarded over a sibling failure: %v", err)
	}
	if verdict == nil || verdict.Source != SourceCAS {
		t.Fatalf("unexpected verdict: %#v", verdict)
	}
}

func TestScanUserPropagatesErrorWhenClean(t *testing.T) {
	t.Parallel()

	sh := newTestShield(newStubDB(),
		&stubProvider{err: errors.New("malformed response")},
		&stubProvider{},
		&stubEnforcer{},
	)

	if _, err := sh.scanUser(context.Background(), 5); err == nil {
		t.Fatalf("want error, got nil")
	}
}

func TestScanUserClean(t *testing.T) {
	t.Parallel()

	sh := newTestShield(newStubDB(), &stubProvider{}, &stubProvider{}, &stubEnforcer{})
	verdict, err := sh.scanUser(context.Background(), 5)
	if err != nil || verdict != nil {
		t.Fatalf("want clean scan, got %#v err %v", verdict, err)
	}
}

func TestHandleEnforcesAndStopsPipeline(t *testing.T) {
	t.Parallel()

	enforcer := &stubEnforcer{}
	sh := newTestShield(newStubDB(),
		&stubProvider{verdict: &Verdict{Source: SourceCAS}},
		&stubProvider{},
		enforcer,
	)

	chat := &api.Chat{ID: -100500, Type: "supergroup"}
	user := &api.User{ID: 555, FirstName: "Spammer"}
	update := &api.Update{Message: &api.Message{
		MessageID: 1,
		From:      user,
		Chat:      *chat,
		Text:      "hello",
	}}

	proceed, err := sh.Handle(context.Background(), update, chat, user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proceed {
		t.Fatalf("an enforced update must terminate the pipeline")
	}
	if enforcer.callCount() != 1 {
		t.Fatalf("expected exactly one enforcement, got %d", enforcer.callCount())
	}
}

func TestHandleSkipsEnforcementWhenDisabled(t *testing.T) {
	t.Parallel()

	store := newStubDB()
	enforcer := &stubEnforcer{}
	sh := newTestShield(store,
		&stubProvider{verdict: &Verdict{Source: SourceCAS}},
		&stubProvider{},
		enforcer,
	)

	ctx := context.Background()
	chat := &api.Chat{ID: -100500, Type: "supergroup"}
	user := &api.User{ID: 555}
	if err := sh.policy.SetEnabled(ctx, chat.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	update := &api.Update{Message: &api.Message{MessageID: 1, From: user, Chat: *chat, Text: "hello"}}
	proceed, err := sh.Handle(ctx, update, chat, user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !proceed {
		t.Fatalf("a disabled shield must let the update through")
	}
	if enforcer.callCount() != 0 {
		t.Fatalf("disabled shield must not enforce, got %d calls", enforcer.callCount())
	}
}

func TestHandleScansEveryJoiningMember(t *testing.T) {
	t.Parallel()

	enforcer := &stubEnforcer{}
	flagged := int64(901)
	cas := &conditionalProvider{flaggedUserID: flagged}
	sh := newTestShield(newStubDB(), cas, &stubProvider{}, enforcer)

	chat := &api.Chat{ID: -100500, Type: "supergroup"}
	inviter := &api.User{ID: 1}
	update := &api.Update{Message: &api.Message{
		MessageID: 1,
		From:      inviter,
		Chat:      *chat,
		NewChatMembers: []api.User{
			{ID: 900},
			{ID: flagged},
		},
	}}

	proceed, err := sh.Handle(context.Background(), update, chat, inviter)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proceed {
		t.Fatalf("a join with a flagged member must terminate the pipeline")
	}
	if enforcer.callCount() != 1 || enforcer.calls[0].userID != flagged {
		t.Fatalf("unexpected enforcement calls: %#v", enforcer.calls)
	}
}

func TestHandleSkipsProtectedUsers(t *testing.T) {
	t.Parallel()

	enforcer := &stubEnforcer{}
	sh := newTestShield(newStubDB(),
		&stubProvider{verdict: &Verdict{Source: SourceCAS}},
		&stubProvider{},
		enforcer,
	)
	sh.cfg.StaffIDs = []int64{555}

	chat := &api.Chat{ID: -100500, Type: "supergroup"}
	user := &api.User{ID: 555}
	update := &api.Update{Message: &api.Message{MessageID: 1, From: user, Chat: *chat, Text: "hello"}}

	proceed, err := sh.Handle(context.Background(), update, chat, user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !proceed || enforcer.callCount() != 0 {
		t.Fatalf("staff must never be enforced: proceed=%v calls=%d", proceed, enforcer.callCount())
	}
}

func TestHandleMigratesPolicyOnChatUpgrade(t *testing.T) {
	t.Parallel()

	store := newStubDB()
	sh := newTestShield(store, &stubProvider{}, &stubProvider{}, &stubEnforcer{})

	ctx := context.Background()
	if err := sh.policy.SetEnabled(ctx, 200, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	chat := &api.Chat{ID: 200, Type: "group"}
	user := &api.User{ID: 1}
	update := &api.Update{Message: &api.Message{
		MessageID:       1,
		From:            user,
		Chat:            *chat,
		MigrateToChatID: -100200,
	}}

	proceed, err := sh.Handle(ctx, update, chat, user)
	if err != nil || !proceed {
		t.Fatalf("migration handling failed: proceed=%v err=%v", proceed, err)
	}

	enabled, err := sh.policy.IsEnabled(ctx, -100200)
	if err != nil {
		t.Fatalf("is enabled: %v", err)
	}
	if enabled {
		t.Fatalf("switch did not follow the chat upgrade")
	}
}

// conditionalProvider flags exactly one user id.
type conditionalProvider struct {
	flaggedUserID int64
}

func (p *conditionalProvider) Check(_ context.Context, userID int64) (*Verdict, error) {
	if userID == p.flaggedUserID {
		return &Verdict{Source: SourceCAS}, nil
	}
	return nil, nil
}

func TestFormatProbability(t *testing.T) {
	t.Parallel()

	if got := formatProbability(0.25); got != "25" {
		t.Fatalf("got %q want 25", got)
	}
	if got := formatProbability(1); got != "100" {
		t.Fatalf("got %q want 100", got)
	}
	got := formatProbability(0.999999999)
	if got != "99.9999" {
		t.Fatalf("truncation must never round up, got %q", got)
	}
	for _, prob := range []float64{0, 0.1, 1.0 / 3.0, 0.87654321} {
		if got := formatProbability(prob); len(got) > 7 {
			t.Fatalf("rendering of %v exceeds seven characters: %q", prob, got)
		}
	}
}

func TestRunPredictionStoresSampleAboveThreshold(t *testing.T) {
	t.Parallel()

	store := newStubDB()
	sh := newTestShield(store, &stubProvider{}, &stubProvider{}, &stubEnforcer{})
	sh.scorer = &stubScorer{prob: 0.97}

	text := "  free money, click here  "
	trimmed := strings.TrimSpace(text)
	sh.runPrediction(context.Background(), trimmed, -100500, 555)

	sample, err := store.GetSpamSample(context.Background(), BuildHash(trimmed))
	if err != nil {
		t.Fatalf("sample was not stored: %v", err)
	}
	if sample.SpamVotes != 0 || sample.HamVotes != 0 {
		t.Fatalf("fresh sample must start with zero tallies: %#v", sample)
	}
	if sample.ChatID == nil || *sample.ChatID != -100500 {
		t.Fatalf("unexpected chat attribution: %#v", sample.ChatID)
	}
	if sample.SubmitterID == nil || *sample.SubmitterID != 555 {
		t.Fatalf("unexpected submitter attribution: %#v", sample.SubmitterID)
	}
}

func TestRunPredictionIgnoresLowProbability(t *testing.T) {
	t.Parallel()

	store := newStubDB()
	sh := newTestShield(store, &stubProvider{}, &stubProvider{}, &stubEnforcer{})
	sh.scorer = &stubScorer{prob: 0.59}

	sh.runPrediction(context.Background(), "borderline text", -100500, 555)
	if store.upserts != 0 {
		t.Fatalf("below-threshold prediction must not store a sample")
	}
}

func TestRunPredictionSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStubDB()
	sh := newTestShield(store, &stubProvider{}, &stubProvider{}, &stubEnforcer{})
	sh.scorer = &stubScorer{prob: 0.97}

	sh.runPrediction(ctx, "free money", -100500, 555)
	sh.runPrediction(ctx, "free money", -100600, 777)

	if store.upserts != 1 {
		t.Fatalf("duplicate content must be suppressed, got %d upserts", store.upserts)
	}
	sample, err := store.GetSpamSample(ctx, BuildHash("free money"))
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	if sample.ChatID == nil || *sample.ChatID != -100500 {
		t.Fatalf("first sighting must survive the duplicate: %#v", sample.ChatID)
	}
}

func TestDisabledShieldStillSchedulesPrediction(t *testing.T) {
	t.Parallel()

	store := newStubDB()
	sh := newTestShield(store, &stubProvider{}, &stubProvider{}, &stubEnforcer{})

	scored := make(chan string, 1)
	sh.scorer = &stubScorer{prob: 0.1, scored: scored}
	sh.queue = newStartedQueue(t)

	ctx := context.Background()
	chat := &api.Chat{ID: -100500, Type: "supergroup"}
	user := &api.User{ID: 555}
	if err := sh.policy.SetEnabled(ctx, chat.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	update := &api.Update{Message: &api.Message{MessageID: 1, From: user, Chat: *chat, Text: " hello there "}}
	proceed, err := sh.Handle(ctx, update, chat, user)
	if err != nil || !proceed {
		t.Fatalf("handle: proceed=%v err=%v", proceed, err)
	}

	select {
	case text := <-scored:
		if text != "hello there" {
			t.Fatalf("classifier received untrimmed text: %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("prediction was never scheduled")
	}
}

func newStartedQueue(t *testing.T) *event.Queue {
	t.Helper()
	queue := event.NewQueue(4, 1)
	if err := queue.Start(context.Background()); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Stop(stopCtx)
	})
	return queue
}
