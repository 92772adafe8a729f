package shield

import (
	"context"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/GudMeong/Anjani/internal/db"
)

// stubDB is an in-memory db.Client for handler tests.
type stubDB struct {
	mu       sync.Mutex
	settings map[int64]db.ShieldSetting
	samples  map[string]db.SpamSample
	fedBans  map[string]map[int64]db.FederationBan
	upserts  int
}

func newStubDB() *stubDB {
	return &stubDB{
		settings: make(map[int64]db.ShieldSetting),
		samples:  make(map[string]db.SpamSample),
		fedBans:  make(map[string]map[int64]db.FederationBan),
	}
}

func (s *stubDB) Close() error { return nil }

func (s *stubDB) GetShieldSetting(_ context.Context, chatID int64) (*db.ShieldSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setting, ok := s.settings[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &setting, nil
}

func (s *stubDB) SetShieldSetting(_ context.Context, setting *db.ShieldSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[setting.ChatID] = *setting
	return nil
}

func (s *stubDB) MigrateShieldSetting(_ context.Context, oldChatID int64, newChatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if setting, ok := s.settings[oldChatID]; ok {
		delete(s.settings, oldChatID)
		setting.ChatID = newChatID
		s.settings[newChatID] = setting
	}
	return nil
}

func (s *stubDB) DeleteShieldSetting(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, chatID)
	return nil
}

func (s *stubDB) GetSpamSample(_ context.Context, contentHash string) (*db.SpamSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.samples[contentHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &sample, nil
}

func (s *stubDB) UpsertSpamSample(_ context.Context, sample *db.SpamSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[sample.ContentHash] = *sample
	s.upserts++
	return nil
}

func (s *stubDB) UpdateSpamVotes(_ context.Context, contentHash string, spamVotes int, hamVotes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.samples[contentHash]
	if !ok {
		return db.ErrNotFound
	}
	sample.SpamVotes = spamVotes
	sample.HamVotes = hamVotes
	s.samples[contentHash] = sample
	return nil
}

func (s *stubDB) UpsertFederationBan(_ context.Context, ban *db.FederationBan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fedBans[ban.FederationID] == nil {
		s.fedBans[ban.FederationID] = make(map[int64]db.FederationBan)
	}
	s.fedBans[ban.FederationID][ban.UserID] = *ban
	return nil
}

func (s *stubDB) GetFederationBan(_ context.Context, federationID string, userID int64) (*db.FederationBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ban, ok := s.fedBans[federationID][userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &ban, nil
}

// stubService satisfies bot.Service without a live bot API.
type stubService struct {
	db *stubDB
}

func (s *stubService) GetBot() *api.BotAPI { return nil }
func (s *stubService) GetDB() db.Client    { return s.db }
func (s *stubService) GetLanguage(_ context.Context, _ int64, _ *api.User) string {
	return "en"
}

// stubProvider returns a fixed verdict or error.
type stubProvider struct {
	verdict *Verdict
	err     error
}

func (p *stubProvider) Check(_ context.Context, _ int64) (*Verdict, error) {
	return p.verdict, p.err
}

// stubEnforcer records enforcement calls.
type stubEnforcer struct {
	mu    sync.Mutex
	calls []enforcedCall
}

type enforcedCall struct {
	userID int64
	source VerdictSource
}

func (e *stubEnforcer) Enforce(_ context.Context, _ *api.Chat, user *api.User, verdict *Verdict) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enforcedCall{userID: user.ID, source: verdict.Source})
	return nil
}

func (e *stubEnforcer) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// stubScorer returns a fixed probability and signals each invocation.
type stubScorer struct {
	prob   float64
	err    error
	scored chan string
}

func (s *stubScorer) Score(_ context.Context, text string) (float64, error) {
	if s.scored != nil {
		s.scored <- text
	}
	return s.prob, s.err
}
