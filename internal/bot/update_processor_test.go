package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type recordingHandler struct {
	proceed bool
	err     error
	calls   int
}

func (h *recordingHandler) Handle(_ context.Context, _ *api.Update, _ *api.Chat, _ *api.User) (bool, error) {
	h.calls++
	return h.proceed, h.err
}

func freshUpdate() *api.Update {
	return &api.Update{
		UpdateID: 1,
		Message: &api.Message{
			MessageID: 1,
			Date:      int(time.Now().Unix()),
			Chat:      api.Chat{ID: -100500, Type: "supergroup"},
			From:      &api.User{ID: 42},
			Text:      "hello",
		},
	}
}

func TestProcessShortCircuitsOnTerminalOutcome(t *testing.T) {
	t.Parallel()

	terminal := &recordingHandler{proceed: false}
	never := &recordingHandler{proceed: true}
	up := &UpdateProcessor{updateHandlers: []Handler{terminal, never}}

	if err := up.Process(context.Background(), freshUpdate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if terminal.calls != 1 || never.calls != 0 {
		t.Fatalf("pipeline did not short-circuit: terminal=%d never=%d", terminal.calls, never.calls)
	}
}

func TestProcessRunsWholePipelineWhenHandlersProceed(t *testing.T) {
	t.Parallel()

	first := &recordingHandler{proceed: true}
	second := &recordingHandler{proceed: true}
	up := &UpdateProcessor{updateHandlers: []Handler{first, second}}

	if err := up.Process(context.Background(), freshUpdate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("unexpected calls: first=%d second=%d", first.calls, second.calls)
	}
}

func TestProcessPropagatesHandlerError(t *testing.T) {
	t.Parallel()

	handlerErr := errors.New("boom")
	failing := &recordingHandler{err: handlerErr}
	after := &recordingHandler{proceed: true}
	up := &UpdateProcessor{updateHandlers: []Handler{failing, after}}

	err := up.Process(context.Background(), freshUpdate())
	if !errors.Is(err, handlerErr) {
		t.Fatalf("want handler error, got %v", err)
	}
	if after.calls != 0 {
		t.Fatalf("handlers after a failure must not run")
	}
}

func TestProcessSkipsOutdatedUpdates(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{proceed: true}
	up := &UpdateProcessor{updateHandlers: []Handler{handler}}

	stale := freshUpdate()
	stale.Message.Date = int(time.Now().Add(-UpdateTimeout - time.Minute).Unix())
	if err := up.Process(context.Background(), stale); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("outdated update must be dropped before handlers run")
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	if got := ExtractText(&api.Message{Text: "plain"}); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractText(&api.Message{Caption: "captioned"}); got != "captioned" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractText(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestGetFullNameAndUN(t *testing.T) {
	t.Parallel()

	user := &api.User{FirstName: "Jane", LastName: "Doe", UserName: "jdoe"}
	if got := GetFullName(user); got != "Jane Doe" {
		t.Fatalf("full name: %q", got)
	}
	if got := GetUN(user); got != "jdoe" {
		t.Fatalf("username: %q", got)
	}

	nameless := &api.User{UserName: "ghost"}
	if got := GetFullName(nameless); got != "ghost" {
		t.Fatalf("fallback full name: %q", got)
	}
	if got := GetUN(&api.User{FirstName: "Solo"}); got != "Solo" {
		t.Fatalf("fallback username: %q", got)
	}
}
