package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mymmrac/telego"

	"github.com/mtbar/concerts/internal/config"
	"github.com/mtbar/concerts/internal/dialog"
	"github.com/mtbar/concerts/internal/engine"
	"github.com/mtbar/concerts/internal/i18n"
	"github.com/mtbar/concerts/pkg/models"
)

type call struct {
	name string
	args []any
}

type fakeEngine struct {
	dialog *dialog.Manager
	delays map[string]time.Duration

	mu    sync.Mutex
	calls []call
	reply engine.Reply
	err   error
}

func (f *fakeEngine) record(name string, args ...any) (engine.Reply, error) {
	time.Sleep(f.delays[name])
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args})
	return f.reply, f.err
}

func (f *fakeEngine) CreateEvent(_ context.Context, chatID int64, title string) (engine.Reply, error) {
	return f.record("CreateEvent", chatID, title)
}
func (f *fakeEngine) Select(_ context.Context, chatID, id int64) (engine.Reply, error) {
	return f.record("Select", chatID, id)
}
func (f *fakeEngine) Status(_ context.Context, id int64) (engine.Reply, error) {
	return f.record("Status", id)
}
func (f *fakeEngine) List(context.Context) (engine.Reply, error) { return f.record("List") }
func (f *fakeEngine) EditMenu(_ context.Context, id int64) (engine.Reply, error) {
	return f.record("EditMenu", id)
}
func (f *fakeEngine) Cancel(_ context.Context, id int64) (engine.Reply, error) {
	return f.record("Cancel", id)
}
func (f *fakeEngine) Publish(_ context.Context, id int64, force bool) (engine.Reply, error) {
	return f.record("Publish", id, force)
}
func (f *fakeEngine) HandleText(_ context.Context, chatID int64, text string) (engine.Reply, error) {
	return f.record("HandleText", chatID, text)
}
func (f *fakeEngine) HandlePhoto(_ context.Context, chatID, messageID int64, fileID, caption string) (engine.Reply, error) {
	return f.record("HandlePhoto", chatID, messageID, fileID, caption)
}
func (f *fakeEngine) HandleButton(_ context.Context, chatID int64, payload string) (engine.Reply, error) {
	return f.record("HandleButton", chatID, payload)
}
func (f *fakeEngine) Dialog() *dialog.Manager { return f.dialog }

func (f *fakeEngine) last(t *testing.T) call {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("engine was not called")
	}
	return f.calls[len(f.calls)-1]
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []*telego.SendMessageParams
	edited  []*telego.EditMessageTextParams
	answers int
	sendErr error
	editErr error
}

func (f *fakeMessenger) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, p)
	return &telego.Message{}, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, p *telego.EditMessageTextParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edited = append(f.edited, p)
	return &telego.Message{}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(context.Context, *telego.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return nil
}

type fakeDigest struct {
	text string
	err  error
}

func (f fakeDigest) Text(context.Context) (string, error) { return f.text, f.err }

type fakeSubscribers struct {
	chats []int64
	err   error
}

func (f *fakeSubscribers) AddSubscriber(_ context.Context, chatID int64) error {
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	return nil
}

func (f *fakeSubscribers) ListSubscribers(context.Context) ([]int64, error) {
	return f.chats, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestListener(t *testing.T, cfg *config.Config) (*Listener, *fakeEngine, *fakeMessenger, *fakeSubscribers) {
	t.Helper()

	tr, err := i18n.NewTranslator("ru", discardLogger())
	if err != nil {
		t.Fatalf("failed to create translator: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	eng := &fakeEngine{dialog: dialog.NewManager(), reply: engine.Reply{Key: "ok", Text: "ok"}}
	api := &fakeMessenger{}
	subs := &fakeSubscribers{}
	l := &Listener{
		api:         api,
		engine:      eng,
		digest:      fakeDigest{text: "📅 digest"},
		subscribers: subs,
		tr:          tr,
		config:      cfg,
		logger:      discardLogger(),
	}
	return l, eng, api, subs
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, command, args string
	}{
		{"/new Metallica Tribute", "new", "Metallica Tribute"},
		{"/status@mtbar_bot 12", "status", "12"},
		{"/LIST", "list", ""},
		{"/new\nМногострочное название ", "new", "Многострочное название"},
	}
	for _, tt := range tests {
		command, args := parseCommand(tt.text)
		if command != tt.command || args != tt.args {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.text, command, args, tt.command, tt.args)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
		args []any
	}{
		{"/new Alpha Beta", "CreateEvent", []any{int64(42), "Alpha Beta"}},
		{"/list", "List", nil},
		{"/status 7", "Status", []any{int64(7)}},
		{"/select #3", "Select", []any{int64(42), int64(3)}},
		{"/edit 4", "EditMenu", []any{int64(4)}},
		{"/publish 5", "Publish", []any{int64(5), false}},
		{"/cancel 6", "Cancel", []any{int64(6)}},
	}
	for _, tt := range tests {
		l, eng, _, _ := newTestListener(t, nil)

		if _, err := l.handleCommand(context.Background(), 42, tt.text); err != nil {
			t.Fatalf("%s: unexpected error %v", tt.text, err)
		}
		got := eng.last(t)
		if got.name != tt.want {
			t.Errorf("%s: called %s, want %s", tt.text, got.name, tt.want)
			continue
		}
		for i := range tt.args {
			if got.args[i] != tt.args[i] {
				t.Errorf("%s: arg %d = %v, want %v", tt.text, i, got.args[i], tt.args[i])
			}
		}
	}
}

func TestHandleCommandIDErrors(t *testing.T) {
	l, eng, _, _ := newTestListener(t, nil)
	ctx := context.Background()

	reply, err := l.handleCommand(ctx, 1, "/status")
	if err != nil || reply.Key != "id_usage" || !strings.Contains(reply.Text, "/status") {
		t.Errorf("expected usage hint, got %+v (%v)", reply, err)
	}

	reply, err = l.handleCommand(ctx, 1, "/publish abc")
	if err != nil || reply.Key != "invalid_id" {
		t.Errorf("expected invalid id, got %+v (%v)", reply, err)
	}

	if len(eng.calls) != 0 {
		t.Errorf("engine must not be called, got %v", eng.calls)
	}
}

func TestSubscribeAndDigestCommands(t *testing.T) {
	l, _, _, subs := newTestListener(t, nil)
	ctx := context.Background()

	reply, err := l.handleCommand(ctx, 42, "/subscribe")
	if err != nil || reply.Key != "subscribed" {
		t.Fatalf("unexpected subscribe reply %+v (%v)", reply, err)
	}
	if len(subs.chats) != 1 || subs.chats[0] != 42 {
		t.Errorf("chat not subscribed: %v", subs.chats)
	}

	reply, err = l.handleCommand(ctx, 42, "/digest")
	if err != nil || reply.Text != "📅 digest" {
		t.Errorf("unexpected digest reply %+v (%v)", reply, err)
	}

	l.digest = fakeDigest{err: errors.New("db down")}
	if _, err := l.handleCommand(ctx, 42, "/digest"); err == nil {
		t.Error("expected digest error")
	}
}

func TestHandleMessageDispatch(t *testing.T) {
	l, eng, api, _ := newTestListener(t, nil)
	ctx := context.Background()

	l.handleMessage(ctx, &telego.Message{
		MessageID: 9,
		Chat:      telego.Chat{ID: 42},
		Photo:     []telego.PhotoSize{{FileID: "small"}, {FileID: "big"}},
		Caption:   " Alpha — афиша утверждена ",
	})
	got := eng.last(t)
	if got.name != "HandlePhoto" || got.args[1] != int64(9) || got.args[2] != "big" || got.args[3] != "Alpha — афиша утверждена" {
		t.Errorf("unexpected photo dispatch %+v", got)
	}

	l.handleMessage(ctx, &telego.Message{Chat: telego.Chat{ID: 42}, Text: "Alpha — 05.03"})
	if got := eng.last(t); got.name != "HandleText" || got.args[1] != "Alpha — 05.03" {
		t.Errorf("unexpected text dispatch %+v", got)
	}

	if len(api.sent) != 2 || api.sent[0].Text != "ok" {
		t.Errorf("expected two replies, got %d", len(api.sent))
	}
}

func TestHandleMessageIgnored(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.App.AllowedChats = []int64{1}
	l, eng, api, _ := newTestListener(t, cfg)
	ctx := context.Background()

	l.handleMessage(ctx, &telego.Message{Chat: telego.Chat{ID: 2}, Text: "Alpha — 05.03"})
	l.handleMessage(ctx, &telego.Message{Chat: telego.Chat{ID: 1}, From: &telego.User{IsBot: true}, Text: "hi"})
	l.handleMessage(ctx, &telego.Message{Chat: telego.Chat{ID: 1}, Text: "   "})

	if len(eng.calls) != 0 || len(api.sent) != 0 {
		t.Errorf("expected nothing handled, calls %v sent %d", eng.calls, len(api.sent))
	}
}

func TestHandleMessageFailure(t *testing.T) {
	l, eng, api, _ := newTestListener(t, nil)
	eng.err = errors.New("connection refused")

	l.handleMessage(context.Background(), &telego.Message{Chat: telego.Chat{ID: 42}, Text: "Alpha — 05.03"})

	if len(api.sent) != 1 || !strings.Contains(api.sent[0].Text, "Внутренняя ошибка") {
		t.Errorf("expected internal error reply, got %+v", api.sent)
	}
}

func TestDispatchKeepsChatOrder(t *testing.T) {
	l, eng, api, _ := newTestListener(t, nil)
	eng.delays = map[string]time.Duration{"HandlePhoto": 50 * time.Millisecond}
	ctx := context.Background()

	l.dispatch(ctx, telego.Update{Message: &telego.Message{
		MessageID: 1,
		Chat:      telego.Chat{ID: 42},
		Photo:     []telego.PhotoSize{{FileID: "poster"}},
	}})
	l.dispatch(ctx, telego.Update{Message: &telego.Message{
		MessageID: 2,
		Chat:      telego.Chat{ID: 42},
		Text:      "Alpha — афиша утверждена",
	}})
	l.dispatch(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:      "q1",
		Data:    "attach:1",
		Message: &telego.Message{MessageID: 3, Chat: telego.Chat{ID: 42}},
	}})
	eng.dialog.Wait()

	var names []string
	for _, c := range eng.calls {
		names = append(names, c.name)
	}
	if got := strings.Join(names, ","); got != "HandlePhoto,HandleText,HandleButton" {
		t.Fatalf("updates of one chat handled out of order: %s", got)
	}
	if len(api.sent) != 2 || len(api.edited) != 1 {
		t.Errorf("expected two replies and one edit, got %d and %d", len(api.sent), len(api.edited))
	}
}

func TestUpdateChatID(t *testing.T) {
	tests := []struct {
		name   string
		update telego.Update
		want   int64
		ok     bool
	}{
		{"message", telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 7}}}, 7, true},
		{"callback", telego.Update{CallbackQuery: &telego.CallbackQuery{Message: &telego.Message{Chat: telego.Chat{ID: 8}}}}, 8, true},
		{"callback without message", telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "q"}}, 0, false},
		{"other", telego.Update{}, 0, false},
	}
	for _, tt := range tests {
		got, ok := updateChatID(tt.update)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s: updateChatID = %d, %v", tt.name, got, ok)
		}
	}
}

func TestHandleCallbackEditsPrompt(t *testing.T) {
	l, eng, api, _ := newTestListener(t, nil)
	eng.reply = engine.Reply{Text: "👉 Выбран концерт #1", Buttons: [][]engine.Button{{{Label: "x", Payload: "edit:1"}}}}

	l.handleCallback(context.Background(), &telego.CallbackQuery{
		ID:      "q1",
		Data:    "pick:1",
		Message: &telego.Message{MessageID: 5, Chat: telego.Chat{ID: 42}},
	})

	if api.answers != 1 {
		t.Error("callback must be answered")
	}
	if got := eng.last(t); got.name != "HandleButton" || got.args[1] != "pick:1" {
		t.Errorf("unexpected dispatch %+v", got)
	}
	if len(api.edited) != 1 || api.edited[0].MessageID != 5 || api.edited[0].ReplyMarkup == nil {
		t.Fatalf("expected prompt to be edited, got %+v", api.edited)
	}
	if len(api.sent) != 0 {
		t.Error("nothing should be sent when the edit succeeds")
	}

	api.editErr = errors.New("message is not modified")
	l.handleCallback(context.Background(), &telego.CallbackQuery{
		ID:      "q2",
		Data:    "pick:1",
		Message: &telego.Message{MessageID: 5, Chat: telego.Chat{ID: 42}},
	})
	if len(api.sent) != 1 {
		t.Error("expected fallback send after a failed edit")
	}
}

func TestKeyboard(t *testing.T) {
	if keyboard(nil) != nil {
		t.Error("no buttons must produce no keyboard")
	}

	kb := keyboard([][]engine.Button{
		{{Label: "Open", URL: "https://site.example.com/page1.html"}, {Label: "Edit", Payload: "edit:1"}},
		{},
	})
	if kb == nil || len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard %+v", kb)
	}
	open, edit := kb.InlineKeyboard[0][0], kb.InlineKeyboard[0][1]
	if open.URL == "" || open.CallbackData != "" {
		t.Errorf("url button carries callback data: %+v", open)
	}
	if edit.CallbackData != "edit:1" || edit.URL != "" {
		t.Errorf("unexpected callback button %+v", edit)
	}
}

func TestPhotoFileID(t *testing.T) {
	tests := []struct {
		msg  *telego.Message
		want string
	}{
		{&telego.Message{Photo: []telego.PhotoSize{{FileID: "a"}, {FileID: "b"}}}, "b"},
		{&telego.Message{Document: &telego.Document{FileID: "d", MimeType: "image/png"}}, "d"},
		{&telego.Message{Document: &telego.Document{FileID: "d", MimeType: "application/pdf"}}, ""},
		{&telego.Message{Text: "hi"}, ""},
	}
	for _, tt := range tests {
		if got := photoFileID(tt.msg); got != tt.want {
			t.Errorf("photoFileID() = %q, want %q", got, tt.want)
		}
	}
}

type fakeSheet struct {
	synced []int64
	err    error
}

func (f *fakeSheet) Sync(_ context.Context, ev models.Event) error {
	f.synced = append(f.synced, ev.ID)
	return f.err
}

func TestHandleEventChanged(t *testing.T) {
	sheet := &fakeSheet{err: errors.New("quota exceeded")}
	h := NewHandlers(&fakeMessenger{}, sheet, fakeDigest{}, &fakeSubscribers{}, discardLogger())

	data, err := EventChangedEvent{Event: models.Event{ID: 3, Title: "Alpha"}}.Marshal()
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if err := h.HandleEventChanged(message.NewMessage("1", data)); err != nil {
		t.Errorf("sheet failures must not fail the handler, got %v", err)
	}
	if len(sheet.synced) != 1 || sheet.synced[0] != 3 {
		t.Errorf("unexpected syncs %v", sheet.synced)
	}

	if err := h.HandleEventChanged(message.NewMessage("2", []byte("{"))); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestHandleDigestEvent(t *testing.T) {
	api := &fakeMessenger{}
	subs := &fakeSubscribers{chats: []int64{10, 20}}
	h := NewHandlers(api, &fakeSheet{}, fakeDigest{text: "📅 Сводка"}, subs, discardLogger())

	data, _ := DigestEvent{}.Marshal()
	if err := h.HandleDigestEvent(message.NewMessage("1", data)); err != nil {
		t.Fatalf("HandleDigestEvent returned error: %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected digest for both subscribers, got %d", len(api.sent))
	}
	if api.sent[1].ChatID.ID != 20 || api.sent[1].Text != "📅 Сводка" {
		t.Errorf("unexpected message %+v", api.sent[1])
	}
}

type fakePublisher struct {
	topics []string
	err    error
}

func (f *fakePublisher) Publish(topic string, _ ...*message.Message) error {
	f.topics = append(f.topics, topic)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func TestChangeFeed(t *testing.T) {
	pub := &fakePublisher{}
	feed := NewChangeFeed(pub, discardLogger())

	feed.Sync(context.Background(), models.Event{ID: 1})
	if len(pub.topics) != 1 || pub.topics[0] != TopicEventChanged {
		t.Errorf("unexpected topics %v", pub.topics)
	}

	pub.err = errors.New("closed")
	feed.Sync(context.Background(), models.Event{ID: 2})
}
