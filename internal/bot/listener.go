package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/mtbar/concerts/internal/config"
	"github.com/mtbar/concerts/internal/dialog"
	"github.com/mtbar/concerts/internal/engine"
)

// Engine is the conversation logic driven by chat updates
type Engine interface {
	CreateEvent(ctx context.Context, chatID int64, title string) (engine.Reply, error)
	Select(ctx context.Context, chatID, id int64) (engine.Reply, error)
	Status(ctx context.Context, id int64) (engine.Reply, error)
	List(ctx context.Context) (engine.Reply, error)
	EditMenu(ctx context.Context, id int64) (engine.Reply, error)
	Cancel(ctx context.Context, id int64) (engine.Reply, error)
	Publish(ctx context.Context, id int64, force bool) (engine.Reply, error)
	HandleText(ctx context.Context, chatID int64, text string) (engine.Reply, error)
	HandlePhoto(ctx context.Context, chatID, messageID int64, fileID, caption string) (engine.Reply, error)
	HandleButton(ctx context.Context, chatID int64, payload string) (engine.Reply, error)
	Dialog() *dialog.Manager
}

// Messenger is the part of the Bot API used to answer
type Messenger interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

// DigestSource renders the current digest
type DigestSource interface {
	Text(ctx context.Context) (string, error)
}

// Subscribers stores the chats receiving the daily digest
type Subscribers interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	ListSubscribers(ctx context.Context) ([]int64, error)
}

// Translator renders user-facing messages
type Translator interface {
	T(key string, data map[string]any) string
}

// Listener handles Telegram updates
type Listener struct {
	bot         *telego.Bot
	api         Messenger
	engine      Engine
	digest      DigestSource
	subscribers Subscribers
	tr          Translator
	config      *config.Config
	logger      *slog.Logger
}

// New creates a new bot listener
func New(
	bot *telego.Bot,
	eng Engine,
	digest DigestSource,
	subscribers Subscribers,
	tr Translator,
	cfg *config.Config,
	logger *slog.Logger,
) *Listener {
	return &Listener{
		bot:         bot,
		api:         bot,
		engine:      eng,
		digest:      digest,
		subscribers: subscribers,
		tr:          tr,
		config:      cfg,
		logger:      logger.WithGroup("bot.listener"),
	}
}

// Start starts listening to Telegram updates
func (l *Listener) Start(ctx context.Context) error {
	updates, err := l.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get updates channel: %w", err)
	}

	l.logger.InfoContext(ctx, "Bot listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.InfoContext(ctx, "Stopping bot listener")
			l.engine.Dialog().Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				l.engine.Dialog().Wait()
				return nil
			}
			l.dispatch(ctx, update)
		}
	}
}

// dispatch queues an update behind the earlier updates of the same chat
func (l *Listener) dispatch(ctx context.Context, update telego.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		go l.handleUpdate(ctx, update)
		return
	}
	l.engine.Dialog().Enqueue(chatID, func() {
		l.handleUpdate(ctx, update)
	})
}

func updateChatID(update telego.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.GetChat().ID, true
	}
	return 0, false
}

func (l *Listener) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		l.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		l.handleCallback(ctx, update.CallbackQuery)
	}
}

// handleMessage processes incoming message
func (l *Listener) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From != nil && msg.From.IsBot {
		return
	}

	chatID := msg.Chat.ID
	if !l.config.IsChatAllowed(chatID) {
		l.logger.DebugContext(ctx, "Message from non-allowed chat ignored",
			slog.Int64("chat_id", chatID),
			slog.String("chat_type", msg.Chat.Type),
		)
		return
	}

	var (
		reply engine.Reply
		err   error
	)

	switch fileID := photoFileID(msg); {
	case fileID != "":
		l.logger.InfoContext(ctx, "Photo received",
			slog.Int64("chat_id", chatID),
			slog.Int("message_id", msg.MessageID),
		)
		reply, err = l.engine.HandlePhoto(ctx, chatID, int64(msg.MessageID), fileID, strings.TrimSpace(msg.Caption))
	case strings.HasPrefix(msg.Text, "/"):
		reply, err = l.handleCommand(ctx, chatID, msg.Text)
	case strings.TrimSpace(msg.Text) != "":
		reply, err = l.engine.HandleText(ctx, chatID, msg.Text)
	default:
		return
	}

	if err != nil {
		l.fail(ctx, chatID, err)
		return
	}
	l.send(ctx, chatID, reply)
}

// handleCallback answers an inline button press
func (l *Listener) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	if err := l.api.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
		l.logger.WarnContext(ctx, "Failed to answer callback", slog.Any("error", err))
	}

	if query.Message == nil {
		return
	}

	chatID := query.Message.GetChat().ID
	if !l.config.IsChatAllowed(chatID) {
		return
	}

	l.logger.InfoContext(ctx, "Button pressed",
		slog.Int64("chat_id", chatID),
		slog.String("payload", query.Data),
	)

	reply, err := l.engine.HandleButton(ctx, chatID, query.Data)
	if err != nil {
		l.fail(ctx, chatID, err)
		return
	}
	if reply.Text == "" {
		return
	}

	// The prompt the button belonged to is replaced so stale buttons disappear
	if query.Message.IsAccessible() {
		params := &telego.EditMessageTextParams{
			ChatID:      telego.ChatID{ID: chatID},
			MessageID:   query.Message.GetMessageID(),
			Text:        reply.Text,
			ReplyMarkup: keyboard(reply.Buttons),
		}
		_, err := l.api.EditMessageText(ctx, params)
		if err == nil {
			return
		}
		l.logger.WarnContext(ctx, "Failed to edit message, sending a new one", slog.Any("error", err),
			slog.Int64("chat_id", chatID),
		)
	}
	l.send(ctx, chatID, reply)
}

// fail logs a hard failure and tells the chat something went wrong
func (l *Listener) fail(ctx context.Context, chatID int64, err error) {
	l.logger.ErrorContext(ctx, "Failed to handle update", slog.Any("error", err),
		slog.Int64("chat_id", chatID),
	)
	l.send(ctx, chatID, engine.Reply{Text: l.tr.T("internal_error", nil)})
}

// send delivers a reply, attaching its buttons as an inline keyboard
func (l *Listener) send(ctx context.Context, chatID int64, reply engine.Reply) {
	if reply.Text == "" {
		return
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   reply.Text,
	}
	if kb := keyboard(reply.Buttons); kb != nil {
		params.ReplyMarkup = kb
	}

	if _, err := l.api.SendMessage(ctx, params); err != nil {
		l.logger.ErrorContext(ctx, "Failed to send reply", slog.Any("error", err),
			slog.Int64("chat_id", chatID),
			slog.String("key", reply.Key),
		)
	}
}

// keyboard converts reply buttons to an inline keyboard, nil when there are none
func keyboard(rows [][]engine.Button) *telego.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	markup := &telego.InlineKeyboardMarkup{}
	for _, row := range rows {
		var buttons []telego.InlineKeyboardButton
		for _, b := range row {
			btn := telego.InlineKeyboardButton{Text: b.Label}
			if b.URL != "" {
				btn.URL = b.URL
			} else {
				btn.CallbackData = b.Payload
			}
			buttons = append(buttons, btn)
		}
		if len(buttons) > 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
		}
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}

// photoFileID returns the largest photo size, or an image sent as a file
func photoFileID(msg *telego.Message) string {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID
	}
	return ""
}
