package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/valyala/fasthttp"

	"github.com/mtbar/concerts/pkg/models"
)

// RowSyncer writes an event snapshot to the spreadsheet dashboard
type RowSyncer interface {
	Sync(ctx context.Context, event models.Event) error
}

// Handlers handles bot events
type Handlers struct {
	api         Messenger
	sheet       RowSyncer
	digest      DigestSource
	subscribers Subscribers
	logger      *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	api Messenger,
	sheet RowSyncer,
	digest DigestSource,
	subscribers Subscribers,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		api:         api,
		sheet:       sheet,
		digest:      digest,
		subscribers: subscribers,
		logger:      logger.WithGroup("bot.handlers"),
	}
}

// HandleEventChanged mirrors a changed event to the spreadsheet.
// Sync failures are logged and the message is acked, the sheet is best effort.
func (h *Handlers) HandleEventChanged(msg *message.Message) error {
	ctx := context.Background()

	event, err := UnmarshalEventChangedEvent(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal event change: %w", err)
	}

	if err := h.sheet.Sync(ctx, event.Event); err != nil {
		h.logger.ErrorContext(ctx, "Failed to sync spreadsheet row", slog.Any("error", err),
			slog.Int64("event_id", event.Event.ID),
		)
		return nil
	}

	h.logger.DebugContext(ctx, "Spreadsheet row synced",
		slog.Int64("event_id", event.Event.ID),
		slog.Int("completeness", event.Event.Completeness),
	)
	return nil
}

// HandleDigestEvent sends the digest to every subscribed chat
func (h *Handlers) HandleDigestEvent(msg *message.Message) error {
	ctx := context.Background()

	event, err := UnmarshalDigestEvent(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to unmarshal digest event: %w", err)
	}

	h.logger.InfoContext(ctx, "Processing digest event",
		slog.Time("triggered_at", event.TriggeredAt),
	)

	chats, err := h.subscribers.ListSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}
	if len(chats) == 0 {
		h.logger.InfoContext(ctx, "No digest subscribers")
		return nil
	}

	text, err := h.digest.Text(ctx)
	if err != nil {
		return fmt.Errorf("failed to build digest: %w", err)
	}

	sent := 0
	for _, chatID := range chats {
		if _, err := h.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			h.logger.ErrorContext(ctx, "Failed to send digest", slog.Any("error", err),
				slog.Int64("chat_id", chatID),
			)
			continue
		}
		sent++
	}

	h.logger.InfoContext(ctx, "Digest sent",
		slog.Int("subscribers", len(chats)),
		slog.Int("sent", sent),
	)
	return nil
}

const defaultDownloadTimeout = 30 * time.Second

// TelegramFiles downloads files received by the bot
type TelegramFiles struct {
	bot     *telego.Bot
	client  *fasthttp.Client
	timeout time.Duration
}

// NewTelegramFiles creates a new file fetcher. Every download is bounded by timeout.
func NewTelegramFiles(bot *telego.Bot, timeout time.Duration) *TelegramFiles {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &TelegramFiles{
		bot: bot,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
}

// Fetch resolves the file path and downloads the content
func (f *TelegramFiles) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	file, err := f.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return f.download(ctx, f.bot.FileDownloadURL(file.FilePath))
}

// download stops at the earlier of the context deadline and the configured timeout
func (f *TelegramFiles) download(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	status, data, err := f.client.GetDeadline(nil, url, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if status != fasthttp.StatusOK {
		return nil, fmt.Errorf("failed to download file: status %d", status)
	}
	return data, nil
}
