package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtbar/concerts/internal/dialog"
	"github.com/mtbar/concerts/internal/metrics"
	"github.com/mtbar/concerts/internal/resolve"
	"github.com/mtbar/concerts/pkg/models"
)

// Store is the persistence the engine reads and writes. Every write replaces the whole row.
type Store interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context) ([]*models.Event, error)
	ListActiveEvents(ctx context.Context) ([]*models.Event, error)

	SavePendingPhoto(ctx context.Context, photo *models.PendingPhoto) error
	GetPendingPhoto(ctx context.Context, id int64) (*models.PendingPhoto, error)
	LatestPendingPhoto(ctx context.Context) (*models.PendingPhoto, error)
	DeletePendingPhoto(ctx context.Context, id int64) error
}

// ImageUploader hosts a received photo and returns its public URL
type ImageUploader interface {
	Upload(ctx context.Context, fileID string) (string, error)
}

// PagePublisher creates and publishes an event page
type PagePublisher interface {
	CreateAndPublish(ctx context.Context, title, html string) (*models.Page, error)
}

// PageRenderer renders the HTML of a finished event
type PageRenderer interface {
	Render(event *models.Event) (string, error)
}

// Mirror receives a snapshot after every write. Best effort, never fails the caller.
type Mirror interface {
	Sync(ctx context.Context, event models.Event)
}

// Translator renders user-facing messages
type Translator interface {
	T(key string, data map[string]any) string
}

// Config holds the engine thresholds
type Config struct {
	DescriptionMinLength int
	MaxCandidates        int
}

// Deps groups the collaborators of the engine
type Deps struct {
	Store      Store
	Dialog     *dialog.Manager
	Uploader   ImageUploader
	Publisher  PagePublisher
	Renderer   PageRenderer
	Mirror     Mirror
	Translator Translator
	Metrics    *metrics.Collector
	Logger     *slog.Logger
	Config     Config
	Now        func() time.Time
}

// Engine recognizes intents in chat messages and mutates event records
type Engine struct {
	store     Store
	resolver  *resolve.Resolver
	dialog    *dialog.Manager
	uploader  ImageUploader
	publisher PagePublisher
	renderer  PageRenderer
	mirror    Mirror
	tr        Translator
	metrics   *metrics.Collector
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

// New creates a new engine
func New(deps Deps) *Engine {
	cfg := deps.Config
	if cfg.DescriptionMinLength <= 0 {
		cfg.DescriptionMinLength = 80
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	dm := deps.Dialog
	if dm == nil {
		dm = dialog.NewManager()
	}

	return &Engine{
		store:     deps.Store,
		resolver:  resolve.New(deps.Store),
		dialog:    dm,
		uploader:  deps.Uploader,
		publisher: deps.Publisher,
		renderer:  deps.Renderer,
		mirror:    deps.Mirror,
		tr:        deps.Translator,
		metrics:   deps.Metrics,
		logger:    deps.Logger.WithGroup("engine"),
		cfg:       cfg,
		now:       now,
	}
}

// Dialog exposes the per-conversation state, used by the transport to serialize handling
func (e *Engine) Dialog() *dialog.Manager {
	return e.dialog
}

// Button is an inline action offered with a reply
type Button struct {
	Label   string
	Payload string
	URL     string
}

// Reply is what the engine wants sent back to the conversation
type Reply struct {
	// Key is the catalog id of the primary message
	Key     string
	Text    string
	Buttons [][]Button
}

func (e *Engine) reply(key string, data map[string]any) Reply {
	return Reply{Key: key, Text: e.tr.T(key, data)}
}

func (r *Reply) append(text string) {
	if r.Text == "" {
		r.Text = text
		return
	}
	r.Text += "\n\n" + text
}

func eventData(ev *models.Event) map[string]any {
	return map[string]any{
		"ID":       ev.ID,
		"Title":    ev.Title,
		"Progress": ev.ComputeCompleteness(),
	}
}

func (e *Engine) fieldNames(fields []models.Field) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, e.tr.T("field_"+string(f), nil))
	}
	return strings.Join(names, ", ")
}

func (e *Engine) terminalReply(ev *models.Event) Reply {
	data := eventData(ev)
	data["Status"] = e.tr.T("status_"+string(ev.Status), nil)
	return e.reply("terminal", data)
}

// loadEvent fetches an event, turning a missing id into a reply
func (e *Engine) loadEvent(ctx context.Context, id int64) (*models.Event, *Reply, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if err != nil {
		if isNotFound(err) {
			r := e.reply("not_found", map[string]any{"ID": id})
			return nil, &r, nil
		}
		return nil, nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return ev, nil, nil
}

// loadMutable is loadEvent that also refuses terminal records
func (e *Engine) loadMutable(ctx context.Context, id int64) (*models.Event, *Reply, error) {
	ev, r, err := e.loadEvent(ctx, id)
	if err != nil || r != nil {
		return nil, r, err
	}
	if ev.Status.IsTerminal() {
		tr := e.terminalReply(ev)
		return nil, &tr, nil
	}
	return ev, nil, nil
}

// persist recomputes the derived score, writes the whole row and mirrors it
func (e *Engine) persist(ctx context.Context, ev *models.Event) error {
	ev.Recompute()
	ev.UpdatedAt = e.now()

	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to update event %d: %w", ev.ID, err)
	}

	if e.mirror != nil {
		e.mirror.Sync(ctx, *ev)
	}
	return nil
}

// commit persists changed fields and reports progress, suggesting publication at 100%
func (e *Engine) commit(ctx context.Context, ev *models.Event, changed []models.Field) (Reply, error) {
	if err := e.persist(ctx, ev); err != nil {
		return Reply{}, err
	}

	e.logger.InfoContext(ctx, "Event updated",
		slog.Int64("event_id", ev.ID),
		slog.Any("fields", changed),
		slog.Int("completeness", ev.Completeness),
	)

	data := eventData(ev)
	data["Fields"] = e.fieldNames(changed)
	r := e.reply("updated", data)

	if ev.IsReady() {
		r.append(e.tr.T("ready", nil))
		r.Buttons = [][]Button{{
			{Label: e.tr.T("button_publish", nil), Payload: Payload(ActionPublish, ev.ID)},
		}}
	}
	return r, nil
}
