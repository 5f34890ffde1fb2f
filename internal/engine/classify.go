package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mtbar/concerts/internal/extract"
	"github.com/mtbar/concerts/pkg/models"
)

// Intent is the meaning recognized in a message fragment
type Intent string

const (
	IntentCancel        Intent = "cancel"
	IntentApprovePoster Intent = "approve_poster"
	IntentApproveText   Intent = "approve_text"
	IntentApproveChoice Intent = "approve_choice"
	IntentURLs          Intent = "urls"
	IntentDateTime      Intent = "datetime"
	IntentDescription   Intent = "description"
	IntentUnrecognized  Intent = "unrecognized"
)

// mutation is the working set of one fragment run through the cascade
type mutation struct {
	chatID   int64
	event    *models.Event
	fragment string
	lower    string
	urls     []string
	date     string
	clock    string

	changed []models.Field
	matched bool
	reply   Reply
}

func (e *Engine) newMutation(chatID int64, ev *models.Event, fragment string) *mutation {
	fragment = strings.TrimSpace(fragment)
	date, clock := extract.DateTimeAt(fragment, e.now())
	return &mutation{
		chatID:   chatID,
		event:    ev,
		fragment: fragment,
		lower:    strings.ToLower(fragment),
		urls:     extract.URLs(fragment),
		date:     date,
		clock:    clock,
	}
}

// fill sets a field only when it is empty
func (m *mutation) fill(f models.Field, v string) bool {
	if v == "" || m.event.Value(f) != "" {
		return false
	}
	m.event.Set(f, v)
	m.changed = append(m.changed, f)
	return true
}

func (m *mutation) overwrite(f models.Field, v string) {
	if m.event.Value(f) == v {
		return
	}
	m.event.Set(f, v)
	m.changed = append(m.changed, f)
}

// rule is one step of the cascade. An exclusive rule ends evaluation and owns the reply,
// the others harvest fields and let later rules run.
type rule struct {
	intent    Intent
	exclusive bool
	match     func(e *Engine, m *mutation) bool
	apply     func(e *Engine, ctx context.Context, m *mutation) error
}

var cascade = []rule{
	{IntentCancel, true, matchCancel, (*Engine).applyCancel},
	{IntentApprovePoster, true, matchApprovePoster, (*Engine).applyApprovePoster},
	{IntentApproveText, true, matchApproveText, (*Engine).applyApproveText},
	{IntentApproveChoice, true, matchApproveChoice, (*Engine).applyApproveChoice},
	{IntentURLs, false, matchURLs, (*Engine).applyURLs},
	{IntentDateTime, false, matchDateTime, (*Engine).applyDateTime},
	{IntentDescription, false, matchDescription, (*Engine).applyDescription},
}

// Classify names the intents a fragment triggers for ev, in cascade order, without mutating anything
func (e *Engine) Classify(ev *models.Event, fragment string) []Intent {
	probe := *ev
	m := e.newMutation(0, &probe, fragment)

	var intents []Intent
	for _, r := range cascade {
		if !r.match(e, m) {
			continue
		}
		intents = append(intents, r.intent)
		if r.exclusive {
			return intents
		}
	}
	if len(intents) == 0 {
		intents = append(intents, IntentUnrecognized)
	}
	return intents
}

// Apply runs a fragment through the cascade against ev and persists what changed
func (e *Engine) Apply(ctx context.Context, chatID int64, ev *models.Event, fragment string) (Reply, error) {
	if ev.Status.IsTerminal() {
		return e.terminalReply(ev), nil
	}

	m := e.newMutation(chatID, ev, fragment)

	for _, r := range cascade {
		if !r.match(e, m) {
			continue
		}
		e.metrics.Intent(string(r.intent))
		e.logger.DebugContext(ctx, "Rule matched", slog.Int64("event_id", ev.ID), slog.String("intent", string(r.intent)))

		if err := r.apply(e, ctx, m); err != nil {
			return Reply{}, err
		}
		if r.exclusive {
			return m.reply, nil
		}
		m.matched = true
	}

	if len(m.changed) > 0 {
		return e.commit(ctx, ev, m.changed)
	}

	if m.matched {
		return e.reply("nothing_new", eventData(ev)), nil
	}

	e.metrics.Intent(string(IntentUnrecognized))
	return e.reply("unrecognized_selected", eventData(ev)), nil
}

func matchCancel(_ *Engine, m *mutation) bool {
	return extract.HasKeyword(m.lower, extract.CancelKeywords)
}

func (e *Engine) applyCancel(ctx context.Context, m *mutation) error {
	r, err := e.cancel(ctx, m.event)
	if err != nil {
		return err
	}
	m.reply = r
	return nil
}

func (e *Engine) cancel(ctx context.Context, ev *models.Event) (Reply, error) {
	ev.Status = models.StatusCancelled
	if err := e.persist(ctx, ev); err != nil {
		return Reply{}, err
	}

	e.logger.InfoContext(ctx, "Event cancelled", slog.Int64("event_id", ev.ID))
	return e.reply("cancelled", eventData(ev)), nil
}

func isApproval(m *mutation) bool {
	return extract.HasKeyword(m.lower, extract.ApproveKeywords)
}

func matchApprovePoster(_ *Engine, m *mutation) bool {
	return isApproval(m) && extract.HasKeyword(m.lower, extract.PosterKeywords)
}

func (e *Engine) applyApprovePoster(ctx context.Context, m *mutation) error {
	photo, err := e.store.LatestPendingPhoto(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNoPendingPhoto) {
			m.reply = e.reply("no_pending_photo", nil)
			return nil
		}
		return fmt.Errorf("failed to get pending photo: %w", err)
	}

	r, err := e.attachPhoto(ctx, m.event, photo)
	if err != nil {
		return err
	}
	m.reply = r
	return nil
}

// attachPhoto hosts the photo, sets it as the event image and consumes it.
// An upload failure leaves both the event and the pending photo untouched.
func (e *Engine) attachPhoto(ctx context.Context, ev *models.Event, photo *models.PendingPhoto) (Reply, error) {
	url, err := e.uploader.Upload(ctx, photo.FileID)
	e.metrics.Collaborator("upload", err)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to upload image",
			slog.Int64("event_id", ev.ID),
			slog.Int64("photo_id", photo.ID),
			slog.String("error", err.Error()),
		)
		return e.reply("upload_failed", map[string]any{"Reason": err.Error()}), nil
	}

	ev.SetImage(url, photo.FileID)
	r, err := e.commit(ctx, ev, []models.Field{models.FieldImage})
	if err != nil {
		return Reply{}, err
	}

	if err := e.store.DeletePendingPhoto(ctx, photo.ID); err != nil {
		return Reply{}, fmt.Errorf("failed to delete pending photo %d: %w", photo.ID, err)
	}
	return r, nil
}

func matchApproveText(_ *Engine, m *mutation) bool {
	return isApproval(m) && extract.HasKeyword(m.lower, extract.TextKeywords)
}

func (e *Engine) applyApproveText(_ context.Context, m *mutation) error {
	e.dialog.AwaitField(m.chatID, m.event.ID, models.FieldDescription)
	m.reply = e.reply("await_description", eventData(m.event))
	return nil
}

func matchApproveChoice(_ *Engine, m *mutation) bool {
	return isApproval(m)
}

func (e *Engine) applyApproveChoice(_ context.Context, m *mutation) error {
	r := e.reply("approve_choice", eventData(m.event))
	r.Buttons = [][]Button{{
		{Label: e.tr.T("button_poster", nil), Payload: Payload(ActionPoster, m.event.ID)},
		{Label: e.tr.T("button_text", nil), Payload: Payload(ActionText, m.event.ID)},
	}}
	m.reply = r
	return nil
}

func matchURLs(_ *Engine, m *mutation) bool {
	return len(m.urls) > 0
}

func (e *Engine) applyURLs(_ context.Context, m *mutation) error {
	ticketHint := extract.HasKeyword(m.lower, extract.TicketKeywords)
	musicHint := extract.HasKeyword(m.lower, extract.MusicKeywords)

	for _, u := range m.urls {
		switch extract.ClassifyURL(u) {
		case extract.URLTickets:
			m.fill(models.FieldTickets, u)
		case extract.URLMusic:
			m.fill(models.FieldMusic, u)
		default:
			switch {
			case ticketHint && m.fill(models.FieldTickets, u):
			case musicHint:
				m.fill(models.FieldMusic, u)
			}
		}
	}
	return nil
}

func matchDateTime(_ *Engine, m *mutation) bool {
	return m.date != "" || m.clock != ""
}

func (e *Engine) applyDateTime(_ context.Context, m *mutation) error {
	if m.date != "" && !m.fill(models.FieldDate, m.date) {
		if extract.HasKeyword(m.lower, extract.DateChangeKeywords) {
			m.overwrite(models.FieldDate, m.date)
		}
	}
	m.fill(models.FieldTime, m.clock)
	return nil
}

func matchDescription(e *Engine, m *mutation) bool {
	if len(m.urls) > 0 || m.event.Description != "" {
		return false
	}
	if utf8.RuneCountInString(m.fragment) <= e.cfg.DescriptionMinLength {
		return false
	}
	for _, set := range []extract.KeywordSet{
		extract.ApproveKeywords,
		extract.PosterKeywords,
		extract.TicketKeywords,
		extract.DateChangeKeywords,
	} {
		if extract.HasKeyword(m.lower, set) {
			return false
		}
	}
	return true
}

func (e *Engine) applyDescription(_ context.Context, m *mutation) error {
	m.fill(models.FieldDescription, m.fragment)
	return nil
}
