package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/mtbar/concerts/pkg/models"
)

const listGroupLimit = 5

// CreateEvent starts a new draft and selects it for the conversation
func (e *Engine) CreateEvent(ctx context.Context, chatID int64, title string) (Reply, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return e.reply("new_usage", nil), nil
	}

	now := e.now()
	ev := &models.Event{
		Title:     title,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev.Recompute()

	if err := e.store.CreateEvent(ctx, ev); err != nil {
		return Reply{}, fmt.Errorf("failed to create event: %w", err)
	}
	if e.mirror != nil {
		e.mirror.Sync(ctx, *ev)
	}

	e.dialog.Select(chatID, ev.ID)
	e.logger.InfoContext(ctx, "Event created", slog.Int64("event_id", ev.ID), slog.String("title", ev.Title))

	data := eventData(ev)
	data["Missing"] = e.fieldNames(ev.Missing())
	return e.reply("event_created", data), nil
}

// Select makes an event the conversation's current event
func (e *Engine) Select(ctx context.Context, chatID, id int64) (Reply, error) {
	ev, r, err := e.loadEvent(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	e.dialog.Select(chatID, ev.ID)
	return e.reply("event_selected", eventData(ev)), nil
}

// Status renders the card of one event
func (e *Engine) Status(ctx context.Context, id int64) (Reply, error) {
	ev, r, err := e.loadEvent(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	mark := func(v string) string {
		if v == "" {
			return "❌"
		}
		return "✅"
	}

	date, clock := ev.Date, ev.Time
	if date == "" {
		date = e.tr.T("no_date", nil)
	}
	if clock == "" {
		clock = e.tr.T("no_time", nil)
	}

	data := eventData(ev)
	data["Icon"] = StatusIcon(ev)
	data["Date"] = date
	data["Time"] = clock
	data["Image"] = mark(ev.ImageURL)
	data["Tickets"] = mark(ev.TicketsURL)
	data["Description"] = mark(ev.Description)
	data["Music"] = mark(ev.MusicURL)
	data["Status"] = e.tr.T("status_"+string(ev.Status), nil)
	data["PageURL"] = ev.PageURL

	reply := e.reply("status_card", data)
	switch {
	case ev.Status == models.StatusPublished && ev.PageURL != "":
		reply.Buttons = [][]Button{{{Label: e.tr.T("button_open", nil), URL: ev.PageURL}}}
	case ev.Status == models.StatusDraft:
		row := []Button{{Label: e.tr.T("button_edit", nil), Payload: Payload(ActionEdit, ev.ID)}}
		if ev.IsReady() {
			row = append(row, Button{Label: e.tr.T("button_publish", nil), Payload: Payload(ActionPublish, ev.ID)})
		}
		reply.Buttons = [][]Button{row}
	}
	return reply, nil
}

// StatusIcon is the traffic light shown next to an event
func StatusIcon(ev *models.Event) string {
	switch ev.Status {
	case models.StatusPublished:
		return "🟢"
	case models.StatusCancelled:
		return "⚫"
	}
	if ev.ComputeCompleteness() == 100 {
		return "🟡"
	}
	return "🔴"
}

// List groups all events by lifecycle
func (e *Engine) List(ctx context.Context) (Reply, error) {
	events, err := e.store.ListEvents(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to list events: %w", err)
	}
	if len(events) == 0 {
		return e.reply("list_empty", nil), nil
	}

	byStatus := func(s models.Status) []*models.Event {
		return lo.Filter(events, func(ev *models.Event, _ int) bool { return ev.Status == s })
	}
	drafts := byStatus(models.StatusDraft)
	ready := lo.Filter(drafts, func(ev *models.Event, _ int) bool { return ev.IsReady() })
	inProgress := lo.Filter(drafts, func(ev *models.Event, _ int) bool { return !ev.IsReady() })

	reply := e.reply("list_header", map[string]any{"Count": len(events)})

	section := func(key string, group []*models.Event, line func(*models.Event) string) {
		if len(group) == 0 {
			return
		}
		lines := []string{e.tr.T(key, nil)}
		for _, ev := range lo.Slice(group, 0, listGroupLimit) {
			lines = append(lines, line(ev))
		}
		reply.append(strings.Join(lines, "\n"))
	}

	withDate := func(ev *models.Event) string {
		date := ev.Date
		if date == "" {
			date = e.tr.T("date_unknown", nil)
		}
		return e.tr.T("list_item", map[string]any{"ID": ev.ID, "Title": ev.Title, "Date": date})
	}
	withProgress := func(ev *models.Event) string {
		return e.tr.T("list_item_progress", eventData(ev))
	}

	section("list_published", byStatus(models.StatusPublished), withDate)
	section("list_ready", ready, withDate)
	section("list_in_progress", inProgress, withProgress)
	section("list_cancelled", byStatus(models.StatusCancelled), withDate)

	reply.append(e.tr.T("list_footer", nil))
	return reply, nil
}

// EditMenu offers one button per editable field
func (e *Engine) EditMenu(ctx context.Context, id int64) (Reply, error) {
	ev, r, err := e.loadMutable(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	reply := e.reply("edit_menu", eventData(ev))
	for _, chunk := range lo.Chunk(models.EditableFields, 2) {
		row := make([]Button, 0, len(chunk))
		for _, f := range chunk {
			row = append(row, Button{
				Label:   e.tr.T("field_"+string(f), nil),
				Payload: Payload(ActionField, ev.ID, f),
			})
		}
		reply.Buttons = append(reply.Buttons, row)
	}
	return reply, nil
}

// Cancel moves an event to the cancelled terminal status
func (e *Engine) Cancel(ctx context.Context, id int64) (Reply, error) {
	ev, r, err := e.loadMutable(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	e.metrics.Intent(string(IntentCancel))
	return e.cancel(ctx, ev)
}

// Publish renders and publishes the event page. Below 100% it asks for confirmation unless forced.
// A failure of the page backend leaves the record untouched.
func (e *Engine) Publish(ctx context.Context, id int64, force bool) (Reply, error) {
	ev, r, err := e.loadMutable(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	if !force && ev.ComputeCompleteness() < 100 {
		data := eventData(ev)
		data["Missing"] = e.fieldNames(ev.Missing())
		reply := e.reply("publish_incomplete", data)
		reply.Buttons = [][]Button{{
			{Label: e.tr.T("button_publish_anyway", nil), Payload: Payload(ActionForcePublish, ev.ID)},
		}}
		return reply, nil
	}

	html, err := e.renderer.Render(ev)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to render page", slog.Int64("event_id", ev.ID), slog.String("error", err.Error()))
		return e.reply("publish_failed", map[string]any{"Reason": err.Error()}), nil
	}

	page, err := e.publisher.CreateAndPublish(ctx, ev.Title, html)
	e.metrics.Collaborator("publish", err)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish page", slog.Int64("event_id", ev.ID), slog.String("error", err.Error()))
		return e.reply("publish_failed", map[string]any{"Reason": err.Error()}), nil
	}

	ev.PageID = page.ID
	ev.PageURL = page.URL
	ev.Status = models.StatusPublished
	if err := e.persist(ctx, ev); err != nil {
		return Reply{}, err
	}

	e.logger.InfoContext(ctx, "Event published", slog.Int64("event_id", ev.ID), slog.String("url", page.URL))

	reply := e.reply("published", map[string]any{"URL": page.URL})
	reply.Buttons = [][]Button{{{Label: e.tr.T("button_open", nil), URL: page.URL}}}
	return reply, nil
}
