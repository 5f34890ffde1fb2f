package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/mtbar/concerts/internal/dialog"
	"github.com/mtbar/concerts/internal/extract"
	"github.com/mtbar/concerts/pkg/models"
)

// namePrefixPattern splits "Name — data", "Name – data" and "Name - data"
var namePrefixPattern = regexp.MustCompile(`(?s)^(.{1,100}?)\s+(?:—|–|-{1,2})\s+(.+)$`)

// SplitName separates an event-name prefix from the message payload
func SplitName(text string) (name, rest string, ok bool) {
	m := namePrefixPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	name = strings.TrimSpace(m[1])
	rest = strings.TrimSpace(m[2])
	if name == "" || rest == "" {
		return "", "", false
	}
	return name, rest, true
}

// HandleText processes a free-text message from a conversation
func (e *Engine) HandleText(ctx context.Context, chatID int64, text string) (Reply, error) {
	text = strings.TrimSpace(text)

	st := e.dialog.Current(chatID)
	switch st.Kind {
	case dialog.AwaitingField:
		e.dialog.Take(chatID)
		return e.applyFieldValue(ctx, st, text)
	case dialog.AwaitingDisambiguation, dialog.AwaitingPhotoTarget:
		e.logger.DebugContext(ctx, "Dropping stale dialog state",
			slog.Int64("chat_id", chatID),
			slog.String("state", st.Kind.String()),
		)
		e.dialog.Reset(chatID)
	}

	return e.route(ctx, chatID, text)
}

// route resolves the target event of a message and applies it
func (e *Engine) route(ctx context.Context, chatID int64, text string) (Reply, error) {
	if name, rest, ok := SplitName(text); ok {
		candidates, err := e.resolver.Resolve(ctx, name)
		if err != nil {
			return Reply{}, err
		}

		switch len(candidates) {
		case 0:
			// a named cancellation must not fall through to a different event
			if extract.HasKeyword(strings.ToLower(text), extract.CancelKeywords) {
				e.logger.InfoContext(ctx, "Cancellation for unknown name ignored",
					slog.Int64("chat_id", chatID),
					slog.String("name", name),
				)
				return e.reply("name_not_found", map[string]any{"Name": name}), nil
			}
			// not a known name, the whole message goes to the current selection
		case 1:
			ev := candidates[0]
			e.dialog.Select(chatID, ev.ID)
			return e.Apply(ctx, chatID, ev, rest)
		default:
			return e.disambiguate(chatID, name, text, rest, candidates), nil
		}
	}

	id := e.dialog.Selected(chatID)
	if id == 0 {
		e.metrics.Intent(string(IntentUnrecognized))
		return e.reply("no_selection", nil), nil
	}

	ev, r, err := e.loadEvent(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}
	return e.Apply(ctx, chatID, ev, text)
}

func (e *Engine) disambiguate(chatID int64, name, text, rest string, candidates []*models.Event) Reply {
	if len(candidates) > e.cfg.MaxCandidates {
		candidates = candidates[:e.cfg.MaxCandidates]
	}

	ids := lo.Map(candidates, func(ev *models.Event, _ int) int64 { return ev.ID })
	e.dialog.AwaitDisambiguation(chatID, text, rest, ids)

	r := e.reply("disambiguation", map[string]any{"Name": name})
	for _, ev := range candidates {
		r.Buttons = append(r.Buttons, []Button{{
			Label:   fmt.Sprintf("#%d %s", ev.ID, ev.Title),
			Payload: Payload(ActionPick, ev.ID),
		}})
	}
	r.Buttons = append(r.Buttons, []Button{{
		Label:   e.tr.T("button_cancel", nil),
		Payload: Payload(ActionPick, cancelArg),
	}})
	return r
}

// applyFieldValue overwrites one field with the message armed by the edit menu or a text approval
func (e *Engine) applyFieldValue(ctx context.Context, st dialog.State, text string) (Reply, error) {
	ev, r, err := e.loadMutable(ctx, st.EventID)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	if text == "" {
		return e.reply("empty_value", nil), nil
	}

	invalid := e.reply("invalid_value", map[string]any{
		"Field": e.tr.T("field_"+string(st.Field), nil),
		"Value": text,
	})

	value := text
	switch st.Field {
	case models.FieldDate:
		date, _ := extract.DateTimeAt(text, e.now())
		if date == "" {
			return invalid, nil
		}
		value = date
	case models.FieldTime:
		_, clock := extract.DateTimeAt(text, e.now())
		if clock == "" {
			return invalid, nil
		}
		value = clock
	case models.FieldTickets, models.FieldMusic:
		urls := extract.URLs(text)
		if len(urls) == 0 {
			return invalid, nil
		}
		value = urls[0]
	case models.FieldImage:
		return invalid, nil
	}

	if ev.Value(st.Field) == value {
		return e.reply("nothing_new", eventData(ev)), nil
	}

	ev.Set(st.Field, value)
	return e.commit(ctx, ev, []models.Field{st.Field})
}

// HandlePhoto stores a received photo and tries to attach it using the caption,
// the edit menu or an explicit confirmation
func (e *Engine) HandlePhoto(ctx context.Context, chatID, messageID int64, fileID, caption string) (Reply, error) {
	photo := &models.PendingPhoto{
		FileID:    fileID,
		ChatID:    chatID,
		MessageID: messageID,
		CreatedAt: e.now(),
	}
	if err := e.store.SavePendingPhoto(ctx, photo); err != nil {
		return Reply{}, fmt.Errorf("failed to save pending photo: %w", err)
	}

	st := e.dialog.Current(chatID)
	if st.Kind == dialog.AwaitingField && st.Field == models.FieldImage {
		e.dialog.Take(chatID)
		ev, r, err := e.loadMutable(ctx, st.EventID)
		if err != nil {
			return Reply{}, err
		}
		if r != nil {
			return *r, nil
		}
		return e.attachPhoto(ctx, ev, photo)
	}
	if st.Kind != dialog.Idle {
		e.dialog.Reset(chatID)
	}

	var captionReply *Reply
	if caption = strings.TrimSpace(caption); caption != "" {
		r, err := e.route(ctx, chatID, caption)
		if err != nil {
			return Reply{}, err
		}

		consumed, err := e.photoConsumed(ctx, photo.ID)
		if err != nil {
			return Reply{}, err
		}
		if consumed || e.dialog.Current(chatID).Kind != dialog.Idle {
			return r, nil
		}
		if r.Key != "unrecognized_selected" && r.Key != "no_selection" {
			captionReply = &r
		}
	}

	fallback, err := e.offerPhoto(ctx, chatID, photo)
	if err != nil {
		return Reply{}, err
	}
	if captionReply == nil {
		return fallback, nil
	}

	captionReply.append(fallback.Text)
	captionReply.Buttons = append(captionReply.Buttons, fallback.Buttons...)
	return *captionReply, nil
}

func (e *Engine) photoConsumed(ctx context.Context, photoID int64) (bool, error) {
	_, err := e.store.GetPendingPhoto(ctx, photoID)
	if errors.Is(err, models.ErrNoPendingPhoto) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get pending photo %d: %w", photoID, err)
	}
	return false, nil
}

// offerPhoto asks to attach the photo to the selected event, or leaves it queued
func (e *Engine) offerPhoto(ctx context.Context, chatID int64, photo *models.PendingPhoto) (Reply, error) {
	id := e.dialog.Selected(chatID)
	if id == 0 {
		return e.reply("photo_pending", nil), nil
	}

	ev, err := e.store.GetEvent(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return e.reply("photo_pending", nil), nil
		}
		return Reply{}, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	if ev.Status.IsTerminal() {
		return e.reply("photo_pending", nil), nil
	}

	e.dialog.AwaitPhotoTarget(chatID, ev.ID, photo.ID)

	r := e.reply("photo_target", eventData(ev))
	r.Buttons = [][]Button{{
		{Label: e.tr.T("button_attach", nil), Payload: Payload(ActionAttach, photo.ID)},
		{Label: e.tr.T("button_discard", nil), Payload: Payload(ActionDiscard, photo.ID)},
	}}
	return r, nil
}

// HandleButton processes an inline button press
func (e *Engine) HandleButton(ctx context.Context, chatID int64, payload string) (Reply, error) {
	action, args := parsePayload(payload)
	e.logger.DebugContext(ctx, "Button pressed", slog.Int64("chat_id", chatID), slog.String("action", action))

	switch action {
	case ActionPick:
		return e.pick(ctx, chatID, args)
	case ActionPoster, ActionText:
		return e.approveFromButton(ctx, chatID, action, args)
	case ActionPublish, ActionForcePublish:
		id, ok := parseID(args, 0)
		if !ok {
			return e.reply("invalid_id", nil), nil
		}
		return e.Publish(ctx, id, action == ActionForcePublish)
	case ActionEdit:
		id, ok := parseID(args, 0)
		if !ok {
			return e.reply("invalid_id", nil), nil
		}
		return e.EditMenu(ctx, id)
	case ActionField:
		return e.armField(ctx, chatID, args)
	case ActionAttach, ActionDiscard:
		return e.resolvePhoto(ctx, chatID, action, args)
	}

	return e.reply("stale_choice", nil), nil
}

func (e *Engine) pick(ctx context.Context, chatID int64, args []string) (Reply, error) {
	st := e.dialog.Current(chatID)
	if st.Kind != dialog.AwaitingDisambiguation {
		return e.reply("stale_choice", nil), nil
	}

	if len(args) > 0 && args[0] == cancelArg {
		e.dialog.Take(chatID)
		return e.reply("disambiguation_cancelled", nil), nil
	}

	id, ok := parseID(args, 0)
	if !ok || !st.HasCandidate(id) {
		return e.reply("stale_choice", nil), nil
	}
	e.dialog.Take(chatID)

	ev, r, err := e.loadEvent(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	e.dialog.Select(chatID, ev.ID)
	return e.Apply(ctx, chatID, ev, st.Fragment)
}

func (e *Engine) approveFromButton(ctx context.Context, chatID int64, action string, args []string) (Reply, error) {
	id, ok := parseID(args, 0)
	if !ok {
		return e.reply("invalid_id", nil), nil
	}

	ev, r, err := e.loadMutable(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	m := e.newMutation(chatID, ev, "")
	if action == ActionPoster {
		e.metrics.Intent(string(IntentApprovePoster))
		err = e.applyApprovePoster(ctx, m)
	} else {
		e.metrics.Intent(string(IntentApproveText))
		err = e.applyApproveText(ctx, m)
	}
	if err != nil {
		return Reply{}, err
	}
	return m.reply, nil
}

func (e *Engine) armField(ctx context.Context, chatID int64, args []string) (Reply, error) {
	id, ok := parseID(args, 0)
	if !ok || len(args) < 2 {
		return e.reply("invalid_id", nil), nil
	}
	field, ok := models.ParseField(args[1])
	if !ok {
		return e.reply("stale_choice", nil), nil
	}

	ev, r, err := e.loadMutable(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}

	e.dialog.AwaitField(chatID, ev.ID, field)

	if field == models.FieldImage {
		return e.reply("await_photo", eventData(ev)), nil
	}
	data := eventData(ev)
	data["Field"] = e.tr.T("field_"+string(field), nil)
	return e.reply("await_field", data), nil
}

func (e *Engine) resolvePhoto(ctx context.Context, chatID int64, action string, args []string) (Reply, error) {
	photoID, ok := parseID(args, 0)
	st := e.dialog.Current(chatID)
	if !ok || st.Kind != dialog.AwaitingPhotoTarget || st.PhotoID != photoID {
		return e.reply("stale_choice", nil), nil
	}
	e.dialog.Take(chatID)

	photo, err := e.store.GetPendingPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, models.ErrNoPendingPhoto) {
			return e.reply("no_pending_photo", nil), nil
		}
		return Reply{}, fmt.Errorf("failed to get pending photo %d: %w", photoID, err)
	}

	if action == ActionDiscard {
		if err := e.store.DeletePendingPhoto(ctx, photo.ID); err != nil {
			return Reply{}, fmt.Errorf("failed to delete pending photo %d: %w", photo.ID, err)
		}
		return e.reply("photo_discarded", nil), nil
	}

	ev, r, err := e.loadMutable(ctx, st.EventID)
	if err != nil {
		return Reply{}, err
	}
	if r != nil {
		return *r, nil
	}
	return e.attachPhoto(ctx, ev, photo)
}
