package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/lo"

	"github.com/mtbar/concerts/internal/bot"
	"github.com/mtbar/concerts/pkg/models"
)

// EventView is the admin API representation of an event
type EventView struct {
	*models.Event
	Missing []models.Field `json:"missing"`
	Ready   bool           `json:"ready"`
}

func newEventView(ev *models.Event) EventView {
	return EventView{Event: ev, Missing: ev.Missing(), Ready: ev.IsReady()}
}

// listEventsHandler returns every event, optionally filtered by ?status=
func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ListEvents(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list events", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	if status := models.Status(r.URL.Query().Get("status")); status != "" {
		events = lo.Filter(events, func(ev *models.Event, _ int) bool { return ev.Status == status })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": lo.Map(events, func(ev *models.Event, _ int) EventView { return newEventView(ev) }),
	})
}

func (s *Server) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	ev, err := s.events.GetEvent(r.Context(), id)
	if errors.Is(err, models.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to get event", slog.Any("error", err), slog.Int64("event_id", id))
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, newEventView(ev))
}

func (s *Server) digestHandler(w http.ResponseWriter, r *http.Request) {
	text, err := s.digest.Text(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to build digest", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to build digest")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// broadcastDigestHandler sends the digest to all subscribers right away
func (s *Server) broadcastDigestHandler(w http.ResponseWriter, r *http.Request) {
	data, err := bot.DigestEvent{TriggeredAt: time.Now()}.Marshal()
	if err == nil {
		err = s.publisher.Publish(bot.TopicDigest, message.NewMessage(watermill.NewUUID(), data))
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to publish digest event", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to trigger digest")
		return
	}

	userID, _ := r.Context().Value(TelegramUserIDKey).(int64)
	s.logger.InfoContext(r.Context(), "Digest broadcast triggered", slog.Int64("telegram_user_id", userID))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
