package models

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrNoPendingPhoto = errors.New("no pending photo")
	ErrTerminal       = errors.New("event is in a terminal status")
)

// Status is the lifecycle status of an event
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition may leave the status
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// Field names an editable event field
type Field string

const (
	FieldTitle       Field = "title"
	FieldDate        Field = "date"
	FieldTime        Field = "time"
	FieldImage       Field = "image"
	FieldTickets     Field = "tickets"
	FieldDescription Field = "description"
	FieldMusic       Field = "music"
)

// RequiredFields are the fields counted by the completeness score, in display order
var RequiredFields = []Field{FieldTitle, FieldDate, FieldTime, FieldImage, FieldTickets, FieldDescription}

// EditableFields are the fields offered by the edit menu
var EditableFields = []Field{FieldTitle, FieldDate, FieldTime, FieldImage, FieldTickets, FieldDescription, FieldMusic}

// ParseField converts a payload string back into a Field
func ParseField(s string) (Field, bool) {
	for _, f := range EditableFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Event represents a live event record fed by chat messages
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Date         string    `json:"date,omitempty" db:"event_date"` // DD.MM.YYYY
	Time         string    `json:"time,omitempty" db:"event_time"` // HH:MM
	ImageURL     string    `json:"image_url,omitempty" db:"image_url"`
	ImageFileID  string    `json:"image_file_id,omitempty" db:"image_file_id"`
	TicketsURL   string    `json:"tickets_url,omitempty" db:"tickets_url"`
	Description  string    `json:"description,omitempty" db:"description"`
	MusicURL     string    `json:"music_url,omitempty" db:"music_url"`
	Status       Status    `json:"status" db:"status"`
	PageID       string    `json:"page_id,omitempty" db:"page_id"`
	PageURL      string    `json:"page_url,omitempty" db:"page_url"`
	Completeness int       `json:"completeness" db:"completeness"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Value returns the current value of a field
func (e *Event) Value(f Field) string {
	switch f {
	case FieldTitle:
		return e.Title
	case FieldDate:
		return e.Date
	case FieldTime:
		return e.Time
	case FieldImage:
		return e.ImageURL
	case FieldTickets:
		return e.TicketsURL
	case FieldDescription:
		return e.Description
	case FieldMusic:
		return e.MusicURL
	}
	return ""
}

// Set overwrites a field value. The image field is set through SetImage.
func (e *Event) Set(f Field, v string) {
	switch f {
	case FieldTitle:
		e.Title = v
	case FieldDate:
		e.Date = v
	case FieldTime:
		e.Time = v
	case FieldImage:
		e.ImageURL = v
	case FieldTickets:
		e.TicketsURL = v
	case FieldDescription:
		e.Description = v
	case FieldMusic:
		e.MusicURL = v
	}
}

// SetImage stores the hosted image URL together with its upload handle
func (e *Event) SetImage(url, fileID string) {
	e.ImageURL = url
	e.ImageFileID = fileID
}

// Missing lists required fields that are still empty
func (e *Event) Missing() []Field {
	var missing []Field
	for _, f := range RequiredFields {
		if e.Value(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// ComputeCompleteness returns floor(100 * filled / required)
func (e *Event) ComputeCompleteness() int {
	filled := len(RequiredFields) - len(e.Missing())
	return 100 * filled / len(RequiredFields)
}

// Recompute refreshes the derived completeness score. Call before every write.
func (e *Event) Recompute() {
	e.Completeness = e.ComputeCompleteness()
}

// IsReady reports a draft with every required field filled
func (e *Event) IsReady() bool {
	return e.Status == StatusDraft && e.ComputeCompleteness() == 100
}

// PendingPhoto is a received photo not yet attached to an event
type PendingPhoto struct {
	ID        int64     `json:"id" db:"id"`
	FileID    string    `json:"file_id" db:"file_id"`
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	MessageID int64     `json:"message_id" db:"message_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Page is the handle returned by the page-publishing backend
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
