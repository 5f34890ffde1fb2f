package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mtbar/concerts/internal/extract"
	"github.com/mtbar/concerts/pkg/models"
)

// Lister reads the events the digest reports on
type Lister interface {
	ListActiveEvents(ctx context.Context) ([]*models.Event, error)
}

// Translator renders catalog messages
type Translator interface {
	T(key string, data map[string]any) string
}

// Builder turns the non-terminal events into a status report
type Builder struct {
	store Lister
	tr    Translator
}

// NewBuilder creates a new digest builder
func NewBuilder(store Lister, tr Translator) *Builder {
	return &Builder{store: store, tr: tr}
}

// Text loads the active events and renders the digest
func (b *Builder) Text(ctx context.Context) (string, error) {
	events, err := b.store.ListActiveEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list active events: %w", err)
	}
	return b.Render(events), nil
}

// Render formats already loaded events. Terminal events are skipped.
func (b *Builder) Render(events []*models.Event) string {
	active := Sort(lo.Filter(events, func(ev *models.Event, _ int) bool {
		return !ev.Status.IsTerminal()
	}))
	if len(active) == 0 {
		return b.tr.T("digest_empty", nil)
	}

	var sb strings.Builder
	sb.WriteString(b.tr.T("digest_header", map[string]any{"Count": len(active)}))

	for _, ev := range active {
		when := b.tr.T("date_unknown", nil)
		if ev.Date != "" {
			when = strings.TrimSpace(ev.Date + " " + ev.Time)
		}

		sb.WriteString("\n\n")
		sb.WriteString(b.tr.T("digest_item", map[string]any{
			"Icon":  Icon(ev.ComputeCompleteness()),
			"ID":    ev.ID,
			"Title": ev.Title,
			"When":  when,
		}))
		sb.WriteString("\n")

		missing := ev.Missing()
		if len(missing) == 0 {
			sb.WriteString(b.tr.T("digest_ready", nil))
			continue
		}
		names := lo.Map(missing, func(f models.Field, _ int) string {
			return b.tr.T("field_"+string(f), nil)
		})
		sb.WriteString(b.tr.T("digest_missing", map[string]any{"Fields": strings.Join(names, ", ")}))
	}

	return sb.String()
}

// Icon maps completeness to a readiness light
func Icon(completeness int) string {
	switch {
	case completeness >= 100:
		return "🟢"
	case completeness >= 50:
		return "🟡"
	default:
		return "🔴"
	}
}

// Sort orders dated events ascending and puts undated ones last, keeping id order within ties
func Sort(events []*models.Event) []*models.Event {
	out := append([]*models.Event(nil), events...)

	key := func(ev *models.Event) (time.Time, bool) {
		return extract.ParseDate(ev.Date)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, oki := key(out[i])
		tj, okj := key(out[j])
		switch {
		case oki && okj:
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
		case oki != okj:
			return oki
		}
		return out[i].ID < out[j].ID
	})
	return out
}
