package resolve

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/mtbar/concerts/pkg/models"
)

// minWordLength is the rune length a prefix word must exceed to be matched alone
const minWordLength = 3

// ActiveLister lists events that are neither published nor cancelled
type ActiveLister interface {
	ListActiveEvents(ctx context.Context) ([]*models.Event, error)
}

// Resolver fuzzy-matches name fragments against active event titles
type Resolver struct {
	store ActiveLister
}

// New creates a new resolver
func New(store ActiveLister) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the active events matching the name prefix
func (r *Resolver) Resolve(ctx context.Context, prefix string) ([]*models.Event, error) {
	events, err := r.store.ListActiveEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	return Match(events, prefix), nil
}

// Match applies exact, substring and word matching, in that order of preference.
// An exact title match short-circuits; otherwise the deduplicated union is returned.
func Match(events []*models.Event, prefix string) []*models.Event {
	needle := normalize(prefix)
	if needle == "" {
		return nil
	}

	active := lo.Filter(events, func(e *models.Event, _ int) bool {
		return !e.Status.IsTerminal()
	})

	for _, e := range active {
		if normalize(e.Title) == needle {
			return []*models.Event{e}
		}
	}

	var matched []*models.Event
	for _, e := range active {
		title := normalize(e.Title)
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			matched = append(matched, e)
		}
	}

	if len(matched) == 0 {
		for _, word := range strings.Fields(needle) {
			word = strings.TrimFunc(word, unicode.IsPunct)
			if utf8.RuneCountInString(word) <= minWordLength {
				continue
			}
			for _, e := range active {
				if strings.Contains(normalize(e.Title), word) {
					matched = append(matched, e)
				}
			}
		}
	}

	return lo.UniqBy(matched, func(e *models.Event) int64 {
		return e.ID
	})
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
